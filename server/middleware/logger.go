package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// LogFieldRequestID is the field name for request ID.
	LogFieldRequestID = "request_id"
	// LogFieldTenantID is the field name for tenant ID.
	LogFieldTenantID = "tenant_id"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
)

const requestIDContextKey = "request-id"

// RequestID returns the generated ID of the request.
func RequestID(c echo.Context) string {
	requestID, _ := c.Get(requestIDContextKey).(string)
	return requestID
}

// RequestLogger tags every request with a generated ID and logs its outcome
// with latency. The streaming endpoint is skipped; its duration is the
// connection lifetime, not a request latency.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := uuid.New().String()
			c.Set(requestIDContextKey, requestID)
			c.Response().Header().Set("X-Request-Id", requestID)

			start := time.Now()
			err := next(c)
			if c.Response().Header().Get(echo.HeaderContentType) == "text/event-stream" {
				return err
			}

			attrs := []any{
				LogFieldRequestID, requestID,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				LogFieldDuration, time.Since(start).Milliseconds(),
			}
			if tenantID := TenantID(c); tenantID != "" {
				attrs = append(attrs, LogFieldTenantID, tenantID)
			}
			if err != nil {
				attrs = append(attrs, "error", err)
				slog.Warn("request failed", attrs...)
			} else {
				slog.Debug("request completed", attrs...)
			}
			return err
		}
	}
}
