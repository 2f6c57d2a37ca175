package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glassdome/cachestream/cache"
	"github.com/glassdome/cachestream/eventbus"
	"github.com/glassdome/cachestream/server/middleware"
)

type CacheStatsResponse struct {
	Metrics     cache.MetricsSnapshot `json:"metrics"`
	Subscribers int                   `json:"subscribers"`
}

// GetCacheStats returns the operation counters of the cache engine. The
// counters are process wide; the per-tenant breakdown lives in the metadata
// registry stats.
func (s *APIV1Service) GetCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, &CacheStatsResponse{
		Metrics:     s.Cache.Metrics().Snapshot(),
		Subscribers: s.Broker.SubscriberCount(),
	})
}

type ListCacheKeysResponse struct {
	Keys  []cache.KeyInfo `json:"keys"`
	Total int             `json:"total"`
}

func (s *APIV1Service) ListCacheKeys(c echo.Context) error {
	ctx := c.Request().Context()
	opts := cache.Options{TenantID: middleware.TenantID(c)}

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		offset = parsed
	}

	keys := s.Cache.Keys(ctx, c.QueryParam("pattern"), limit, offset, opts)
	if keys == nil {
		keys = []cache.KeyInfo{}
	}
	return c.JSON(http.StatusOK, &ListCacheKeysResponse{Keys: keys, Total: len(keys)})
}

func (s *APIV1Service) DeleteCacheKey(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := middleware.TenantID(c)
	key := c.Param("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}

	s.Cache.Delete(ctx, key, cache.Options{TenantID: tenantID})
	s.Broker.Publish(tenantID, eventbus.EventDelete, key, nil)
	return c.NoContent(http.StatusNoContent)
}

type SetTTLRequest struct {
	TTLSeconds int64 `json:"ttl_seconds"`
}

func (s *APIV1Service) SetCacheKeyTTL(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}

	request := &SetTTLRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if request.TTLSeconds <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ttl_seconds must be positive")
	}

	opts := cache.Options{TenantID: middleware.TenantID(c)}
	if !s.Cache.SetTTL(ctx, key, time.Duration(request.TTLSeconds)*time.Second, opts) {
		return echo.NewHTTPError(http.StatusNotFound, "key not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type InvalidateRequest struct {
	Pattern string   `json:"pattern"`
	Keys    []string `json:"keys"`
	Tags    []string `json:"tags"`
}

type InvalidateResponse struct {
	Deleted   int `json:"deleted"`
	Delivered int `json:"delivered"`
}

// InvalidateCache removes matching entries from the cache, bumps the matching
// metadata records, and fans the invalidation out to the tenant's
// subscribers. Exactly one of pattern, keys, or tags must be set.
func (s *APIV1Service) InvalidateCache(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := middleware.TenantID(c)

	request := &InvalidateRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	selectors := 0
	if request.Pattern != "" {
		selectors++
	}
	if len(request.Keys) > 0 {
		selectors++
	}
	if len(request.Tags) > 0 {
		selectors++
	}
	if selectors != 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one of pattern, keys, or tags is required")
	}

	opts := cache.Options{TenantID: tenantID}
	response := &InvalidateResponse{}
	switch {
	case request.Pattern != "":
		response.Deleted = s.Cache.DeletePattern(ctx, request.Pattern, opts)
		if _, err := s.Store.InvalidateCacheMetadata(ctx, tenantID, trimGlob(request.Pattern)); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to invalidate metadata")
		}
		response.Delivered = s.Broker.Publish(tenantID, eventbus.EventInvalidate, request.Pattern, nil)
	case len(request.Keys) > 0:
		for _, key := range request.Keys {
			s.Cache.Delete(ctx, key, opts)
			response.Delivered += s.Broker.Publish(tenantID, eventbus.EventDelete, key, nil)
		}
		response.Deleted = len(request.Keys)
	default:
		response.Deleted = s.Cache.InvalidateByTags(ctx, tenantID, request.Tags)
		response.Delivered = s.Broker.Publish(tenantID, eventbus.EventInvalidate, "", map[string]any{"tags": request.Tags})
	}
	return c.JSON(http.StatusOK, response)
}

type ClearCacheResponse struct {
	Deleted int `json:"deleted"`
}

// ClearCache drops every entry across all tenants. This is an operator
// action, not part of any business flow, so the notification goes to every
// subscriber regardless of tenant.
func (s *APIV1Service) ClearCache(c echo.Context) error {
	deleted := s.Cache.Clear(c.Request().Context())
	s.Broker.Publish("", eventbus.EventInvalidate, "*", nil)
	return c.JSON(http.StatusOK, &ClearCacheResponse{Deleted: deleted})
}

func (s *APIV1Service) GetCacheHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Cache.Health(c.Request().Context()))
}

// trimGlob strips glob wildcards so a cache pattern can double as the
// substring match used by the metadata registry.
func trimGlob(pattern string) string {
	trimmed := make([]rune, 0, len(pattern))
	for _, r := range pattern {
		if r == '*' || r == '?' {
			continue
		}
		trimmed = append(trimmed, r)
	}
	return string(trimmed)
}
