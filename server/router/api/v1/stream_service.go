package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glassdome/cachestream/server/middleware"
)

// StreamCacheEvents serves the tenant's invalidation feed over SSE. The
// subscription lives exactly as long as the connection: a disconnect, a
// server shutdown, or the idle reaper all end the stream.
func (s *APIV1Service) StreamCacheEvents(c echo.Context) error {
	tenantID := middleware.TenantID(c)

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	subscriber := s.Broker.Subscribe(tenantID, middleware.UserID(c))
	defer s.Broker.Unsubscribe(subscriber.ID)

	if _, err := fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\":%q}\n\n", subscriber.ID); err != nil {
		return nil
	}
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-subscriber.Done():
			return nil
		case event := <-subscriber.Events():
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
