package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/glassdome/cachestream/eventbus"
)

func TestStreamCacheEvents(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/events", nil).WithContext(ctx)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+mintToken(t, "acme"))
	rec := httptest.NewRecorder()

	handlerDone := make(chan struct{})
	go func() {
		env.echo.ServeHTTP(rec, req)
		close(handlerDone)
	}()

	require.Eventually(t, func() bool {
		return env.service.Broker.SubscriberCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, env.service.Broker.Publish("acme", eventbus.EventInvalidate, "user:*", nil))
	// An event for another tenant must not reach this stream.
	require.Equal(t, 0, env.service.Broker.Publish("globex", eventbus.EventInvalidate, "secret:*", nil))

	// Give the handler a moment to drain the delivered event, then disconnect.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		t.Fatal("handler did not stop on disconnect")
	}

	body := rec.Body.String()
	require.Contains(t, body, "event: connected")
	require.Contains(t, body, `"pattern":"user:*"`)
	require.NotContains(t, body, "secret")

	// Disconnecting tears the subscription down.
	require.Zero(t, env.service.Broker.SubscriberCount())
}

func TestStreamCacheEventsRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/events", nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, env.service.Broker.SubscriberCount())
}
