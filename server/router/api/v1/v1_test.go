package v1

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/glassdome/cachestream/cache"
	"github.com/glassdome/cachestream/eventbus"
	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/server/auth"
	storetest "github.com/glassdome/cachestream/store/test"
)

const testSecret = "test-secret"

type testEnv struct {
	service *APIV1Service
	echo    *echo.Echo
	redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheStore := cache.NewWithClient(client, &cache.Config{
		KeyPrefix:  "cs",
		DefaultTTL: time.Minute,
	})
	t.Cleanup(func() { _ = cacheStore.Close() })

	broker := eventbus.NewBroker(eventbus.Config{
		HeartbeatInterval: time.Hour,
		ReaperInterval:    time.Hour,
		IdleTimeout:       time.Hour,
		SendTimeout:       time.Second,
		BufferSize:        16,
	})
	t.Cleanup(broker.Close)

	st := storetest.NewTestingStore(ctx, t)

	testProfile := &profile.Profile{Mode: "dev", Driver: "sqlite"}
	service := NewAPIV1Service(testSecret, testProfile, st, cacheStore, broker)

	e := echo.New()
	service.RegisterRoutes(e)

	return &testEnv{service: service, echo: e, redis: mr}
}

func mintToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(tenantID, "test-user", time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)
	return token
}

// do runs an authenticated request against the test server. A non-empty body
// is sent as JSON.
func (env *testEnv) do(t *testing.T, method, target, tenantID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+mintToken(t, tenantID))
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func TestRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{
		"/api/v1/cache/stats",
		"/api/v1/cache/keys",
		"/api/v1/cache/health",
		"/api/v1/cache/metadata",
		"/api/v1/cache/events",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		env.echo.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}
