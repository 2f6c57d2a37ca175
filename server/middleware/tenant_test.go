package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/glassdome/cachestream/server/auth"
)

const testSecret = "test-secret"

func newTenantEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"tenant_id": TenantID(c),
			"user_id":   UserID(c),
		})
	}, TenantAuth(testSecret))
	return e
}

func mintToken(t *testing.T, tenantID, userID string) string {
	t.Helper()
	token, err := auth.GenerateAccessToken(tenantID, userID, time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestTenantAuth(t *testing.T) {
	e := newTenantEcho(t)

	t.Run("BearerHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+mintToken(t, "acme", "user-1"))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"tenant_id":"acme"`)
		require.Contains(t, rec.Body.String(), `"user_id":"user-1"`)
	})

	t.Run("QueryParamToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami?access_token="+mintToken(t, "globex", "u2"), nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"tenant_id":"globex"`)
	})

	t.Run("MissingToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	require.True(t, rl.Allow("acme"))
	require.True(t, rl.Allow("acme"))
	require.False(t, rl.Allow("acme"))
	// Buckets are per key.
	require.True(t, rl.Allow("globex"))
}
