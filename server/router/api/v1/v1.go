package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/glassdome/cachestream/cache"
	"github.com/glassdome/cachestream/eventbus"
	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/server/middleware"
	"github.com/glassdome/cachestream/store"
)

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store
	Cache   *cache.Store
	Broker  *eventbus.Broker

	rateLimiter *middleware.RateLimiter
}

func NewAPIV1Service(secret string, profile *profile.Profile, store *store.Store, cacheStore *cache.Store, broker *eventbus.Broker) *APIV1Service {
	return &APIV1Service{
		Secret:      secret,
		Profile:     profile,
		Store:       store,
		Cache:       cacheStore,
		Broker:      broker,
		rateLimiter: middleware.NewRateLimiter(10, 20),
	}
}

// RegisterRoutes registers the cache API with the given Echo instance. Every
// route runs behind tenant authentication; mutation routes are additionally
// rate limited per tenant.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	apiV1 := echoServer.Group("/api/v1", middleware.TenantAuth(s.Secret))
	limited := s.rateLimiter.Middleware()

	apiV1.GET("/cache/stats", s.GetCacheStats)
	apiV1.GET("/cache/keys", s.ListCacheKeys)
	apiV1.DELETE("/cache/keys/:key", s.DeleteCacheKey, limited)
	apiV1.POST("/cache/keys/:key/ttl", s.SetCacheKeyTTL, limited)
	apiV1.POST("/cache/invalidate", s.InvalidateCache, limited)
	apiV1.DELETE("/cache/clear", s.ClearCache, limited)
	apiV1.GET("/cache/health", s.GetCacheHealth)

	apiV1.GET("/cache/metadata", s.ListCacheMetadata)
	apiV1.GET("/cache/metadata/stats", s.GetCacheMetadataStats)
	apiV1.GET("/cache/metadata/:key", s.GetCacheMetadata)
	apiV1.POST("/cache/metadata/update", s.UpdateCacheMetadata, limited)
	apiV1.POST("/cache/metadata/invalidate", s.InvalidateCacheMetadata, limited)

	apiV1.GET("/cache/events", s.StreamCacheEvents)
}
