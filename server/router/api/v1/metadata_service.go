package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/glassdome/cachestream/eventbus"
	"github.com/glassdome/cachestream/server/middleware"
	"github.com/glassdome/cachestream/store"
)

// GetCacheMetadata returns the metadata record for the key, creating it on
// first access. Every lookup counts as a hit. A registry outage degrades to
// not-found rather than failing the request.
func (s *APIV1Service) GetCacheMetadata(c echo.Context) error {
	key := c.Param("key")
	if key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}

	metadata := s.Store.RecordCacheHit(c.Request().Context(), middleware.TenantID(c), key)
	if metadata == nil {
		return echo.NewHTTPError(http.StatusNotFound, "metadata not found")
	}
	return c.JSON(http.StatusOK, metadata)
}

type ListCacheMetadataResponse struct {
	Metadata []*store.CacheMetadata `json:"metadata"`
	Total    int                    `json:"total"`
}

func (s *APIV1Service) ListCacheMetadata(c echo.Context) error {
	find := &store.FindCacheMetadata{TenantID: middleware.TenantID(c)}
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		find.Limit = parsed
	}

	list, err := s.Store.ListCacheMetadata(c.Request().Context(), find)
	if err != nil {
		// Degrade to an empty listing while the registry is unreachable.
		list = nil
	}
	if list == nil {
		list = []*store.CacheMetadata{}
	}
	return c.JSON(http.StatusOK, &ListCacheMetadataResponse{Metadata: list, Total: len(list)})
}

type UpdateCacheMetadataRequest struct {
	CacheKey      string  `json:"cache_key"`
	Version       *string `json:"version"`
	DataSizeBytes *int64  `json:"data_size_bytes"`
}

// UpdateCacheMetadata touches the record for the key, bumping last_updated
// and recording the new version and size when provided.
func (s *APIV1Service) UpdateCacheMetadata(c echo.Context) error {
	request := &UpdateCacheMetadataRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if request.CacheKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "cache_key is required")
	}

	metadata, err := s.Store.UpsertCacheMetadata(c.Request().Context(), &store.UpsertCacheMetadata{
		TenantID:      middleware.TenantID(c),
		CacheKey:      request.CacheKey,
		Version:       request.Version,
		DataSizeBytes: request.DataSizeBytes,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update metadata")
	}
	return c.JSON(http.StatusOK, metadata)
}

type InvalidateMetadataRequest struct {
	Pattern string `json:"pattern"`
}

type InvalidateMetadataResponse struct {
	Invalidated int64 `json:"invalidated"`
	Delivered   int   `json:"delivered"`
}

// InvalidateCacheMetadata bumps last_updated on every record whose key
// contains the pattern and notifies the tenant's subscribers. Records are
// never deleted by invalidation.
func (s *APIV1Service) InvalidateCacheMetadata(c echo.Context) error {
	tenantID := middleware.TenantID(c)

	request := &InvalidateMetadataRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if request.Pattern == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "pattern is required")
	}

	count, err := s.Store.InvalidateCacheMetadata(c.Request().Context(), tenantID, request.Pattern)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to invalidate metadata")
	}
	delivered := s.Broker.Publish(tenantID, eventbus.EventInvalidate, request.Pattern, nil)
	return c.JSON(http.StatusOK, &InvalidateMetadataResponse{Invalidated: count, Delivered: delivered})
}

func (s *APIV1Service) GetCacheMetadataStats(c echo.Context) error {
	stats, err := s.Store.GetTenantCacheStats(c.Request().Context(), middleware.TenantID(c))
	if err != nil {
		// Degrade to zeroed stats while the registry is unreachable.
		stats = &store.TenantCacheStats{}
	}
	return c.JSON(http.StatusOK, stats)
}
