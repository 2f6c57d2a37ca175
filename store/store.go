package store

import (
	"context"
	"log/slog"

	"github.com/glassdome/cachestream/internal/profile"
)

// Store provides database access to the cache metadata registry. The
// registry is deliberately independent of the cache engine: it stays
// queryable while the cache is unreachable, and it is never used as the
// value cache itself.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) GetCacheMetadata(ctx context.Context, find *FindCacheMetadata) (*CacheMetadata, error) {
	return s.driver.GetCacheMetadata(ctx, find)
}

func (s *Store) ListCacheMetadata(ctx context.Context, find *FindCacheMetadata) ([]*CacheMetadata, error) {
	return s.driver.ListCacheMetadata(ctx, find)
}

func (s *Store) UpsertCacheMetadata(ctx context.Context, upsert *UpsertCacheMetadata) (*CacheMetadata, error) {
	return s.driver.UpsertCacheMetadata(ctx, upsert)
}

// RecordCacheHit bumps the hit counter for the key, creating the record when
// absent. The counter is stats-only: a failed increment is logged and
// dropped rather than blocking the caller, and the returned record is nil in
// that case.
func (s *Store) RecordCacheHit(ctx context.Context, tenantID, cacheKey string) *CacheMetadata {
	metadata, err := s.driver.RecordCacheHit(ctx, tenantID, cacheKey)
	if err != nil {
		slog.Warn("failed to record cache hit",
			"tenant_id", tenantID, "cache_key", cacheKey, "error", err)
		return nil
	}
	return metadata
}

// InvalidateCacheMetadata bumps last_updated to now for every record of the
// tenant whose key contains the pattern as a substring. Records are never
// deleted here; the timestamp bump itself is the staleness signal polling
// clients compare against.
func (s *Store) InvalidateCacheMetadata(ctx context.Context, tenantID, pattern string) (int64, error) {
	return s.driver.InvalidateCacheMetadata(ctx, tenantID, pattern)
}

func (s *Store) GetTenantCacheStats(ctx context.Context, tenantID string) (*TenantCacheStats, error) {
	return s.driver.GetTenantCacheStats(ctx, tenantID)
}

// DeleteCacheMetadata is the explicit maintenance purge for abandoned
// records; nothing in the ordinary request flow deletes metadata.
func (s *Store) DeleteCacheMetadata(ctx context.Context, delete *DeleteCacheMetadata) (int64, error) {
	return s.driver.DeleteCacheMetadata(ctx, delete)
}
