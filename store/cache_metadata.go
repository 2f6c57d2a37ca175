package store

import "time"

// CacheMetadata is the durable freshness record for one logical cache key of
// one tenant. It survives cache eviction and flushes: a client that missed
// the live invalidation event compares its local copy's timestamp/version
// against this record to detect staleness.
type CacheMetadata struct {
	ID            int64
	TenantID      string
	CacheKey      string
	LastUpdated   time.Time
	Version       *string
	DataSizeBytes *int64
	HitCount      int64
}

// FindCacheMetadata specifies the conditions for finding metadata records.
type FindCacheMetadata struct {
	TenantID string
	CacheKey *string
	Limit    int
}

// UpsertCacheMetadata specifies the data for touching a metadata record.
// Creates the record with hit_count=0 when absent; otherwise bumps
// last_updated and overwrites version/size, leaving hit_count untouched.
type UpsertCacheMetadata struct {
	TenantID      string
	CacheKey      string
	Version       *string
	DataSizeBytes *int64
}

// DeleteCacheMetadata specifies the conditions for the maintenance purge:
// records untouched since Before and with at most MaxHits lookups.
type DeleteCacheMetadata struct {
	Before  time.Time
	MaxHits int64
}

// TenantCacheStats aggregates a tenant's metadata registry.
type TenantCacheStats struct {
	TotalKeys       int64            `json:"total_keys"`
	TotalHits       int64            `json:"total_hits"`
	AvgHitsPerKey   float64          `json:"avg_hits_per_key"`
	TopAccessed     []*CacheMetadata `json:"top_accessed"`
	RecentlyUpdated []*CacheMetadata `json:"recently_updated"`
}
