package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that the metadata database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// CacheMetadata model related methods.
	GetCacheMetadata(ctx context.Context, find *FindCacheMetadata) (*CacheMetadata, error)
	ListCacheMetadata(ctx context.Context, find *FindCacheMetadata) ([]*CacheMetadata, error)
	UpsertCacheMetadata(ctx context.Context, upsert *UpsertCacheMetadata) (*CacheMetadata, error)
	RecordCacheHit(ctx context.Context, tenantID, cacheKey string) (*CacheMetadata, error)
	InvalidateCacheMetadata(ctx context.Context, tenantID, pattern string) (int64, error)
	GetTenantCacheStats(ctx context.Context, tenantID string) (*TenantCacheStats, error)
	DeleteCacheMetadata(ctx context.Context, delete *DeleteCacheMetadata) (int64, error)
}
