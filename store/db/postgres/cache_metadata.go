package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/glassdome/cachestream/store"
)

func (d *DB) GetCacheMetadata(ctx context.Context, find *store.FindCacheMetadata) (*store.CacheMetadata, error) {
	if find == nil || find.CacheKey == nil {
		return nil, fmt.Errorf("tenant_id and cache_key are required")
	}

	query := `
		SELECT id, tenant_id, cache_key, last_updated, version, data_size_bytes, hit_count
		FROM cache_metadata
		WHERE tenant_id = $1 AND cache_key = $2
	`
	metadata, err := scanCacheMetadata(d.db.QueryRowContext(ctx, query, find.TenantID, *find.CacheKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache metadata: %w", err)
	}
	return metadata, nil
}

func (d *DB) ListCacheMetadata(ctx context.Context, find *store.FindCacheMetadata) ([]*store.CacheMetadata, error) {
	if find == nil {
		return nil, fmt.Errorf("find parameter cannot be nil")
	}

	where, args := []string{"tenant_id = $1"}, []any{find.TenantID}
	argIndex := 2

	if find.CacheKey != nil {
		where = append(where, fmt.Sprintf("cache_key = $%d", argIndex))
		args = append(args, *find.CacheKey)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, cache_key, last_updated, version, data_size_bytes, hit_count
		FROM cache_metadata
		WHERE %s
		ORDER BY last_updated DESC
	`, strings.Join(where, " AND "))

	limit := find.Limit
	if limit > 0 {
		if limit > 1000 {
			limit = 1000
		}
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache metadata: %w", err)
	}
	defer rows.Close()

	var list []*store.CacheMetadata
	for rows.Next() {
		metadata, err := scanCacheMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache metadata: %w", err)
		}
		list = append(list, metadata)
	}
	return list, rows.Err()
}

func (d *DB) UpsertCacheMetadata(ctx context.Context, upsert *store.UpsertCacheMetadata) (*store.CacheMetadata, error) {
	if upsert == nil {
		return nil, fmt.Errorf("upsert parameter cannot be nil")
	}

	query := `
		INSERT INTO cache_metadata (tenant_id, cache_key, last_updated, version, data_size_bytes, hit_count)
		VALUES ($1, $2, NOW(), $3, $4, 0)
		ON CONFLICT (tenant_id, cache_key) DO UPDATE SET
			last_updated = NOW(),
			version = COALESCE(EXCLUDED.version, cache_metadata.version),
			data_size_bytes = COALESCE(EXCLUDED.data_size_bytes, cache_metadata.data_size_bytes)
		RETURNING id, tenant_id, cache_key, last_updated, version, data_size_bytes, hit_count
	`
	metadata, err := scanCacheMetadata(d.db.QueryRowContext(ctx, query,
		upsert.TenantID, upsert.CacheKey, upsert.Version, upsert.DataSizeBytes,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cache metadata: %w", err)
	}
	return metadata, nil
}

func (d *DB) RecordCacheHit(ctx context.Context, tenantID, cacheKey string) (*store.CacheMetadata, error) {
	query := `
		INSERT INTO cache_metadata (tenant_id, cache_key, last_updated, hit_count)
		VALUES ($1, $2, NOW(), 1)
		ON CONFLICT (tenant_id, cache_key) DO UPDATE SET
			hit_count = cache_metadata.hit_count + 1
		RETURNING id, tenant_id, cache_key, last_updated, version, data_size_bytes, hit_count
	`
	metadata, err := scanCacheMetadata(d.db.QueryRowContext(ctx, query, tenantID, cacheKey))
	if err != nil {
		return nil, fmt.Errorf("failed to record cache hit: %w", err)
	}
	return metadata, nil
}

func (d *DB) InvalidateCacheMetadata(ctx context.Context, tenantID, pattern string) (int64, error) {
	query := `
		UPDATE cache_metadata
		SET last_updated = NOW()
		WHERE tenant_id = $1 AND cache_key LIKE '%' || $2 || '%'
	`
	result, err := d.db.ExecContext(ctx, query, tenantID, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache metadata: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count invalidated cache metadata: %w", err)
	}
	return count, nil
}

func (d *DB) GetTenantCacheStats(ctx context.Context, tenantID string) (*store.TenantCacheStats, error) {
	stats := &store.TenantCacheStats{}

	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM cache_metadata WHERE tenant_id = $1",
		tenantID,
	).Scan(&stats.TotalKeys, &stats.TotalHits)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cache metadata: %w", err)
	}
	if stats.TotalKeys > 0 {
		stats.AvgHitsPerKey = float64(stats.TotalHits) / float64(stats.TotalKeys)
	}

	top, err := d.listOrdered(ctx, tenantID, "hit_count DESC", 5)
	if err != nil {
		return nil, err
	}
	stats.TopAccessed = top

	recent, err := d.listOrdered(ctx, tenantID, "last_updated DESC", 5)
	if err != nil {
		return nil, err
	}
	stats.RecentlyUpdated = recent

	return stats, nil
}

func (d *DB) DeleteCacheMetadata(ctx context.Context, delete *store.DeleteCacheMetadata) (int64, error) {
	if delete == nil {
		return 0, fmt.Errorf("delete parameter cannot be nil")
	}

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM cache_metadata WHERE last_updated < $1 AND hit_count <= $2",
		delete.Before, delete.MaxHits,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache metadata: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted cache metadata: %w", err)
	}
	return count, nil
}

func (d *DB) listOrdered(ctx context.Context, tenantID, orderBy string, limit int) ([]*store.CacheMetadata, error) {
	query := fmt.Sprintf(`
		SELECT id, tenant_id, cache_key, last_updated, version, data_size_bytes, hit_count
		FROM cache_metadata
		WHERE tenant_id = $1
		ORDER BY %s
		LIMIT %d
	`, orderBy, limit)

	rows, err := d.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache metadata: %w", err)
	}
	defer rows.Close()

	var list []*store.CacheMetadata
	for rows.Next() {
		metadata, err := scanCacheMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache metadata: %w", err)
		}
		list = append(list, metadata)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheMetadata(row rowScanner) (*store.CacheMetadata, error) {
	var metadata store.CacheMetadata
	if err := row.Scan(
		&metadata.ID, &metadata.TenantID, &metadata.CacheKey,
		&metadata.LastUpdated, &metadata.Version, &metadata.DataSizeBytes, &metadata.HitCount,
	); err != nil {
		return nil, err
	}
	return &metadata, nil
}
