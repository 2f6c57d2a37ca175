package postgres

import (
	"context"
	"database/sql"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the PostgreSQL connection from the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_catalog = current_database() AND table_name = 'cache_metadata' AND table_type = 'BASE TABLE')",
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS cache_metadata (
	id BIGSERIAL PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	version TEXT,
	data_size_bytes BIGINT,
	hit_count BIGINT NOT NULL DEFAULT 0,
	UNIQUE(tenant_id, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_cache_metadata_tenant_updated ON cache_metadata (tenant_id, last_updated DESC);
CREATE INDEX IF NOT EXISTS idx_cache_metadata_tenant_hits ON cache_metadata (tenant_id, hit_count DESC);
`

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	return nil
}
