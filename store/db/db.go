package db

import (
	"context"

	"github.com/pkg/errors"

	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/store"
	"github.com/glassdome/cachestream/store/db/postgres"
	"github.com/glassdome/cachestream/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile and ensures the schema
// is in place.
func NewDBDriver(ctx context.Context, profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}

	if err := driver.Migrate(ctx); err != nil {
		_ = driver.Close()
		return nil, errors.Wrap(err, "failed to migrate metadata schema")
	}
	return driver, nil
}
