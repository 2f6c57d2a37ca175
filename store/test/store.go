package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glassdome/cachestream/internal/profile"
	"github.com/glassdome/cachestream/store"
	"github.com/glassdome/cachestream/store/db"
)

// NewTestingStore returns a Store backed by an in-memory SQLite database.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    ":memory:",
	}

	driver, err := db.NewDBDriver(ctx, testProfile)
	require.NoError(t, err)

	st := store.New(driver, testProfile)
	t.Cleanup(func() { _ = st.Close() })
	return st
}
