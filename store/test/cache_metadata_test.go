package test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glassdome/cachestream/store"
)

func TestUpsertCacheMetadata(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	version := "v1"
	size := int64(128)
	created, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{
		TenantID:      "acme",
		CacheKey:      "user:42:profile",
		Version:       &version,
		DataSizeBytes: &size,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, "acme", created.TenantID)
	require.Equal(t, "user:42:profile", created.CacheKey)
	require.Equal(t, int64(0), created.HitCount)
	require.NotNil(t, created.Version)
	require.Equal(t, "v1", *created.Version)
	require.NotNil(t, created.DataSizeBytes)
	require.Equal(t, int64(128), *created.DataSizeBytes)

	// Record some hits, then touch again with a new version. The touch must
	// keep the accumulated hit count and replace the version.
	require.NotNil(t, ts.RecordCacheHit(ctx, "acme", "user:42:profile"))
	require.NotNil(t, ts.RecordCacheHit(ctx, "acme", "user:42:profile"))

	version2 := "v2"
	touched, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{
		TenantID: "acme",
		CacheKey: "user:42:profile",
		Version:  &version2,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, touched.ID)
	require.Equal(t, int64(2), touched.HitCount)
	require.Equal(t, "v2", *touched.Version)
	// Size was omitted on the touch and must survive from the first write.
	require.NotNil(t, touched.DataSizeBytes)
	require.Equal(t, int64(128), *touched.DataSizeBytes)
}

func TestGetCacheMetadata(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{
		TenantID: "acme",
		CacheKey: "report:q1",
	})
	require.NoError(t, err)

	key := "report:q1"
	found, err := ts.GetCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme", CacheKey: &key})
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "report:q1", found.CacheKey)

	// Same key under a different tenant is a separate record.
	other, err := ts.GetCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "globex", CacheKey: &key})
	require.NoError(t, err)
	require.Nil(t, other)

	missing := "report:q9"
	none, err := ts.GetCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme", CacheKey: &missing})
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestListCacheMetadata(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	for i := 0; i < 3; i++ {
		_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{
			TenantID: "acme",
			CacheKey: fmt.Sprintf("item:%d", i),
		})
		require.NoError(t, err)
	}
	_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{
		TenantID: "globex",
		CacheKey: "item:0",
	})
	require.NoError(t, err)

	list, err := ts.ListCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, metadata := range list {
		require.Equal(t, "acme", metadata.TenantID)
	}

	limited, err := ts.ListCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme", Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestRecordCacheHit(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	// The first hit creates the record on demand.
	first := ts.RecordCacheHit(ctx, "acme", "hot:key")
	require.NotNil(t, first)
	require.Equal(t, int64(1), first.HitCount)

	for i := 0; i < 9; i++ {
		require.NotNil(t, ts.RecordCacheHit(ctx, "acme", "hot:key"))
	}

	key := "hot:key"
	found, err := ts.GetCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme", CacheKey: &key})
	require.NoError(t, err)
	require.Equal(t, int64(10), found.HitCount)
}

func TestInvalidateCacheMetadata(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	for _, key := range []string{"user:1:profile", "user:2:profile", "order:1"} {
		_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{TenantID: "acme", CacheKey: key})
		require.NoError(t, err)
	}
	_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{TenantID: "globex", CacheKey: "user:1:profile"})
	require.NoError(t, err)

	count, err := ts.InvalidateCacheMetadata(ctx, "acme", "profile")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Invalidation is a touch, not a delete. All records remain listable.
	list, err := ts.ListCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 3)

	none, err := ts.InvalidateCacheMetadata(ctx, "acme", "no-such-key")
	require.NoError(t, err)
	require.Zero(t, none)
}

func TestGetTenantCacheStats(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	for i := 0; i < 7; i++ {
		key := fmt.Sprintf("entry:%d", i)
		_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{TenantID: "acme", CacheKey: key})
		require.NoError(t, err)
		for j := 0; j < i; j++ {
			require.NotNil(t, ts.RecordCacheHit(ctx, "acme", key))
		}
	}

	stats, err := ts.GetTenantCacheStats(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, int64(7), stats.TotalKeys)
	// 0+1+...+6 hits.
	require.Equal(t, int64(21), stats.TotalHits)
	require.InDelta(t, 3.0, stats.AvgHitsPerKey, 0.001)
	require.Len(t, stats.TopAccessed, 5)
	require.Equal(t, "entry:6", stats.TopAccessed[0].CacheKey)
	require.Equal(t, int64(6), stats.TopAccessed[0].HitCount)
	require.Len(t, stats.RecentlyUpdated, 5)

	empty, err := ts.GetTenantCacheStats(ctx, "globex")
	require.NoError(t, err)
	require.Zero(t, empty.TotalKeys)
	require.Zero(t, empty.TotalHits)
	require.Zero(t, empty.AvgHitsPerKey)
}

func TestDeleteCacheMetadata(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{TenantID: "acme", CacheKey: "cold:1"})
	require.NoError(t, err)
	_, err = ts.UpsertCacheMetadata(ctx, &store.UpsertCacheMetadata{TenantID: "acme", CacheKey: "warm:1"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NotNil(t, ts.RecordCacheHit(ctx, "acme", "warm:1"))
	}

	// Everything is older than a cutoff in the future, so only the hit
	// threshold decides what goes.
	count, err := ts.DeleteCacheMetadata(ctx, &store.DeleteCacheMetadata{
		Before:  time.Now().Add(time.Hour),
		MaxHits: 0,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	list, err := ts.ListCacheMetadata(ctx, &store.FindCacheMetadata{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "warm:1", list[0].CacheKey)
}
