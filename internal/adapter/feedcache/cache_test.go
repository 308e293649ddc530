package feedcache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpipeline/feedsvc/internal/adapter/feedcache"
)

func newTestCache(t *testing.T) (*feedcache.Cache, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := feedcache.New(rdb, nil)

	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return cache, cleanup
}

func TestCache_WriteThenReadRoundTrip(t *testing.T) {
	t.Parallel()
	cache, cleanup := newTestCache(t)
	defer cleanup()

	ctx := context.Background()
	ids := []string{"A", "B", "C"}
	cache.WriteFeedCache(ctx, "user-1", ids, 300*time.Second, 0)

	got, ok := cache.ReadFeedCache(ctx, "user-1")
	require.True(t, ok)
	assert.Equal(t, ids, got)
}

func TestCache_ReadMiss(t *testing.T) {
	t.Parallel()
	cache, cleanup := newTestCache(t)
	defer cleanup()

	_, ok := cache.ReadFeedCache(context.Background(), "nobody")
	assert.False(t, ok)
}

func TestCache_InvalidateUser(t *testing.T) {
	t.Parallel()
	cache, cleanup := newTestCache(t)
	defer cleanup()

	ctx := context.Background()
	cache.WriteFeedCache(ctx, "user-2", []string{"X"}, 300*time.Second, 0)

	require.NoError(t, cache.InvalidateUser(ctx, "user-2"))

	_, ok := cache.ReadFeedCache(ctx, "user-2")
	assert.False(t, ok)
}

func TestCache_MarkSeenAndFilterUnseen(t *testing.T) {
	t.Parallel()
	cache, cleanup := newTestCache(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cache.MarkSeen(ctx, "user-3", []string{"A", "B"}))

	unseen := cache.FilterUnseen(ctx, "user-3", []string{"A", "B", "C"})
	assert.ElementsMatch(t, []string{"C"}, unseen)
}

func TestCache_FilterUnseen_EmptyInput(t *testing.T) {
	t.Parallel()
	cache, cleanup := newTestCache(t)
	defer cleanup()

	unseen := cache.FilterUnseen(context.Background(), "user-4", nil)
	assert.Empty(t, unseen)
}
