package ranking

import (
	"context"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpipeline/feedsvc/internal/adapter/feedcache"
	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/domain"
	"github.com/feedpipeline/feedsvc/internal/resilience"
)

func TestMergeAndDedupe_HighestScoreWins(t *testing.T) {
	t.Parallel()
	metrics := observability.NewMetrics()

	all := []domain.Candidate{
		{PostID: "A", CombinedScore: 4.72, Source: "followees"},
		{PostID: "A", CombinedScore: 3.10, Source: "affinity"},
		{PostID: "B", CombinedScore: 3.62, Source: "trending"},
		{PostID: "C", CombinedScore: 1.00, Source: "followees"},
	}

	ids := mergeAndDedupe(all, metrics)
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestMergeAndDedupe_NaNSinksToZeroClass(t *testing.T) {
	t.Parallel()
	metrics := observability.NewMetrics()

	all := []domain.Candidate{
		{PostID: "D", CombinedScore: math.NaN()},
		{PostID: "E", CombinedScore: 2.0},
	}

	ids := mergeAndDedupe(all, metrics)
	assert.Equal(t, []string{"E", "D"}, ids)
}

func newTestService(t *testing.T) (*Service, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := feedcache.New(rdb, nil)
	breaker := resilience.NewBreaker("olap", 3, 3, time.Minute, nil)

	svc := NewService(nil, breaker, cache, nil, observability.NewMetrics(), Config{
		PrefetchMultiplier: 5,
		MaxCandidates:      1000,
		CacheBaseTTLSecs:   300,
		FallbackTTLSecs:    60,
	})

	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return svc, cleanup
}

func TestFallback_CacheHitPaginatesWithoutTouchingOLTP(t *testing.T) {
	t.Parallel()
	svc, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	svc.cache.WriteFeedCache(ctx, "u1", []string{"P1", "P2", "P3"}, 300*time.Second, 0)

	page := svc.fallback(ctx, "u1", 2, 1)
	assert.Equal(t, []string{"P2", "P3"}, page.PostIDs)
	assert.False(t, page.HasMore)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, domain.SourceCacheFallback, page.Source)
}

func TestGetFeed_OpenBreakerGoesStraightToFallback(t *testing.T) {
	t.Parallel()
	svc, cleanup := newTestService(t)
	defer cleanup()

	ctx := context.Background()
	svc.cache.WriteFeedCache(ctx, "u2", []string{"X", "Y"}, 300*time.Second, 0)

	boom := assert.AnError
	_, _ = resilience.Call(ctx, svc.breaker, func(context.Context) (int, error) { return 0, boom })
	_, _ = resilience.Call(ctx, svc.breaker, func(context.Context) (int, error) { return 0, boom })
	_, _ = resilience.Call(ctx, svc.breaker, func(context.Context) (int, error) { return 0, boom })
	require.Equal(t, resilience.StateOpen, svc.breaker.State())

	page, err := svc.GetFeed(ctx, "u2", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCacheFallback, page.Source)
	assert.Equal(t, []string{"X", "Y"}, page.PostIDs)
}
