package ranking

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/feedpipeline/feedsvc/internal/adapter/dbpool"
	"github.com/feedpipeline/feedsvc/internal/adapter/feedcache"
	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/domain"
	"github.com/feedpipeline/feedsvc/internal/resilience"
)

const (
	followeesQuery = `SELECT post_id, author_id, likes, comments, shares, freshness_score, engagement_score, affinity_score, combined_score
		FROM feed_candidates_followees WHERE user_id = $1 ORDER BY combined_score DESC LIMIT $2`
	trendingQuery = `SELECT post_id, author_id, likes, comments, shares, freshness_score, engagement_score, affinity_score, combined_score
		FROM feed_candidates_trending ORDER BY combined_score DESC LIMIT $1`
	affinityQuery = `SELECT post_id, author_id, likes, comments, shares, freshness_score, engagement_score, affinity_score, combined_score
		FROM feed_candidates_affinity WHERE user_id = $1 ORDER BY combined_score DESC LIMIT $2`
	oltpLatestPostsQuery = `SELECT post_id FROM posts WHERE is_deleted = false ORDER BY created_at DESC LIMIT $1`
)

// Config holds the tunables spec.md §6 names for C8.
type Config struct {
	PrefetchMultiplier int
	MaxCandidates      int
	CacheBaseTTLSecs   int
	FallbackTTLSecs    int
	FreshnessWeight    float64
	EngagementWeight   float64
	AffinityWeight     float64
	BaselineLambda     float64
	OLTPAcquireTimeout int // seconds
}

// Service implements spec.md §4.8's single public operation, get_feed.
type Service struct {
	olapClient *olap.Client
	breaker    *resilience.Breaker
	cache      *feedcache.Cache
	oltp       *dbpool.Pool
	metrics    *observability.Metrics
	cfg        Config
}

// NewService wires C8's dependencies: the shared OLAP breaker (so three
// candidate queries trip one circuit, not three), the feed cache, and the
// OLTP pool used only by the fallback path.
func NewService(olapClient *olap.Client, breaker *resilience.Breaker, cache *feedcache.Cache, oltp *dbpool.Pool, metrics *observability.Metrics, cfg Config) *Service {
	return &Service{olapClient: olapClient, breaker: breaker, cache: cache, oltp: oltp, metrics: metrics, cfg: cfg}
}

func scanCandidate(rows pgx.Rows) (domain.Candidate, error) {
	var c domain.Candidate
	err := rows.Scan(&c.PostID, &c.AuthorID, &c.Likes, &c.Comments, &c.Shares, &c.FreshnessScore, &c.EngagementScore, &c.AffinityScore, &c.CombinedScore)
	return c, err
}

func scanPostID(rows pgx.Rows) (string, error) {
	var id string
	err := rows.Scan(&id)
	return id, err
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// GetFeed reads candidates in parallel, merges, ranks, paginates, caches,
// and falls back per spec.md §4.8.
func (s *Service) GetFeed(ctx context.Context, userID string, limit, offset int) (domain.FeedPage, error) {
	if s.breaker.State() == resilience.StateOpen {
		return s.fallback(ctx, userID, limit, offset), nil
	}

	candidateLimit := min(max(offset+limit, limit*s.cfg.PrefetchMultiplier), s.cfg.MaxCandidates)

	all, errCount := s.fetchCandidates(ctx, userID, candidateLimit)
	if errCount >= 3 {
		return s.fallback(ctx, userID, limit, offset), nil
	}
	if errCount >= 2 {
		s.metrics.IncSourceError("multiple")
	}

	ids := mergeAndDedupe(all, s.metrics)

	total := len(ids)
	end := min(offset+limit, total)
	var page []string
	if offset < total {
		page = ids[offset:end]
	}
	hasMore := offset+limit < total

	s.cache.WriteFeedCache(ctx, userID, ids, secs(s.cfg.CacheBaseTTLSecs), 0)

	return domain.FeedPage{PostIDs: page, HasMore: hasMore, TotalCount: total, Source: domain.SourcePrimary}, nil
}

// fetchCandidates runs the three candidate queries concurrently, each
// wrapped by the single shared OLAP breaker, and tolerates per-source
// errors by contributing an empty list for that source.
func (s *Service) fetchCandidates(ctx context.Context, userID string, candidateLimit int) ([]domain.Candidate, int) {
	var followees, trending, affinity []domain.Candidate
	var errCount int32

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := resilience.Call(gctx, s.breaker, func(c context.Context) ([]domain.Candidate, error) {
			return olap.Query(c, s.olapClient, followeesQuery, []any{userID, candidateLimit}, scanCandidate)
		})
		if err != nil {
			atomic.AddInt32(&errCount, 1)
			s.metrics.IncSourceError("followees")
			slog.Warn("followees candidate source failed", slog.String("user_id", userID), slog.Any("error", err))
			return nil
		}
		followees = res
		return nil
	})
	g.Go(func() error {
		res, err := resilience.Call(gctx, s.breaker, func(c context.Context) ([]domain.Candidate, error) {
			return olap.Query(c, s.olapClient, trendingQuery, []any{candidateLimit}, scanCandidate)
		})
		if err != nil {
			atomic.AddInt32(&errCount, 1)
			s.metrics.IncSourceError("trending")
			slog.Warn("trending candidate source failed", slog.Any("error", err))
			return nil
		}
		trending = res
		return nil
	})
	g.Go(func() error {
		res, err := resilience.Call(gctx, s.breaker, func(c context.Context) ([]domain.Candidate, error) {
			return olap.Query(c, s.olapClient, affinityQuery, []any{userID, candidateLimit}, scanCandidate)
		})
		if err != nil {
			atomic.AddInt32(&errCount, 1)
			s.metrics.IncSourceError("affinity")
			slog.Warn("affinity candidate source failed", slog.String("user_id", userID), slog.Any("error", err))
			return nil
		}
		affinity = res
		return nil
	})
	_ = g.Wait()

	s.metrics.ObserveCandidateCount("followees", len(followees))
	s.metrics.ObserveCandidateCount("trending", len(trending))
	s.metrics.ObserveCandidateCount("affinity", len(affinity))

	all := make([]domain.Candidate, 0, len(followees)+len(trending)+len(affinity))
	all = append(all, followees...)
	all = append(all, trending...)
	all = append(all, affinity...)
	return all, int(errCount)
}

// mergeAndDedupe sorts candidates by combined_score descending (NaN-safe,
// stable) and keeps only the first (highest-scoring) occurrence of each
// post_id. A NaN score is counted and logged, then ranked as if it were 0.
func mergeAndDedupe(all []domain.Candidate, metrics *observability.Metrics) []string {
	nanAsZero := func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return v
	}
	sort.SliceStable(all, func(i, j int) bool {
		c := safeCompare(all[i].CombinedScore, all[j].CombinedScore, func() {
			metrics.IncNaNScore()
			slog.Warn("incomparable scores during ranking merge",
				slog.String("post_a", all[i].PostID), slog.Float64("score_a", all[i].CombinedScore),
				slog.String("post_b", all[j].PostID), slog.Float64("score_b", all[j].CombinedScore))
		})
		if c == 0 {
			c = safeCompare(nanAsZero(all[i].CombinedScore), nanAsZero(all[j].CombinedScore), nil)
		}
		return c < 0
	})

	seen := make(map[string]struct{}, len(all))
	ids := make([]string, 0, len(all))
	for _, c := range all {
		if _, ok := seen[c.PostID]; ok {
			continue
		}
		seen[c.PostID] = struct{}{}
		ids = append(ids, c.PostID)
	}
	return ids
}

// fallback serves from the feed cache, then OLTP via backpressure-aware
// acquire, then an empty degraded page, per spec.md §4.8's fallback path.
func (s *Service) fallback(ctx context.Context, userID string, limit, offset int) domain.FeedPage {
	if ids, ok := s.cache.ReadFeedCache(ctx, userID); ok && offset < len(ids) {
		end := min(offset+limit, len(ids))
		return domain.FeedPage{
			PostIDs:    ids[offset:end],
			HasMore:    offset+limit < len(ids),
			TotalCount: len(ids),
			Source:     domain.SourceCacheFallback,
		}
	}

	conn, err := s.oltp.AcquireWithBackpressure(ctx, secs(s.cfg.OLTPAcquireTimeout))
	if err != nil {
		var exhausted *dbpool.PoolExhausted
		if errors.As(err, &exhausted) {
			slog.Warn("oltp pool exhausted during fallback", slog.String("user_id", userID), slog.Any("error", err))
		}
		return domain.FeedPage{Source: domain.SourceDegraded}
	}
	defer conn.Release()

	queryLimit := offset + limit + 1
	rows, err := conn.Query(ctx, oltpLatestPostsQuery, queryLimit)
	if err != nil {
		slog.Warn("oltp fallback query failed", slog.Any("error", err))
		return domain.FeedPage{Source: domain.SourceDegraded}
	}
	var ids []string
	for rows.Next() {
		id, err := scanPostID(rows)
		if err != nil {
			rows.Close()
			return domain.FeedPage{Source: domain.SourceDegraded}
		}
		ids = append(ids, id)
	}
	rows.Close()

	total := len(ids)
	hasMore := total > offset+limit
	end := min(offset+limit, total)
	var page []string
	if offset < total {
		page = ids[offset:end]
	}

	s.cache.WriteFeedCache(ctx, userID, page, secs(s.cfg.FallbackTTLSecs), 0)

	return domain.FeedPage{PostIDs: page, HasMore: hasMore, TotalCount: total, Source: domain.SourceOLTPFallback}
}
