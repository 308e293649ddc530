package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
)

const trendingLiveTable = "feed_candidates_trending"
const trendingStagingTable = "feed_candidates_trending_staging"

// trendingInsertQuery implements spec.md §4.7's trending defining query:
// the same freshness/engagement formulas over a 14-day window across all
// live posts, with no affinity term, blended 0.50/0.50.
const trendingInsertQuery = `
INSERT INTO %s (post_id, author_id, likes, comments, shares, freshness_score, engagement_score, affinity_score, combined_score)
SELECT
	p.post_id,
	p.author_id,
	COALESCE(l.likes, 0) AS likes,
	COALESCE(c.comments, 0) AS comments,
	COALESCE(s.shares, 0) AS shares,
	EXP(-0.0025 * EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 60.0) AS freshness_score,
	LN(1 + COALESCE(l.likes, 0) + 2 * COALESCE(c.comments, 0)) AS engagement_score,
	0 AS affinity_score,
	0.50 * COALESCE(EXP(-0.0025 * EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 60.0), 0)
		+ 0.50 * COALESCE(LN(1 + COALESCE(l.likes, 0) + 2 * COALESCE(c.comments, 0)), 0) AS combined_score
FROM posts p
LEFT JOIN (
	SELECT post_id, COUNT(*) AS likes FROM likes WHERE is_deleted = false AND created_at >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) l ON l.post_id = p.post_id
LEFT JOIN (
	SELECT post_id, COUNT(*) AS comments FROM comments WHERE is_deleted = false AND created_at >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) c ON c.post_id = p.post_id
LEFT JOIN (
	SELECT post_id, COUNT(*) AS shares FROM events WHERE action = 'share' AND event_time >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) s ON s.post_id = p.post_id
WHERE p.is_deleted = false AND p.created_at >= NOW() - ($1 || ' days')::interval
ORDER BY combined_score DESC
LIMIT 1000
`

// trendingJob recomputes feed_candidates_trending on its own interval.
type trendingJob struct {
	client     *olap.Client
	interval   time.Duration
	windowDays int
	monitors   *observability.RankingScoreMonitors
}

// NewTrendingJob builds the C7 job that maintains feed_candidates_trending.
func NewTrendingJob(client *olap.Client, interval time.Duration, windowDays int, monitors *observability.RankingScoreMonitors) Job {
	return &trendingJob{client: client, interval: interval, windowDays: windowDays, monitors: monitors}
}

func (j *trendingJob) Key() string             { return trendingLiveTable }
func (j *trendingJob) Interval() time.Duration { return j.interval }

func (j *trendingJob) Tick(ctx context.Context) error {
	if err := prepareStaging(ctx, j.client, trendingLiveTable, trendingStagingTable); err != nil {
		return fmt.Errorf("prepare staging: %w", err)
	}
	insert := fmt.Sprintf(trendingInsertQuery, trendingStagingTable)
	if err := j.client.Exec(ctx, insert, j.windowDays); err != nil {
		return fmt.Errorf("populate staging: %w", err)
	}
	if err := swapStaging(ctx, j.client, trendingLiveTable, trendingStagingTable); err != nil {
		return fmt.Errorf("swap staging: %w", err)
	}
	if avg, err := avgCombinedScore(ctx, j.client, trendingLiveTable); err == nil {
		j.monitors.ForTable(trendingLiveTable).RecordScore(avg)
	}
	return nil
}
