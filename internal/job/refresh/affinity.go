package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
)

const affinityLiveTable = "feed_candidates_affinity"
const affinityStagingTable = "feed_candidates_affinity_staging"

// affinityInsertQuery implements spec.md §4.7's affinity defining query:
// first derive affinity_edges(user, author) from 90 days of likes
// (weight 1.0) and comments (weight 1.5), then for each edge pull the
// author's posts from the last 30 days and blend 0.20/0.40/0.40.
const affinityInsertQuery = `
WITH affinity_edges AS (
	SELECT l.user_id, p.author_id, SUM(1.0) AS weight
	FROM likes l
	JOIN posts p ON p.post_id = l.post_id
	WHERE l.is_deleted = false AND l.created_at >= NOW() - ($2 || ' days')::interval
	GROUP BY l.user_id, p.author_id
	UNION ALL
	SELECT c.user_id, p.author_id, SUM(1.5) AS weight
	FROM comments c
	JOIN posts p ON p.post_id = c.post_id
	WHERE c.is_deleted = false AND c.created_at >= NOW() - ($2 || ' days')::interval
	GROUP BY c.user_id, p.author_id
),
edges AS (
	SELECT user_id, author_id, SUM(weight) AS affinity
	FROM affinity_edges
	GROUP BY user_id, author_id
)
INSERT INTO %s (user_id, post_id, author_id, likes, comments, shares, freshness_score, engagement_score, affinity_score, combined_score)
SELECT
	e.user_id,
	p.post_id,
	p.author_id,
	COALESCE(l.likes, 0) AS likes,
	COALESCE(c.comments, 0) AS comments,
	COALESCE(s.shares, 0) AS shares,
	EXP(-0.0025 * EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 60.0) AS freshness_score,
	LN(1 + COALESCE(l.likes, 0) + 2 * COALESCE(c.comments, 0)) AS engagement_score,
	e.affinity AS affinity_score,
	0.20 * COALESCE(EXP(-0.0025 * EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 60.0), 0)
		+ 0.40 * COALESCE(LN(1 + COALESCE(l.likes, 0) + 2 * COALESCE(c.comments, 0)), 0)
		+ 0.40 * COALESCE(e.affinity, 0) AS combined_score
FROM edges e
JOIN posts p ON p.author_id = e.author_id AND p.is_deleted = false AND p.created_at >= NOW() - ($1 || ' days')::interval
LEFT JOIN (
	SELECT post_id, COUNT(*) AS likes FROM likes WHERE is_deleted = false AND created_at >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) l ON l.post_id = p.post_id
LEFT JOIN (
	SELECT post_id, COUNT(*) AS comments FROM comments WHERE is_deleted = false AND created_at >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) c ON c.post_id = p.post_id
LEFT JOIN (
	SELECT post_id, COUNT(*) AS shares FROM events WHERE action = 'share' AND event_time >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) s ON s.post_id = p.post_id
ORDER BY e.user_id, combined_score DESC
`

// affinityJob recomputes feed_candidates_affinity on its own interval.
type affinityJob struct {
	client     *olap.Client
	interval   time.Duration
	windowDays int
	edgeDays   int
	monitors   *observability.RankingScoreMonitors
}

// NewAffinityJob builds the C7 job that maintains feed_candidates_affinity.
func NewAffinityJob(client *olap.Client, interval time.Duration, windowDays, edgeWindowDays int, monitors *observability.RankingScoreMonitors) Job {
	return &affinityJob{client: client, interval: interval, windowDays: windowDays, edgeDays: edgeWindowDays, monitors: monitors}
}

func (j *affinityJob) Key() string             { return affinityLiveTable }
func (j *affinityJob) Interval() time.Duration { return j.interval }

func (j *affinityJob) Tick(ctx context.Context) error {
	if err := prepareStaging(ctx, j.client, affinityLiveTable, affinityStagingTable); err != nil {
		return fmt.Errorf("prepare staging: %w", err)
	}
	insert := fmt.Sprintf(affinityInsertQuery, affinityStagingTable)
	if err := j.client.Exec(ctx, insert, j.windowDays, j.edgeDays); err != nil {
		return fmt.Errorf("populate staging: %w", err)
	}
	if err := j.client.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s t USING (
			SELECT post_id, user_id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY combined_score DESC) AS rn
			FROM %s
		) ranked
		WHERE t.post_id = ranked.post_id AND t.user_id = ranked.user_id AND ranked.rn > 300`,
		affinityStagingTable, affinityStagingTable)); err != nil {
		return fmt.Errorf("trim staging to top 300 per user: %w", err)
	}
	if err := swapStaging(ctx, j.client, affinityLiveTable, affinityStagingTable); err != nil {
		return fmt.Errorf("swap staging: %w", err)
	}
	if avg, err := avgCombinedScore(ctx, j.client, affinityLiveTable); err == nil {
		j.monitors.ForTable(affinityLiveTable).RecordScore(avg)
	}
	return nil
}
