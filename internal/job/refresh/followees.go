package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
)

const followeesLiveTable = "feed_candidates_followees"
const followeesStagingTable = "feed_candidates_followees_staging"

// followeesInsertQuery implements spec.md §4.7's followees defining query:
// for each live follow edge, pull the author's recent posts, attach
// interaction counts, and blend freshness/engagement/affinity with
// weights 0.35/0.40/0.25.
const followeesInsertQuery = `
INSERT INTO %s (user_id, post_id, author_id, likes, comments, shares, freshness_score, engagement_score, affinity_score, combined_score)
SELECT
	f.follower_id AS user_id,
	p.post_id,
	p.author_id,
	COALESCE(l.likes, 0) AS likes,
	COALESCE(c.comments, 0) AS comments,
	COALESCE(s.shares, 0) AS shares,
	EXP(-0.0025 * EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 60.0) AS freshness_score,
	LN(1 + COALESCE(l.likes, 0) + 2 * COALESCE(c.comments, 0)) AS engagement_score,
	COALESCE(aff.affinity, 0) AS affinity_score,
	0.35 * COALESCE(EXP(-0.0025 * EXTRACT(EPOCH FROM (NOW() - p.created_at)) / 60.0), 0)
		+ 0.40 * COALESCE(LN(1 + COALESCE(l.likes, 0) + 2 * COALESCE(c.comments, 0)), 0)
		+ 0.25 * COALESCE(aff.affinity, 0) AS combined_score
FROM follows f
JOIN posts p ON p.author_id = f.author_id AND p.is_deleted = false AND p.created_at >= NOW() - ($1 || ' days')::interval
LEFT JOIN (
	SELECT post_id, COUNT(*) AS likes FROM likes WHERE is_deleted = false AND created_at >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) l ON l.post_id = p.post_id
LEFT JOIN (
	SELECT post_id, COUNT(*) AS comments FROM comments WHERE is_deleted = false AND created_at >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) c ON c.post_id = p.post_id
LEFT JOIN (
	SELECT post_id, COUNT(*) AS shares FROM events WHERE action = 'share' AND event_time >= NOW() - ($1 || ' days')::interval GROUP BY post_id
) s ON s.post_id = p.post_id
LEFT JOIN (
	SELECT user_id, author_id, SUM(weight) AS affinity
	FROM (
		SELECT l2.user_id, p2.author_id, SUM(1.0) AS weight
		FROM likes l2
		JOIN posts p2 ON p2.post_id = l2.post_id
		WHERE l2.is_deleted = false AND l2.created_at >= NOW() - ($2 || ' days')::interval
		GROUP BY l2.user_id, p2.author_id
		UNION ALL
		SELECT c2.user_id, p2.author_id, SUM(1.5) AS weight
		FROM comments c2
		JOIN posts p2 ON p2.post_id = c2.post_id
		WHERE c2.is_deleted = false AND c2.created_at >= NOW() - ($2 || ' days')::interval
		GROUP BY c2.user_id, p2.author_id
	) edge_weights
	GROUP BY user_id, author_id
) aff ON aff.user_id = f.follower_id AND aff.author_id = f.author_id
WHERE f.is_deleted = false
ORDER BY f.follower_id, combined_score DESC
`

// followeesJob recomputes feed_candidates_followees on its own interval,
// grounded on CleanupService's periodic-sweep idiom and spec.md §4.7's
// followees defining query.
type followeesJob struct {
	client     *olap.Client
	interval   time.Duration
	windowDays int
	edgeDays   int
	monitors   *observability.RankingScoreMonitors
}

// NewFolloweesJob builds the C7 job that maintains feed_candidates_followees.
func NewFolloweesJob(client *olap.Client, interval time.Duration, windowDays, edgeWindowDays int, monitors *observability.RankingScoreMonitors) Job {
	return &followeesJob{client: client, interval: interval, windowDays: windowDays, edgeDays: edgeWindowDays, monitors: monitors}
}

func (j *followeesJob) Key() string           { return followeesLiveTable }
func (j *followeesJob) Interval() time.Duration { return j.interval }

func (j *followeesJob) Tick(ctx context.Context) error {
	if err := prepareStaging(ctx, j.client, followeesLiveTable, followeesStagingTable); err != nil {
		return fmt.Errorf("prepare staging: %w", err)
	}
	insert := fmt.Sprintf(followeesInsertQuery, followeesStagingTable)
	if err := j.client.Exec(ctx, insert, j.windowDays, j.edgeDays); err != nil {
		return fmt.Errorf("populate staging: %w", err)
	}
	if err := j.client.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s t USING (
			SELECT post_id, user_id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY combined_score DESC) AS rn
			FROM %s
		) ranked
		WHERE t.post_id = ranked.post_id AND t.user_id = ranked.user_id AND ranked.rn > 500`,
		followeesStagingTable, followeesStagingTable)); err != nil {
		return fmt.Errorf("trim staging to top 500 per follower: %w", err)
	}
	if err := swapStaging(ctx, j.client, followeesLiveTable, followeesStagingTable); err != nil {
		return fmt.Errorf("swap staging: %w", err)
	}
	if avg, err := avgCombinedScore(ctx, j.client, followeesLiveTable); err == nil {
		j.monitors.ForTable(followeesLiveTable).RecordScore(avg)
	}
	return nil
}
