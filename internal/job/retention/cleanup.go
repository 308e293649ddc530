// Package retention implements the ambient data-retention cleanup loop:
// periodically deleting events older than the retention window and mirror
// rows that were tombstoned (is_deleted) long enough ago to be safely
// dropped, grounded on the teacher's CleanupService.RunPeriodic ticker
// loop adapted from job/upload/result retention to OLAP events/mirror
// retention.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
)

// mirrorTables lists every mirror table a tombstone sweep applies to,
// grounded on spec.md §5's four mirrored entities.
var mirrorTables = []string{"mirror_posts", "mirror_comments", "mirror_likes", "mirror_follows"}

// Service periodically deletes events and tombstoned mirror rows older
// than RetentionDays.
type Service struct {
	client        *olap.Client
	retentionDays int
}

// NewService constructs a Service. retentionDays <= 0 defaults to 90,
// matching the teacher's CleanupService default.
func NewService(client *olap.Client, retentionDays int) *Service {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Service{client: client, retentionDays: retentionDays}
}

// CleanupOnce runs a single deletion pass against the events table and
// every mirror table's tombstoned rows.
func (s *Service) CleanupOnce(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	if err := s.client.Exec(ctx, `DELETE FROM events WHERE event_time < $1`, cutoff); err != nil {
		return fmt.Errorf("cleanup events: %w", err)
	}

	for _, table := range mirrorTables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE is_deleted = true AND cdc_timestamp < $1`, table)
		if err := s.client.Exec(ctx, query, cutoff.UnixMilli()); err != nil {
			slog.Warn("mirror tombstone cleanup failed", slog.String("table", table), slog.Any("error", err))
		}
	}

	slog.Info("retention cleanup completed", slog.Time("cutoff", cutoff), slog.Int("retention_days", s.retentionDays))
	return nil
}

// RunPeriodic runs CleanupOnce immediately, then on every tick of
// interval, until ctx is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	if err := s.CleanupOnce(ctx); err != nil {
		slog.Error("initial retention cleanup failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("retention service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOnce(ctx); err != nil {
				slog.Error("periodic retention cleanup failed", slog.Any("error", err))
			}
		}
	}
}
