// Package refresh implements the candidate refresh job (C7): three
// independent jobs, each recomputing one candidate table on its own
// interval via a staging-table-and-swap.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
)

// Job is the capability set a refresh job exposes to the Supervisor,
// generalizing the teacher's single CleanupService into a small interface
// so jobs are values, not a compile-time enumeration.
type Job interface {
	Key() string
	Interval() time.Duration
	Tick(ctx context.Context) error
}

// Supervisor drives a set of Jobs, each on its own ticker and goroutine,
// grounded on CleanupService.RunPeriodic's ticker-loop idiom. A panicking
// or erroring Job never stops its siblings: failures are recovered,
// logged, and counted.
type Supervisor struct {
	jobs    []Job
	metrics *observability.Metrics
}

// NewSupervisor builds a Supervisor over the given jobs.
func NewSupervisor(metrics *observability.Metrics, jobs ...Job) *Supervisor {
	return &Supervisor{jobs: jobs, metrics: metrics}
}

// Run blocks until ctx is cancelled, driving every job concurrently.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		j := j
		g.Go(func() error {
			s.runJob(gctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Supervisor) runJob(ctx context.Context, j Job) {
	s.tick(ctx, j)

	ticker := time.NewTicker(j.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh job stopping", slog.String("table", j.Key()))
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("refresh job panicked", slog.String("table", j.Key()), slog.Any("recover", r))
			s.metrics.IncJobRefreshFailure(j.Key())
		}
	}()

	start := time.Now()
	err := j.Tick(ctx)
	s.metrics.ObserveJobRefresh(j.Key(), time.Since(start).Seconds())
	if err != nil {
		slog.Error("refresh job failed, live table untouched", slog.String("table", j.Key()), slog.Any("error", err))
		s.metrics.IncJobRefreshFailure(j.Key())
	}
}
