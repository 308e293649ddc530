// Package dbpool wraps the OLTP connection pool with backpressure: an
// acquisition above a configured utilization threshold fails fast instead
// of queuing behind the pool's own acquire timeout.
package dbpool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
)

// PoolExhausted is returned by AcquireWithBackpressure when utilization is
// at or above the configured threshold at check time.
type PoolExhausted struct {
	Service     string
	Utilization float64
	Threshold   float64
}

func (e *PoolExhausted) Error() string {
	return fmt.Sprintf("pool exhausted: service=%s utilization=%.3f threshold=%.3f", e.Service, e.Utilization, e.Threshold)
}

// Pool wraps a *pgxpool.Pool with a pre-acquire utilization check.
type Pool struct {
	pool      *pgxpool.Pool
	service   string
	threshold float64
	metrics   *observability.Metrics
}

// Config configures NewPool.
type Config struct {
	DSN            string
	Service        string
	MaxConns       int32
	ConnectTimeout time.Duration
	Threshold      float64
	Metrics        *observability.Metrics
}

// NewPool opens the pool, validates the threshold range, and wires
// otelpgx tracing the same way the OLAP client's pool does.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("dbpool: threshold %.3f out of range [0,1]", cfg.Threshold)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("dbpool: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	pcfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("dbpool: connect: %w", err)
	}
	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx stats", slog.String("service", cfg.Service), slog.Any("error", err))
	}

	return &Pool{
		pool:      pool,
		service:   cfg.Service,
		threshold: cfg.Threshold,
		metrics:   cfg.Metrics,
	}, nil
}

// Utilization returns acquired connections over the pool's configured
// maximum, 0 if the maximum is 0.
func (p *Pool) Utilization() float64 {
	stat := p.pool.Stat()
	total := stat.MaxConns()
	if total == 0 {
		return 0
	}
	return float64(stat.AcquiredConns()) / float64(total)
}

// Acquire acquires a connection with no backpressure check, for callers
// that already hold a circuit breaker or other admission control.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return p.pool.Acquire(ctx)
}

// AcquireWithBackpressure fails immediately with *PoolExhausted if
// utilization is at or above threshold; otherwise it proceeds to the
// underlying acquire with acquireTimeout bounding the wait.
func (p *Pool) AcquireWithBackpressure(ctx context.Context, acquireTimeout time.Duration) (*pgxpool.Conn, error) {
	util := p.Utilization()
	if util >= p.threshold {
		if p.metrics != nil {
			p.metrics.IncPoolExhausted(p.service)
		}
		return nil, &PoolExhausted{Service: p.service, Utilization: util, Threshold: p.threshold}
	}

	actx := ctx
	var cancel context.CancelFunc
	if acquireTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, acquireTimeout)
		defer cancel()
	}
	conn, err := p.pool.Acquire(actx)
	if err != nil {
		return nil, fmt.Errorf("dbpool: acquire: %w", err)
	}
	return conn, nil
}

// StartUtilizationSampler samples utilization into the
// db_pool_utilization_ratio gauge every interval until ctx is done,
// grounded on the teacher's CleanupService.RunPeriodic ticker idiom.
func (p *Pool) StartUtilizationSampler(ctx context.Context, interval time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.SetPoolUtilization(p.service, p.Utilization())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.metrics.SetPoolUtilization(p.service, p.Utilization())
		}
	}
}

// Stat exposes the underlying pool statistics, used by readiness checks.
func (p *Pool) Stat() *pgxpool.Stat { return p.pool.Stat() }

// Ping verifies connectivity, used by readiness checks.
func (p *Pool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close releases all pooled connections.
func (p *Pool) Close() { p.pool.Close() }

// Raw returns the underlying pgxpool.Pool for callers needing direct SQL
// access (the OLTP fallback path in C8 queries through here).
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }
