// Package olap provides a typed, retrying client for the analytic store
// that backs candidate reads and CDC/events writes.
package olap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feedpipeline/feedsvc/internal/domain"
)

// ddlKeywords is the defense-in-depth belt rejecting accidental DDL from
// query strings passed to the read helpers.
var ddlKeywords = []string{"drop ", "truncate ", "alter ", "create table", "create index"}

// Client wraps a dedicated *pgxpool.Pool for the analytic store, separate
// from the OLTP pool in internal/adapter/dbpool.
type Client struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// Config configures NewClient.
type Config struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// NewClient opens the OLAP pool with otelpgx tracing, matching how
// internal/adapter/dbpool.NewPool builds the OLTP pool.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("olap: parse dsn: %w", err)
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
		return nil, fmt.Errorf("olap: connect: %w", err)
	}
	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record olap pgx stats", slog.Any("error", err))
	}

	qt := cfg.QueryTimeout
	if qt <= 0 {
		qt = 2 * time.Second
	}
	return &Client{pool: pool, queryTimeout: qt}, nil
}

// Close releases the pool.
func (c *Client) Close() { c.pool.Close() }

// HealthCheck pings the analytic store, used by readiness checks.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	return c.pool.Ping(ctx)
}

func rejectDDL(sql string) error {
	lower := strings.ToLower(sql)
	for _, kw := range ddlKeywords {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("%w: query contains DDL keyword %q", domain.ErrInvalidArgument, kw)
		}
	}
	return nil
}

// Query runs sql as a read-only statement and scans every row via scan,
// under the client's query deadline. It is the Go analogue of spec's
// query<T>(sql) -> Vec<T>, using pgx's row-scanning idiom instead of a
// generic collect helper so callers keep full control over column order.
func Query[T any](ctx context.Context, c *Client, sql string, args []any, scan func(pgx.Rows) (T, error)) ([]T, error) {
	if err := rejectDDL(sql); err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	conn, err := c.pool.Acquire(qctx)
	if err != nil {
		return nil, fmt.Errorf("olap: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(qctx, "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"); err != nil {
		return nil, fmt.Errorf("olap: set read only: %w", err)
	}

	rows, err := conn.Query(qctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("olap: query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("olap: scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("olap: rows: %w", err)
	}
	return out, nil
}

// QueryWithRetry wraps Query with exponential backoff (100ms initial,
// doubling, capped at 2s) for up to maxRetries attempts. Non-retryable
// errors (syntax, schema mismatch, domain.ErrInvalidArgument) propagate on
// the first attempt.
func QueryWithRetry[T any](ctx context.Context, c *Client, sql string, args []any, scan func(pgx.Rows) (T, error), maxRetries int) ([]T, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // bounded by attempt count below, not elapsed wall time

	var out []T
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		out, err = Query(ctx, c, sql, args, scan)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if attempt >= maxRetries {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return out, nil
}

// InsertBatch inserts rows into table using a single multi-row INSERT built
// from columns/values, under the client's query deadline. Deadline expiry
// here is fatal (CDC/events writes do not retry mid-flush; the caller's
// batch-retry loop handles re-attempts).
func (c *Client) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+1)
			args = append(args, row[j])
		}
		sb.WriteString(")")
	}

	if _, err := c.pool.Exec(qctx, sb.String(), args...); err != nil {
		return fmt.Errorf("olap: insert batch into %s: %w", table, err)
	}
	return nil
}

// Exec runs a single statement (used for upserts and staging-table DDL in
// C5/C7) under the client's query deadline.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) error {
	qctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	_, err := c.pool.Exec(qctx, sql, args...)
	if err != nil {
		return fmt.Errorf("olap: exec: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single transaction, for the staging-swap DDL
// sequence in C7 that must be atomic.
func (c *Client) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("olap: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("olap: commit tx: %w", err)
	}
	return nil
}

// IsTransient classifies an OLAP error as retryable using the same
// substring idiom as domain.RetryConfig, plus deadline-exceeded which is
// always retryable for ranking reads.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, nonRetryable := range []string{"invalid argument", "syntax error", "schema", "does not exist"} {
		if strings.Contains(lower, nonRetryable) {
			return false
		}
	}
	for _, retryable := range domain.DefaultRetryConfig().RetryableErrors {
		if strings.Contains(lower, retryable) {
			return true
		}
	}
	return strings.Contains(lower, "connection") || strings.Contains(lower, "reset") || strings.Contains(lower, "eof")
}
