package cdcingest

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/domain"
)

// upsertQuery relies on the WHERE clause, not a separate SELECT, to give
// the idempotency check of spec.md §4.5 step 2: a row with an
// equal-or-greater cdc_timestamp already present is left untouched.
const upsertQuery = `
INSERT INTO %s (primary_key, data, cdc_timestamp, is_deleted)
VALUES ($1, $2, $3, $4)
ON CONFLICT (primary_key) DO UPDATE SET
	data = EXCLUDED.data,
	cdc_timestamp = EXCLUDED.cdc_timestamp,
	is_deleted = EXCLUDED.is_deleted
WHERE %s.cdc_timestamp < EXCLUDED.cdc_timestamp
`

// upsertMirrorRowTx applies one envelope inside an existing transaction.
func upsertMirrorRowTx(ctx context.Context, tx pgx.Tx, table string, env Envelope) error {
	isDeleted := env.Op == domain.MirrorOpDelete
	_, err := tx.Exec(ctx, fmt.Sprintf(upsertQuery, table, table), env.Key, env.Payload, env.Timestamp, isDeleted)
	if err != nil {
		return fmt.Errorf("upsert mirror row: %w", err)
	}
	return nil
}

// upsertMirrorRow applies one envelope outside of a transaction, used by
// the per-record degraded path after a batch flush exhausts retries.
func upsertMirrorRow(ctx context.Context, client *olap.Client, table string, env Envelope) error {
	isDeleted := env.Op == domain.MirrorOpDelete
	return client.Exec(ctx, fmt.Sprintf(upsertQuery, table, table), env.Key, env.Payload, env.Timestamp, isDeleted)
}
