package refresh

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
)

// prepareStaging (re)creates an empty staging table matching the live
// table's schema.
func prepareStaging(ctx context.Context, client *olap.Client, live, staging string) error {
	if err := client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging)); err != nil {
		return err
	}
	return client.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", staging, live))
}

// swapStaging atomically exchanges staging for live: live -> live_old,
// staging -> live, drop live_old, all in one transaction so readers never
// observe a torn or empty table.
func swapStaging(ctx context.Context, client *olap.Client, live, staging string) error {
	old := live + "_old"
	return client.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", live, old)); err != nil {
			return fmt.Errorf("rename live to old: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, live)); err != nil {
			return fmt.Errorf("rename staging to live: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE %s", old)); err != nil {
			return fmt.Errorf("drop old: %w", err)
		}
		return nil
	})
}

// avgCombinedScore reports the mean combined_score in table, used to feed
// the ranking score drift monitor after a refresh.
func avgCombinedScore(ctx context.Context, client *olap.Client, table string) (float64, error) {
	rows, err := olap.Query(ctx, client, fmt.Sprintf("SELECT COALESCE(AVG(combined_score), 0) FROM %s", table), nil, func(r pgx.Rows) (float64, error) {
		var v float64
		err := r.Scan(&v)
		return v, err
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0], nil
}
