package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// copyThreshold is the row count from which inserts use the COPY protocol.
const copyThreshold = 32

// insertRows writes rows into table. Small sets go through one multi-row
// INSERT; large ones (a long import day) stream with COPY inside the
// current transaction.
func (r *repo) insertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	if tx := r.txm.GetTx(ctx); tx != nil && len(rows) >= copyThreshold {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return mapError(fmt.Errorf("copy into %s: %w", table, err), table)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy into %s: wrote %d of %d rows", table, n, len(rows))
		}
		return nil
	}

	q := r.sq.Insert(table).Columns(columns...)
	for _, row := range rows {
		q = q.Values(row...)
	}
	return r.exec(ctx, q, table)
}
