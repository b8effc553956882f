package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"slices"

	"hivepos/pkg/logger"
)

// Migrate applies every .sql file in fsys that is not yet recorded in
// sys_migrations, in name order, each in its own transaction.
func Migrate(ctx context.Context, txm *TxManager, fsys fs.FS) error {
	if _, err := txm.GetQuerier(ctx).Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sys_migrations (
			name       text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	for _, name := range names {
		err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			q := txm.GetQuerier(ctx)
			var applied bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sys_migrations WHERE name = $1)`, name).Scan(&applied); err != nil {
				return err
			}
			if applied {
				return nil
			}
			body, err := fs.ReadFile(fsys, name)
			if err != nil {
				return err
			}
			if _, err := q.Exec(ctx, string(body)); err != nil {
				return err
			}
			if _, err := q.Exec(ctx, `INSERT INTO sys_migrations (name) VALUES ($1)`, name); err != nil {
				return err
			}
			logger.Info(ctx, "migration applied", "name", name)
			return nil
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}
