package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"hivepos/internal/core/apperror"
)

const pgUniqueViolation = "23505"

// repo holds what every repository needs: the transaction manager and a
// squirrel builder emitting $n placeholders.
type repo struct {
	txm *TxManager
	sq  squirrel.StatementBuilderType
}

func newRepo(txm *TxManager) repo {
	return repo{
		txm: txm,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *repo) get(ctx context.Context, dst any, q squirrel.Sqlizer, entity string, key any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, key)
		}
		return fmt.Errorf("get %s: %w", entity, err)
	}
	return nil
}

func (r *repo) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer, entity string) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		return fmt.Errorf("list %s: %w", entity, err)
	}
	return nil
}

func (r *repo) exec(ctx context.Context, q squirrel.Sqlizer, entity string) error {
	_, err := r.execCount(ctx, q, entity)
	return err
}

func (r *repo) execCount(ctx context.Context, q squirrel.Sqlizer, entity string) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", entity, err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(fmt.Errorf("write %s: %w", entity, err), entity)
	}
	return tag.RowsAffected(), nil
}

func (r *repo) count(ctx context.Context, q squirrel.SelectBuilder, entity string) (int64, error) {
	sql, args, err := r.sq.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s count: %w", entity, err)
	}
	var n int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return n, nil
}

// mapError turns a unique violation into a Duplicate error naming the
// violated constraint. Other errors pass through.
func mapError(err error, entity string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperror.NewDuplicate(entity, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
	}
	return err
}

func expectOne(n int64, entity string, key any) error {
	if n == 0 {
		return apperror.NewNotFound(entity, key)
	}
	return nil
}

func (r *repo) scanInt(ctx context.Context, q squirrel.Sqlizer, what string) (int, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s query: %w", what, err)
	}
	var n int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query %s: %w", what, err)
	}
	return int(n), nil
}
