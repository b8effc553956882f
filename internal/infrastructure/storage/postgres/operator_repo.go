package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/domain/auth"
)

const tableOperators = "operators"

var operatorColumns = columnsOf[auth.Operator]()

// OperatorRepo implements auth.OperatorRepository. Roles are a text[] column.
type OperatorRepo struct {
	repo
}

var _ auth.OperatorRepository = (*OperatorRepo)(nil)

// NewOperatorRepo creates an operator repository.
func NewOperatorRepo(txm *TxManager) *OperatorRepo {
	return &OperatorRepo{repo: newRepo(txm)}
}

func (r *OperatorRepo) Create(ctx context.Context, op *auth.Operator) error {
	return r.exec(ctx, r.sq.Insert(tableOperators).Columns(operatorColumns...).Values(rowOf(op, operatorColumns)...), "operator")
}

func (r *OperatorRepo) GetByEmail(ctx context.Context, email string) (*auth.Operator, error) {
	var op auth.Operator
	q := r.sq.Select(operatorColumns...).From(tableOperators).Where(squirrel.Eq{"email": auth.NormalizeEmail(email)})
	if err := r.get(ctx, &op, q, "operator", email); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *OperatorRepo) UpdateLoginState(ctx context.Context, op *auth.Operator) error {
	n, err := r.execCount(ctx, r.sq.Update(tableOperators).
		Set("failed_login_attempts", op.FailedLoginAttempts).
		Set("locked_until", op.LockedUntil).
		Set("last_login_at", op.LastLoginAt).
		Where(squirrel.Eq{"id": op.ID}), "operator")
	if err != nil {
		return err
	}
	return expectOne(n, "operator", op.ID.String())
}
