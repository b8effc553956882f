package memory

import (
	"context"
	"slices"

	"hivepos/internal/core/apperror"
	"hivepos/internal/domain/auth"
)

// OperatorRepo implements auth.OperatorRepository.
type OperatorRepo struct{ s *Store }

var _ auth.OperatorRepository = (*OperatorRepo)(nil)

// Operators returns the operator repository.
func (s *Store) Operators() *OperatorRepo { return &OperatorRepo{s: s} }

func (r *OperatorRepo) Create(ctx context.Context, op *auth.Operator) error {
	var err error
	stored := *op
	stored.Roles = slices.Clone(op.Roles)
	r.s.write(ctx, func(st *state) {
		if _, taken := st.operators[op.Email]; taken {
			err = apperror.NewDuplicate("operator", "email", op.Email)
			return
		}
		st.operators[op.Email] = stored
	})
	return err
}

func (r *OperatorRepo) GetByEmail(_ context.Context, email string) (*auth.Operator, error) {
	var out *auth.Operator
	r.s.read(func(st *state) {
		if op, ok := st.operators[email]; ok {
			op.Roles = slices.Clone(op.Roles)
			out = &op
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("operator", email)
	}
	return out, nil
}

func (r *OperatorRepo) UpdateLoginState(ctx context.Context, op *auth.Operator) error {
	var found bool
	r.s.write(ctx, func(st *state) {
		stored, ok := st.operators[op.Email]
		if !ok {
			return
		}
		found = true
		stored.FailedLoginAttempts = op.FailedLoginAttempts
		stored.LockedUntil = op.LockedUntil
		stored.LastLoginAt = op.LastLoginAt
		st.operators[op.Email] = stored
	})
	if !found {
		return apperror.NewNotFound("operator", op.Email)
	}
	return nil
}
