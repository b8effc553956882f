package auth

import (
	"context"
)

// OperatorRepository defines operator storage operations.
type OperatorRepository interface {
	// Create inserts an operator; a taken email is a Duplicate error.
	Create(ctx context.Context, op *Operator) error

	// GetByEmail returns NotFound when no operator has the (normalized) email.
	GetByEmail(ctx context.Context, email string) (*Operator, error)

	// UpdateLoginState writes the failure counter, lock and last login time.
	UpdateLoginState(ctx context.Context, op *Operator) error
}
