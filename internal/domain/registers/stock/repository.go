package stock

import (
	"context"
	"time"

	"hivepos/internal/core/id"
)

// Repository defines storage operations for batches and the movement ledger.
// Counter changes are single conditional statements in storage, never read-modify-write.
type Repository interface {
	// Batch operations

	CreateBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, batchID id.ID) (*Batch, error)

	// ListBatches returns batches of a product; availableOnly keeps quantity > 0.
	ListBatches(ctx context.Context, productID id.ID, availableOnly bool) ([]Batch, error)

	// DecrementBatch subtracts qty only when the batch holds at least qty.
	// Returns false (and changes nothing) otherwise.
	DecrementBatch(ctx context.Context, batchID id.ID, qty int) (bool, error)

	// IncrementBatch adds qty to the batch counter.
	IncrementBatch(ctx context.Context, batchID id.ID, qty int) error

	// SetBatchQuantity overwrites the counter. Used only for manual stock-count correction.
	SetBatchQuantity(ctx context.Context, batchID id.ID, qty int) error

	// SumBatchQuantity totals batch counters for a product.
	// A non-nil unexpiredAsOf skips batches that expired before it.
	SumBatchQuantity(ctx context.Context, productID id.ID, unexpiredAsOf *time.Time) (int, error)

	// Ledger operations

	AppendMovements(ctx context.Context, movements []Movement) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)

	// LedgerBalance returns Σ IN + Σ adjustment − Σ OUT − Σ sale for a product.
	LedgerBalance(ctx context.Context, productID id.ID) (int, error)
}
