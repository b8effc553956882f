package stock

import (
	"context"
	"fmt"
	"time"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/core/tx"
	"hivepos/pkg/logger"
)

// maxAllocateAttempts bounds how often an allocation is replanned after a
// conditional decrement loses a race with a concurrent writer.
const maxAllocateAttempts = 3

// AllocateRequest asks for units of one product to be drawn from its batches.
type AllocateRequest struct {
	ProductID     id.ID
	Quantity      int
	MovementType  MovementType
	ReferenceType ReferenceType
	ReferenceID   id.ID
}

// RestoreRequest returns units to a specific batch.
type RestoreRequest struct {
	ProductID     id.ID
	BatchID       id.ID
	Quantity      int
	MovementType  MovementType
	ReferenceType ReferenceType
	ReferenceID   id.ID
}

// Service keeps batch counters and the movement ledger in step.
// Every counter change is written with its movement inside one transaction;
// when the caller already holds a transaction it is reused.
type Service struct {
	repo      Repository
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a new stock register service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		now:       time.Now,
	}
}

// Receive records a new batch and the IN movement for its initial quantity.
func (s *Service) Receive(ctx context.Context, batch *Batch) error {
	if err := batch.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		if batch.Quantity == 0 {
			return nil
		}
		batchID := batch.ID
		movement := NewMovement(batch.ProductID, &batchID, MovementIn, batch.Quantity, RefBatch, batch.ID)
		return s.repo.AppendMovements(ctx, []Movement{movement})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "batch received",
		"batch_id", batch.ID,
		"product_id", batch.ProductID,
		"quantity", batch.Quantity,
	)
	return nil
}

// Allocate draws req.Quantity units FEFO and writes one movement per batch drawn.
// Stock shortage is not an error: the uncovered remainder comes back as a
// nil-batch allocation and as Shortfall, and a warning is logged.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (AllocationResult, error) {
	result := AllocationResult{ProductID: req.ProductID, Requested: req.Quantity}
	if req.Quantity <= 0 {
		return result, apperror.NewValidation("allocation quantity must be positive").
			WithDetail("productId", req.ProductID.String())
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		result.Allocations = nil
		remaining := req.Quantity
		var movements []Movement

		for attempt := 0; attempt < maxAllocateAttempts && remaining > 0; attempt++ {
			batches, err := s.repo.ListBatches(ctx, req.ProductID, true)
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}
			plan, _ := PlanAllocation(batches, remaining)

			raced := false
			for _, a := range plan {
				if a.Shortfall() {
					break
				}
				ok, err := s.repo.DecrementBatch(ctx, *a.BatchID, a.Quantity)
				if err != nil {
					return fmt.Errorf("decrement batch %s: %w", a.BatchID, err)
				}
				if !ok {
					raced = true
					break
				}
				result.Allocations = append(result.Allocations, a)
				movements = append(movements,
					NewMovement(req.ProductID, a.BatchID, req.MovementType, a.Quantity, req.ReferenceType, req.ReferenceID))
				remaining -= a.Quantity
			}
			if !raced {
				break
			}
			logger.Debug(ctx, "batch allocation raced, replanning",
				"product_id", req.ProductID,
				"attempt", attempt+1,
			)
		}

		if remaining > 0 {
			result.Allocations = append(result.Allocations, Allocation{Quantity: remaining})
			result.Shortfall = remaining
		}

		if len(movements) == 0 {
			return nil
		}
		return s.repo.AppendMovements(ctx, movements)
	})
	if err != nil {
		return AllocationResult{}, err
	}

	if result.Shortfall > 0 {
		logger.Warn(ctx, "insufficient stock for allocation",
			"product_id", req.ProductID,
			"requested", req.Quantity,
			"shortfall", result.Shortfall,
			"reference_type", req.ReferenceType,
			"reference_id", req.ReferenceID,
		)
	}
	return result, nil
}

// Restore puts units back on their batches and records the compensating movements.
func (s *Service) Restore(ctx context.Context, reqs []RestoreRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		movements := make([]Movement, 0, len(reqs))
		for i, r := range reqs {
			if r.Quantity <= 0 {
				return apperror.NewValidation(fmt.Sprintf("restore %d: quantity must be positive", i))
			}
			if err := s.repo.IncrementBatch(ctx, r.BatchID, r.Quantity); err != nil {
				return fmt.Errorf("increment batch %s: %w", r.BatchID, err)
			}
			batchID := r.BatchID
			movements = append(movements,
				NewMovement(r.ProductID, &batchID, r.MovementType, r.Quantity, r.ReferenceType, r.ReferenceID))
		}
		return s.repo.AppendMovements(ctx, movements)
	})
}

// CorrectCount sets a batch to a physically counted quantity and records the
// difference as an IN or OUT movement referencing a manual correction.
// Admin only.
func (s *Service) CorrectCount(ctx context.Context, batchID id.ID, counted int) (*Movement, error) {
	if err := appctx.RequireAdmin(ctx, "stock count correction"); err != nil {
		return nil, err
	}
	if counted < 0 {
		return nil, apperror.NewValidation("counted quantity must not be negative").WithDetail("field", "quantity")
	}

	var movement *Movement
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.repo.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		delta := counted - batch.Quantity
		if delta == 0 {
			return nil
		}
		if err := s.repo.SetBatchQuantity(ctx, batchID, counted); err != nil {
			return fmt.Errorf("set batch quantity: %w", err)
		}

		typ, qty := MovementIn, delta
		if delta < 0 {
			typ, qty = MovementOut, -delta
		}
		m := NewMovement(batch.ProductID, &batch.ID, typ, qty, RefManual, id.New())
		movement = &m
		return s.repo.AppendMovements(ctx, []Movement{m})
	})
	if err != nil {
		return nil, err
	}

	if movement != nil {
		logger.Info(ctx, "stock count corrected",
			"batch_id", batchID,
			"movement_type", movement.Type,
			"quantity", movement.Quantity,
		)
	}
	return movement, nil
}

// UnexpiredQuantity returns stock on batches not expired as of asOf.
func (s *Service) UnexpiredQuantity(ctx context.Context, productID id.ID, asOf time.Time) (int, error) {
	return s.repo.SumBatchQuantity(ctx, productID, &asOf)
}

// TotalQuantity returns stock across all batches of the product.
func (s *Service) TotalQuantity(ctx context.Context, productID id.ID) (int, error) {
	return s.repo.SumBatchQuantity(ctx, productID, nil)
}

// CheckConsistency compares the batch counters with the ledger balance.
func (s *Service) CheckConsistency(ctx context.Context, productID id.ID) (Consistency, error) {
	c := Consistency{ProductID: productID}

	total, err := s.repo.SumBatchQuantity(ctx, productID, nil)
	if err != nil {
		return c, fmt.Errorf("sum batches: %w", err)
	}
	balance, err := s.repo.LedgerBalance(ctx, productID)
	if err != nil {
		return c, fmt.Errorf("ledger balance: %w", err)
	}

	c.BatchTotal = total
	c.LedgerBalance = balance
	c.Consistent = total == balance
	if !c.Consistent {
		logger.Warn(ctx, "stock counters diverge from ledger",
			"product_id", productID,
			"batch_total", total,
			"ledger_balance", balance,
		)
	}
	return c, nil
}

// GetBatch returns a batch by ID.
func (s *Service) GetBatch(ctx context.Context, batchID id.ID) (*Batch, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// ListBatches returns a product's batches in FEFO order.
func (s *Service) ListBatches(ctx context.Context, productID id.ID, availableOnly bool) ([]Batch, error) {
	batches, err := s.repo.ListBatches(ctx, productID, availableOnly)
	if err != nil {
		return nil, err
	}
	SortFEFO(batches)
	return batches, nil
}

// ListMovements returns ledger entries matching the filter.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}
