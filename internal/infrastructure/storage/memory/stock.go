package memory

import (
	"context"
	"slices"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct{ s *Store }

var _ stock.Repository = (*StockRepo)(nil)

// Stock returns the batch and ledger repository.
func (s *Store) Stock() *StockRepo { return &StockRepo{s: s} }

func (r *StockRepo) CreateBatch(ctx context.Context, b *stock.Batch) error {
	var err error
	r.s.write(ctx, func(st *state) {
		if _, ok := st.products[b.ProductID]; !ok {
			err = apperror.NewNotFound("product", b.ProductID.String())
			return
		}
		st.batches[b.ID] = *b
	})
	return err
}

func (r *StockRepo) GetBatch(_ context.Context, batchID id.ID) (*stock.Batch, error) {
	var out *stock.Batch
	r.s.read(func(st *state) {
		if b, ok := st.batches[batchID]; ok {
			out = &b
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	return out, nil
}

func (r *StockRepo) ListBatches(_ context.Context, productID id.ID, availableOnly bool) ([]stock.Batch, error) {
	var out []stock.Batch
	r.s.read(func(st *state) {
		for _, b := range st.batches {
			if b.ProductID != productID || (availableOnly && b.Quantity <= 0) {
				continue
			}
			out = append(out, b)
		}
	})
	stock.SortFEFO(out)
	return out, nil
}

func (r *StockRepo) DecrementBatch(ctx context.Context, batchID id.ID, qty int) (bool, error) {
	var ok bool
	r.s.write(ctx, func(st *state) {
		b, found := st.batches[batchID]
		if !found || b.Quantity < qty {
			return
		}
		b.Quantity -= qty
		st.batches[batchID] = b
		ok = true
	})
	return ok, nil
}

func (r *StockRepo) IncrementBatch(ctx context.Context, batchID id.ID, qty int) error {
	return r.updateBatch(ctx, batchID, func(b *stock.Batch) { b.Quantity += qty })
}

func (r *StockRepo) SetBatchQuantity(ctx context.Context, batchID id.ID, qty int) error {
	return r.updateBatch(ctx, batchID, func(b *stock.Batch) { b.Quantity = qty })
}

func (r *StockRepo) updateBatch(ctx context.Context, batchID id.ID, fn func(b *stock.Batch)) error {
	var found bool
	r.s.write(ctx, func(st *state) {
		b, ok := st.batches[batchID]
		if !ok {
			return
		}
		found = true
		fn(&b)
		st.batches[batchID] = b
	})
	if !found {
		return apperror.NewNotFound("batch", batchID.String())
	}
	return nil
}

func (r *StockRepo) SumBatchQuantity(_ context.Context, productID id.ID, unexpiredAsOf *time.Time) (int, error) {
	total := 0
	r.s.read(func(st *state) {
		for _, b := range st.batches {
			if b.ProductID != productID {
				continue
			}
			if unexpiredAsOf != nil && b.Expired(*unexpiredAsOf) {
				continue
			}
			total += b.Quantity
		}
	})
	return total, nil
}

func (r *StockRepo) AppendMovements(ctx context.Context, movements []stock.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	r.s.write(ctx, func(st *state) {
		st.movements = append(st.movements, movements...)
	})
	return nil
}

func (r *StockRepo) ListMovements(_ context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	var out []stock.Movement
	r.s.read(func(st *state) {
		for _, m := range st.movements {
			if filter.ProductID != nil && m.ProductID != *filter.ProductID {
				continue
			}
			if filter.Type != nil && m.Type != *filter.Type {
				continue
			}
			if filter.ReferenceType != nil && m.ReferenceType != *filter.ReferenceType {
				continue
			}
			if len(filter.ReferenceIDs) > 0 && !slices.Contains(filter.ReferenceIDs, m.ReferenceID) {
				continue
			}
			out = append(out, m)
			if filter.Limit > 0 && len(out) == filter.Limit {
				return
			}
		}
	})
	return out, nil
}

func (r *StockRepo) LedgerBalance(_ context.Context, productID id.ID) (int, error) {
	balance := 0
	r.s.read(func(st *state) {
		for _, m := range st.movements {
			if m.ProductID == productID {
				balance += m.Signed()
			}
		}
	})
	return balance, nil
}
