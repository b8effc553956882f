package memory

import (
	"context"
	"slices"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain/refund"
)

// RefundRepo implements refund.Repository.
type RefundRepo struct{ s *Store }

var _ refund.Repository = (*RefundRepo)(nil)

// Refunds returns the refund repository.
func (s *Store) Refunds() *RefundRepo { return &RefundRepo{s: s} }

func cloneRefund(r refund.Refund) refund.Refund {
	r.Items = slices.Clone(r.Items)
	return r
}

func (r *RefundRepo) Create(ctx context.Context, rf *refund.Refund) error {
	var err error
	r.s.write(ctx, func(st *state) {
		for _, existing := range st.refunds {
			if existing.RefundNumber == rf.RefundNumber {
				err = apperror.NewDuplicate("refund", "refund_number", rf.RefundNumber)
				return
			}
		}
		st.refunds[rf.ID] = cloneRefund(*rf)
	})
	return err
}

func (r *RefundRepo) Get(_ context.Context, refundID id.ID) (*refund.Refund, error) {
	var out *refund.Refund
	r.s.read(func(st *state) {
		if rf, ok := st.refunds[refundID]; ok {
			rf = cloneRefund(rf)
			out = &rf
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("refund", refundID.String())
	}
	return out, nil
}

// GetForUpdate relies on transactions being serialized.
func (r *RefundRepo) GetForUpdate(ctx context.Context, refundID id.ID) (*refund.Refund, error) {
	return r.Get(ctx, refundID)
}

func (r *RefundRepo) FindByGatewayReference(_ context.Context, reference string) (*refund.Refund, error) {
	var out *refund.Refund
	r.s.read(func(st *state) {
		for _, rf := range st.refunds {
			if rf.GatewayReference != nil && *rf.GatewayReference == reference {
				rf = cloneRefund(rf)
				out = &rf
				return
			}
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("refund", reference)
	}
	return out, nil
}

func (r *RefundRepo) Update(ctx context.Context, rf *refund.Refund) error {
	var found bool
	r.s.write(ctx, func(st *state) {
		if _, found = st.refunds[rf.ID]; found {
			st.refunds[rf.ID] = cloneRefund(*rf)
		}
	})
	if !found {
		return apperror.NewNotFound("refund", rf.ID.String())
	}
	return nil
}

func (r *RefundRepo) ListByOrder(_ context.Context, orderID id.ID) ([]refund.Refund, error) {
	var out []refund.Refund
	r.s.read(func(st *state) {
		for _, rf := range st.refunds {
			if rf.OrderID == orderID {
				out = append(out, cloneRefund(rf))
			}
		}
	})
	slices.SortFunc(out, func(a, b refund.Refund) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// HasRefunds ignores rejected refunds.
func (r *RefundRepo) HasRefunds(_ context.Context, orderIDs []id.ID) (bool, error) {
	var found bool
	r.s.read(func(st *state) {
		for _, rf := range st.refunds {
			if rf.Counts() && slices.Contains(orderIDs, rf.OrderID) {
				found = true
				return
			}
		}
	})
	return found, nil
}
