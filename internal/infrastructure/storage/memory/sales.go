package memory

import (
	"context"
	"slices"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain/sales"
)

// SalesRepo implements sales.Repository.
type SalesRepo struct{ s *Store }

var _ sales.Repository = (*SalesRepo)(nil)

// Sales returns the order graph repository.
func (s *Store) Sales() *SalesRepo { return &SalesRepo{s: s} }

func (r *SalesRepo) CreateOrder(ctx context.Context, o *sales.Order) error {
	var err error
	r.s.write(ctx, func(st *state) {
		for _, existing := range st.orders {
			if existing.OrderNumber == o.OrderNumber {
				err = apperror.NewDuplicate("order", "order_number", o.OrderNumber)
				return
			}
		}
		if o.ExternalTransactionKey != nil {
			if _, taken := st.orderByKey[*o.ExternalTransactionKey]; taken {
				err = apperror.NewDuplicate("order", "external_transaction_key", *o.ExternalTransactionKey)
				return
			}
			st.orderByKey[*o.ExternalTransactionKey] = o.ID
		}
		st.orders[o.ID] = *o
	})
	return err
}

func (r *SalesRepo) GetOrder(_ context.Context, orderID id.ID) (*sales.Order, error) {
	var out *sales.Order
	r.s.read(func(st *state) {
		if o, ok := st.orders[orderID]; ok {
			out = &o
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("order", orderID.String())
	}
	return out, nil
}

// GetOrderForUpdate relies on transactions being serialized.
func (r *SalesRepo) GetOrderForUpdate(ctx context.Context, orderID id.ID) (*sales.Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *SalesRepo) FindOrderByExternalKey(_ context.Context, key string) (*sales.Order, error) {
	var out *sales.Order
	r.s.read(func(st *state) {
		if orderID, ok := st.orderByKey[key]; ok {
			o := st.orders[orderID]
			out = &o
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("order", key)
	}
	return out, nil
}

func (r *SalesRepo) ListOrdersByImportBatch(_ context.Context, importBatchID id.ID) ([]sales.Order, error) {
	var out []sales.Order
	r.s.read(func(st *state) {
		for _, o := range st.orders {
			if o.ImportBatchID != nil && *o.ImportBatchID == importBatchID {
				out = append(out, o)
			}
		}
	})
	slices.SortFunc(out, func(a, b sales.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *SalesRepo) UpdateOrderStatus(ctx context.Context, orderID id.ID, status sales.OrderStatus) error {
	var found bool
	r.s.write(ctx, func(st *state) {
		o, ok := st.orders[orderID]
		if !ok {
			return
		}
		found = true
		o.Status = status
		st.orders[orderID] = o
	})
	if !found {
		return apperror.NewNotFound("order", orderID.String())
	}
	return nil
}

func (r *SalesRepo) CreateItems(ctx context.Context, items []sales.OrderItem) error {
	r.s.write(ctx, func(st *state) {
		for _, it := range items {
			st.items[it.OrderID] = append(slices.Clip(st.items[it.OrderID]), it)
		}
	})
	return nil
}

func (r *SalesRepo) ListItems(_ context.Context, orderID id.ID) ([]sales.OrderItem, error) {
	var out []sales.OrderItem
	r.s.read(func(st *state) { out = slices.Clone(st.items[orderID]) })
	return out, nil
}

func (r *SalesRepo) CreatePayment(ctx context.Context, p *sales.Payment) error {
	r.s.write(ctx, func(st *state) { st.payments[p.ID] = *p })
	return nil
}

func (r *SalesRepo) GetPayment(_ context.Context, paymentID id.ID) (*sales.Payment, error) {
	var out *sales.Payment
	r.s.read(func(st *state) {
		if p, ok := st.payments[paymentID]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("payment", paymentID.String())
	}
	return out, nil
}

func (r *SalesRepo) ListPayments(_ context.Context, orderID id.ID) ([]sales.Payment, error) {
	var out []sales.Payment
	r.s.read(func(st *state) {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				out = append(out, p)
			}
		}
	})
	slices.SortFunc(out, func(a, b sales.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *SalesRepo) CreateFinancialTransaction(ctx context.Context, ft *sales.FinancialTransaction) error {
	r.s.write(ctx, func(st *state) { st.transactions = append(st.transactions, *ft) })
	return nil
}

func (r *SalesRepo) ListFinancialTransactions(_ context.Context, orderID id.ID) ([]sales.FinancialTransaction, error) {
	var out []sales.FinancialTransaction
	r.s.read(func(st *state) {
		for _, ft := range st.transactions {
			if ft.OrderID == orderID {
				out = append(out, ft)
			}
		}
	})
	return out, nil
}

func (r *SalesRepo) CreateInvoice(ctx context.Context, inv *sales.Invoice) error {
	var err error
	r.s.write(ctx, func(st *state) {
		if _, ok := st.invoices[inv.OrderID]; ok {
			err = apperror.NewDuplicate("invoice", "order_id", inv.OrderID.String())
			return
		}
		st.invoices[inv.OrderID] = *inv
	})
	return err
}

func (r *SalesRepo) GetInvoiceByOrder(_ context.Context, orderID id.ID) (*sales.Invoice, error) {
	var out *sales.Invoice
	r.s.read(func(st *state) {
		if inv, ok := st.invoices[orderID]; ok {
			out = &inv
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("invoice", orderID.String())
	}
	return out, nil
}

func (r *SalesRepo) DeleteOrders(ctx context.Context, orderIDs []id.ID) (int, error) {
	deleted := 0
	r.s.write(ctx, func(st *state) {
		doomed := make(map[id.ID]bool, len(orderIDs))
		for _, orderID := range orderIDs {
			doomed[orderID] = true
		}

		for orderID := range doomed {
			delete(st.invoices, orderID)
		}
		kept := make([]sales.FinancialTransaction, 0, len(st.transactions))
		for _, ft := range st.transactions {
			if !doomed[ft.OrderID] {
				kept = append(kept, ft)
			}
		}
		st.transactions = kept
		for paymentID, p := range st.payments {
			if doomed[p.OrderID] {
				delete(st.payments, paymentID)
			}
		}
		for orderID := range doomed {
			delete(st.items, orderID)
			o, ok := st.orders[orderID]
			if !ok {
				continue
			}
			if o.ExternalTransactionKey != nil {
				delete(st.orderByKey, *o.ExternalTransactionKey)
			}
			delete(st.orders, orderID)
			deleted++
		}
	})
	return deleted, nil
}
