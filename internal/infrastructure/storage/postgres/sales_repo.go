package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain/sales"
)

const (
	tableOrders       = "orders"
	tableOrderItems   = "order_items"
	tablePayments     = "payments"
	tableTransactions = "financial_transactions"
	tableInvoices     = "invoices"
)

var (
	orderColumns       = columnsOf[sales.Order]()
	orderItemColumns   = columnsOf[sales.OrderItem]()
	paymentColumns     = columnsOf[sales.Payment]()
	transactionColumns = columnsOf[sales.FinancialTransaction]()
	invoiceColumns     = columnsOf[sales.Invoice]()
)

// SalesRepo implements sales.Repository.
type SalesRepo struct {
	repo
}

var _ sales.Repository = (*SalesRepo)(nil)

// NewSalesRepo creates a sales repository.
func NewSalesRepo(txm *TxManager) *SalesRepo {
	return &SalesRepo{repo: newRepo(txm)}
}

func (r *SalesRepo) CreateOrder(ctx context.Context, o *sales.Order) error {
	err := r.exec(ctx, r.sq.Insert(tableOrders).Columns(orderColumns...).Values(rowOf(o, orderColumns)...), "order")
	if apperror.IsDuplicate(err) && o.ExternalTransactionKey != nil {
		return apperror.NewDuplicate("order", "external_transaction_key", *o.ExternalTransactionKey).WithCause(err)
	}
	return err
}

func (r *SalesRepo) GetOrder(ctx context.Context, orderID id.ID) (*sales.Order, error) {
	var o sales.Order
	q := r.sq.Select(orderColumns...).From(tableOrders).Where(squirrel.Eq{"id": orderID})
	if err := r.get(ctx, &o, q, "order", orderID.String()); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *SalesRepo) GetOrderForUpdate(ctx context.Context, orderID id.ID) (*sales.Order, error) {
	var o sales.Order
	q := r.sq.Select(orderColumns...).From(tableOrders).Where(squirrel.Eq{"id": orderID}).Suffix("FOR UPDATE")
	if err := r.get(ctx, &o, q, "order", orderID.String()); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *SalesRepo) FindOrderByExternalKey(ctx context.Context, key string) (*sales.Order, error) {
	var o sales.Order
	q := r.sq.Select(orderColumns...).From(tableOrders).Where(squirrel.Eq{"external_transaction_key": key})
	if err := r.get(ctx, &o, q, "order", key); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *SalesRepo) ListOrdersByImportBatch(ctx context.Context, importBatchID id.ID) ([]sales.Order, error) {
	var out []sales.Order
	q := r.sq.Select(orderColumns...).From(tableOrders).
		Where(squirrel.Eq{"import_batch_id": importBatchID}).
		OrderBy("created_at", "order_number")
	if err := r.selectAll(ctx, &out, q, "orders"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SalesRepo) UpdateOrderStatus(ctx context.Context, orderID id.ID, status sales.OrderStatus) error {
	n, err := r.execCount(ctx, r.sq.Update(tableOrders).
		Set("status", status).
		Where(squirrel.Eq{"id": orderID}), "order")
	if err != nil {
		return err
	}
	return expectOne(n, "order", orderID.String())
}

func (r *SalesRepo) CreateItems(ctx context.Context, items []sales.OrderItem) error {
	rows := make([][]any, len(items))
	for i := range items {
		rows[i] = rowOf(&items[i], orderItemColumns)
	}
	return r.insertRows(ctx, tableOrderItems, orderItemColumns, rows)
}

func (r *SalesRepo) ListItems(ctx context.Context, orderID id.ID) ([]sales.OrderItem, error) {
	var out []sales.OrderItem
	q := r.sq.Select(orderItemColumns...).From(tableOrderItems).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("id")
	if err := r.selectAll(ctx, &out, q, "order items"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SalesRepo) CreatePayment(ctx context.Context, p *sales.Payment) error {
	return r.exec(ctx, r.sq.Insert(tablePayments).Columns(paymentColumns...).Values(rowOf(p, paymentColumns)...), "payment")
}

func (r *SalesRepo) GetPayment(ctx context.Context, paymentID id.ID) (*sales.Payment, error) {
	var p sales.Payment
	q := r.sq.Select(paymentColumns...).From(tablePayments).Where(squirrel.Eq{"id": paymentID})
	if err := r.get(ctx, &p, q, "payment", paymentID.String()); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SalesRepo) ListPayments(ctx context.Context, orderID id.ID) ([]sales.Payment, error) {
	var out []sales.Payment
	q := r.sq.Select(paymentColumns...).From(tablePayments).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at")
	if err := r.selectAll(ctx, &out, q, "payments"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SalesRepo) CreateFinancialTransaction(ctx context.Context, ft *sales.FinancialTransaction) error {
	return r.exec(ctx, r.sq.Insert(tableTransactions).Columns(transactionColumns...).Values(rowOf(ft, transactionColumns)...), "financial transaction")
}

func (r *SalesRepo) ListFinancialTransactions(ctx context.Context, orderID id.ID) ([]sales.FinancialTransaction, error) {
	var out []sales.FinancialTransaction
	q := r.sq.Select(transactionColumns...).From(tableTransactions).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at")
	if err := r.selectAll(ctx, &out, q, "financial transactions"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SalesRepo) CreateInvoice(ctx context.Context, inv *sales.Invoice) error {
	return r.exec(ctx, r.sq.Insert(tableInvoices).Columns(invoiceColumns...).Values(rowOf(inv, invoiceColumns)...), "invoice")
}

func (r *SalesRepo) GetInvoiceByOrder(ctx context.Context, orderID id.ID) (*sales.Invoice, error) {
	var inv sales.Invoice
	q := r.sq.Select(invoiceColumns...).From(tableInvoices).Where(squirrel.Eq{"order_id": orderID})
	if err := r.get(ctx, &inv, q, "invoice", orderID.String()); err != nil {
		return nil, err
	}
	return &inv, nil
}

// DeleteOrders removes dependents before the orders themselves so foreign
// keys hold at every step.
func (r *SalesRepo) DeleteOrders(ctx context.Context, orderIDs []id.ID) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	for _, table := range []string{tableInvoices, tableTransactions, tablePayments, tableOrderItems} {
		if err := r.exec(ctx, r.sq.Delete(table).Where(squirrel.Eq{"order_id": orderIDs}), table); err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
	}
	n, err := r.execCount(ctx, r.sq.Delete(tableOrders).Where(squirrel.Eq{"id": orderIDs}), "orders")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
