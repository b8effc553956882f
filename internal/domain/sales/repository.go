package sales

import (
	"context"

	"hivepos/internal/core/id"
)

// Repository persists the order graph.
type Repository interface {
	// CreateOrder inserts an order. A second order with the same external
	// transaction key fails with a Duplicate error.
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, orderID id.ID) (*Order, error)
	// GetOrderForUpdate locks the order row for the rest of the transaction.
	GetOrderForUpdate(ctx context.Context, orderID id.ID) (*Order, error)

	// FindOrderByExternalKey returns NotFound when no order carries the key.
	FindOrderByExternalKey(ctx context.Context, key string) (*Order, error)
	ListOrdersByImportBatch(ctx context.Context, importBatchID id.ID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID id.ID, status OrderStatus) error

	CreateItems(ctx context.Context, items []OrderItem) error
	ListItems(ctx context.Context, orderID id.ID) ([]OrderItem, error)

	CreatePayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, paymentID id.ID) (*Payment, error)
	ListPayments(ctx context.Context, orderID id.ID) ([]Payment, error)

	CreateFinancialTransaction(ctx context.Context, ft *FinancialTransaction) error
	ListFinancialTransactions(ctx context.Context, orderID id.ID) ([]FinancialTransaction, error)

	CreateInvoice(ctx context.Context, invoice *Invoice) error
	// GetInvoiceByOrder returns NotFound when the order has no invoice.
	GetInvoiceByOrder(ctx context.Context, orderID id.ID) (*Invoice, error)

	// DeleteOrders removes orders with their invoices, financial transactions,
	// payments and items, in that order. Returns the number of orders deleted.
	DeleteOrders(ctx context.Context, orderIDs []id.ID) (int, error)
}
