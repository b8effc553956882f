// Package sales provides orders, their items, payments, financial transactions and invoices.
package sales

import (
	"time"

	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderCompleted         OrderStatus = "completed"
	OrderPartiallyRefunded OrderStatus = "partially_refunded"
	OrderRefunded          OrderStatus = "refunded"
)

// PaymentMethod is how an order was paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// PaymentStatus is the state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// TransactionType classifies financial transactions.
type TransactionType string

const (
	TransactionSale       TransactionType = "sale"
	TransactionRefund     TransactionType = "refund"
	TransactionAdjustment TransactionType = "adjustment"
)

// Order is a completed sale, entered at the till or imported.
type Order struct {
	ID                     id.ID       `db:"id" json:"id"`
	OrderNumber            string      `db:"order_number" json:"orderNumber"`
	CustomerID             *id.ID      `db:"customer_id" json:"customerId,omitempty"`
	MarketEventID          *id.ID      `db:"market_event_id" json:"marketEventId,omitempty"`
	TotalAmount            types.Money `db:"total_amount" json:"totalAmount"`
	Status                 OrderStatus `db:"status" json:"status"`
	ExternalSource         *string     `db:"external_source" json:"externalSource,omitempty"`
	ExternalTransactionKey *string     `db:"external_transaction_key" json:"externalTransactionKey,omitempty"`
	ImportBatchID          *id.ID      `db:"import_batch_id" json:"importBatchId,omitempty"`
	CreatedAt              time.Time   `db:"created_at" json:"createdAt"`
}

// Imported reports whether the order came from an import run.
func (o *Order) Imported() bool {
	return o.ImportBatchID != nil
}

// OrderItem is one line of an order, or one batch-slice of a line.
// A nil ProductID marks an unmatched imported line.
type OrderItem struct {
	ID          id.ID       `db:"id" json:"id"`
	OrderID     id.ID       `db:"order_id" json:"orderId"`
	ProductID   *id.ID      `db:"product_id" json:"productId,omitempty"`
	BatchID     *id.ID      `db:"batch_id" json:"batchId,omitempty"`
	ExternalSKU string      `db:"external_sku" json:"externalSku,omitempty"`
	ProductName string      `db:"product_name" json:"productName"`
	Quantity    int         `db:"quantity" json:"quantity"`
	UnitPrice   types.Money `db:"unit_price" json:"unitPrice"`
	Subtotal    types.Money `db:"subtotal" json:"subtotal"`
	UnitCost    types.Money `db:"unit_cost" json:"unitCost"`
	CostSource  string      `db:"cost_source" json:"costSource"`
}

// Payment records money received for an order.
type Payment struct {
	ID                id.ID         `db:"id" json:"id"`
	OrderID           id.ID         `db:"order_id" json:"orderId"`
	Amount            types.Money   `db:"amount" json:"amount"`
	Method            PaymentMethod `db:"method" json:"method"`
	Status            PaymentStatus `db:"status" json:"status"`
	ExternalReference *string       `db:"external_reference" json:"externalReference,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
}

// ViaGateway reports whether refunds of this payment go through the card gateway.
func (p *Payment) ViaGateway() bool {
	return p.Method == PaymentCard
}

// FinancialTransaction records revenue, cost and profit. Each order has one
// sale; refunds add negated mirrors.
type FinancialTransaction struct {
	ID            id.ID           `db:"id" json:"id"`
	OrderID       id.ID           `db:"order_id" json:"orderId"`
	Type          TransactionType `db:"transaction_type" json:"transactionType"`
	Amount        types.Money     `db:"amount" json:"amount"`
	Cost          types.Money     `db:"cost" json:"cost"`
	Profit        types.Money     `db:"profit" json:"profit"`
	PaymentMethod *PaymentMethod  `db:"payment_method" json:"paymentMethod,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}

// Invoice is an issued invoice for an order.
type Invoice struct {
	ID            id.ID       `db:"id" json:"id"`
	InvoiceNumber string      `db:"invoice_number" json:"invoiceNumber"`
	OrderID       id.ID       `db:"order_id" json:"orderId"`
	Amount        types.Money `db:"amount" json:"amount"`
	CustomerName  string      `db:"customer_name" json:"customerName,omitempty"`
	IssuedAt      time.Time   `db:"issued_at" json:"issuedAt"`
}

// OrderDetail is an order with its dependent rows.
type OrderDetail struct {
	Order        *Order                 `json:"order"`
	Items        []OrderItem            `json:"items"`
	Payments     []Payment              `json:"payments"`
	Transactions []FinancialTransaction `json:"transactions"`
	Invoice      *Invoice               `json:"invoice,omitempty"`
}

// SaleTransaction returns the order's sale transaction, if recorded.
func (d *OrderDetail) SaleTransaction() *FinancialTransaction {
	for i := range d.Transactions {
		if d.Transactions[i].Type == TransactionSale {
			return &d.Transactions[i]
		}
	}
	return nil
}
