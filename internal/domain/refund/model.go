// Package refund provides customer refunds: partial amounts, optional stock
// restoration and proportional financial reversal.
package refund

import (
	"context"
	"time"

	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
)

// Status is the lifecycle state of a refund.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Item selects units of an order item to put back into stock.
type Item struct {
	OrderItemID id.ID `json:"orderItemId"`
	Quantity    int   `json:"quantity"`
}

// Refund is a request to return money for an order.
type Refund struct {
	ID               id.ID       `db:"id" json:"id"`
	RefundNumber     string      `db:"refund_number" json:"refundNumber"`
	OrderID          id.ID       `db:"order_id" json:"orderId"`
	PaymentID        *id.ID      `db:"payment_id" json:"paymentId,omitempty"`
	Amount           types.Money `db:"amount" json:"amount"`
	Method           string      `db:"method" json:"method"`
	Status           Status      `db:"status" json:"status"`
	Reason           string      `db:"reason" json:"reason,omitempty"`
	Items            []Item      `db:"items" json:"items"`
	GatewayReference *string     `db:"gateway_reference" json:"gatewayReference,omitempty"`
	FailureReason    *string     `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedBy        *string     `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"createdAt"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
}

// Counts reports whether the refund holds against the order's refundable balance.
func (r *Refund) Counts() bool {
	return r.Status == StatusPending || r.Status == StatusCompleted
}

// Repository persists refunds.
type Repository interface {
	Create(ctx context.Context, refund *Refund) error
	Get(ctx context.Context, refundID id.ID) (*Refund, error)

	// GetForUpdate locks the refund row for the rest of the transaction.
	GetForUpdate(ctx context.Context, refundID id.ID) (*Refund, error)

	// FindByGatewayReference returns NotFound when no refund carries the reference.
	FindByGatewayReference(ctx context.Context, reference string) (*Refund, error)

	// Update writes status, gateway reference, failure reason and completion time.
	Update(ctx context.Context, refund *Refund) error

	ListByOrder(ctx context.Context, orderID id.ID) ([]Refund, error)
	HasRefunds(ctx context.Context, orderIDs []id.ID) (bool, error)
}

// GatewayRequest asks the card gateway to return money.
type GatewayRequest struct {
	RefundID         id.ID
	RefundNumber     string
	PaymentReference string
	Amount           types.Money
}

// Gateway is the card payment provider's refund API.
type Gateway interface {
	// Refund submits the request and returns the provider's reference.
	// Completion arrives later through the callback.
	Refund(ctx context.Context, req GatewayRequest) (string, error)
}

// CallbackStatus is the outcome reported by the gateway.
type CallbackStatus string

const (
	CallbackSucceeded CallbackStatus = "succeeded"
	CallbackFailed    CallbackStatus = "failed"
)

// Callback is a verified completion notice from the gateway.
type Callback struct {
	GatewayReference string         `json:"reference"`
	Status           CallbackStatus `json:"status"`
	Reason           string         `json:"reason,omitempty"`
}
