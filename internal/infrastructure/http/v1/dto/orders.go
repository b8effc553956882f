package dto

import (
	"github.com/shopspring/decimal"

	"hivepos/internal/core/types"
	"hivepos/internal/domain/refund"
	"hivepos/internal/domain/sales"
)

// CheckoutLineInput is one product sold at the till.
type CheckoutLineInput struct {
	ProductID string           `json:"productId" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unitPrice"`
}

// CheckoutRequest records a manual sale.
type CheckoutRequest struct {
	Lines            []CheckoutLineInput `json:"lines" binding:"required,min=1,dive"`
	PaymentMethod    string              `json:"paymentMethod" binding:"required"`
	CustomerID       *string             `json:"customerId"`
	MarketEventID    *string             `json:"marketEventId"`
	PaymentReference string              `json:"paymentReference"`
}

// ToDomain converts to the sales request.
func (r *CheckoutRequest) ToDomain() (sales.CheckoutRequest, error) {
	out := sales.CheckoutRequest{
		Lines:            make([]sales.CheckoutLine, 0, len(r.Lines)),
		PaymentMethod:    sales.PaymentMethod(r.PaymentMethod),
		PaymentReference: r.PaymentReference,
	}
	for _, l := range r.Lines {
		productID, err := ParseID("productId", l.ProductID)
		if err != nil {
			return out, err
		}
		out.Lines = append(out.Lines, sales.CheckoutLine{
			ProductID: productID,
			Quantity:  l.Quantity,
			UnitPrice: types.OptionalMoney(l.UnitPrice),
		})
	}
	var err error
	if out.CustomerID, err = ParseOptionalID("customerId", r.CustomerID); err != nil {
		return out, err
	}
	if out.MarketEventID, err = ParseOptionalID("marketEventId", r.MarketEventID); err != nil {
		return out, err
	}
	return out, nil
}

// InvoiceRequest issues an invoice for an order.
type InvoiceRequest struct {
	CustomerName string `json:"customerName"`
}

// RefundItemInput puts units of an order item back into stock.
type RefundItemInput struct {
	OrderItemID string `json:"orderItemId" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
}

// RefundRequest returns money for an order.
type RefundRequest struct {
	PaymentID *string           `json:"paymentId"`
	Amount    decimal.Decimal   `json:"amount"`
	Reason    string            `json:"reason"`
	Items     []RefundItemInput `json:"items" binding:"dive"`
}

// ToDomain converts to the refund request for the order in the path.
func (r *RefundRequest) ToDomain(orderID string) (refund.Request, error) {
	var out refund.Request
	var err error
	if out.OrderID, err = ParseID("orderId", orderID); err != nil {
		return out, err
	}
	if out.PaymentID, err = ParseOptionalID("paymentId", r.PaymentID); err != nil {
		return out, err
	}
	out.Amount = r.Amount
	out.Reason = r.Reason
	for _, it := range r.Items {
		itemID, err := ParseID("orderItemId", it.OrderItemID)
		if err != nil {
			return out, err
		}
		out.Items = append(out.Items, refund.Item{OrderItemID: itemID, Quantity: it.Quantity})
	}
	return out, nil
}
