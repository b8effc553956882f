package handlers

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/domain/refund"
	"hivepos/internal/domain/sales"
	"hivepos/internal/infrastructure/http/v1/dto"
)

// OrderHandler serves till checkout, order detail, invoices and refunds.
type OrderHandler struct {
	*BaseHandler
	sales   *sales.Service
	refunds *refund.Service
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(base *BaseHandler, sales *sales.Service, refunds *refund.Service) *OrderHandler {
	return &OrderHandler{BaseHandler: base, sales: sales, refunds: refunds}
}

// Checkout handles POST /orders
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !h.BindJSON(c, &req) {
		return
	}
	request, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.sales.Checkout(c.Request.Context(), request)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.sales.GetDetail(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, detail)
}

// Invoice handles POST /orders/:id/invoice
func (h *OrderHandler) Invoice(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.InvoiceRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	invoice, err := h.sales.IssueInvoice(c.Request.Context(), orderID, req.CustomerName)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, invoice)
}

// CreateRefund handles POST /orders/:id/refunds
func (h *OrderHandler) CreateRefund(c *gin.Context) {
	var req dto.RefundRequest
	if !h.BindJSON(c, &req) {
		return
	}
	request, err := req.ToDomain(c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	r, err := h.refunds.Create(c.Request.Context(), request)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r)
}

// ListRefunds handles GET /orders/:id/refunds
func (h *OrderHandler) ListRefunds(c *gin.Context) {
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	refunds, err := h.refunds.ListByOrder(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(refunds))
}

// GetRefund handles GET /refunds/:id
func (h *OrderHandler) GetRefund(c *gin.Context) {
	refundID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	r, err := h.refunds.Get(c.Request.Context(), refundID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}
