package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"hivepos/internal/core/apperror"
	"hivepos/internal/domain/refund"
	"hivepos/internal/infrastructure/gateway"
	"hivepos/pkg/logger"
)

const maxWebhookBytes = 64 << 10

// WebhookHandler receives signed completion notices from the card gateway.
type WebhookHandler struct {
	*BaseHandler
	verifier *gateway.Verifier
	refunds  *refund.Service
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(base *BaseHandler, verifier *gateway.Verifier, refunds *refund.Service) *WebhookHandler {
	return &WebhookHandler{BaseHandler: base, verifier: verifier, refunds: refunds}
}

// RefundCallback handles POST /webhooks/gateway/refunds
func (h *WebhookHandler) RefundCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.Error(c, apperror.NewValidation("unreadable body").WithCause(err))
		return
	}

	cb, err := h.verifier.Verify(
		c.GetHeader(gateway.HeaderSignature),
		c.GetHeader(gateway.HeaderTimestamp),
		body,
	)
	if err != nil {
		logger.Warn(c.Request.Context(), "gateway callback rejected", "error", err)
		h.Error(c, err)
		return
	}

	r, err := h.refunds.HandleCallback(c.Request.Context(), *cb)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"received": true, "refundId": r.ID, "status": r.Status})
}
