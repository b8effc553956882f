package handlers

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/infrastructure/http/v1/dto"
)

// BatchHandler serves individual stock batches.
type BatchHandler struct {
	*BaseHandler
	stock *stock.Service
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(base *BaseHandler, stock *stock.Service) *BatchHandler {
	return &BatchHandler{BaseHandler: base, stock: stock}
}

// Get handles GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	b, err := h.stock.GetBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// Count handles PUT /batches/:id/count
func (h *BatchHandler) Count(c *gin.Context) {
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.CountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	movement, err := h.stock.CorrectCount(c.Request.Context(), batchID, *req.Counted)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"changed": movement != nil, "movement": movement})
}
