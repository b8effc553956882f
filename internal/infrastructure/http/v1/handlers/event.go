package handlers

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/infrastructure/http/v1/dto"
)

// EventHandler serves market events.
type EventHandler struct {
	*BaseHandler
	service *market.Service
}

// NewEventHandler creates an event handler.
func NewEventHandler(base *BaseHandler, service *market.Service) *EventHandler {
	return &EventHandler{BaseHandler: base, service: service}
}

// List handles GET /events
func (h *EventHandler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context(), h.ListFilter(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// Create handles POST /events
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if !h.BindJSON(c, &req) {
		return
	}
	event, err := req.ToEvent()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Create(c.Request.Context(), event); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, event)
}
