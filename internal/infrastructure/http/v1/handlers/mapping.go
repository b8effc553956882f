package handlers

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/domain/matching"
	"hivepos/internal/infrastructure/http/v1/dto"
)

// MappingHandler serves external SKU to product mappings.
type MappingHandler struct {
	*BaseHandler
	service *matching.Service
}

// NewMappingHandler creates a mapping handler.
func NewMappingHandler(base *BaseHandler, service *matching.Service) *MappingHandler {
	return &MappingHandler{BaseHandler: base, service: service}
}

// List handles GET /mappings?source=
func (h *MappingHandler) List(c *gin.Context) {
	mappings, err := h.service.List(c.Request.Context(), c.Query("source"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(mappings))
}

// Save handles PUT /mappings
func (h *MappingHandler) Save(c *gin.Context) {
	var req dto.SaveMappingsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	mappings, err := req.ToMappings()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Save(c.Request.Context(), mappings); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(mappings))
}
