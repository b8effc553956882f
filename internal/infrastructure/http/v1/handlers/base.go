package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/core/idempotency"
	"hivepos/internal/domain"
	"hivepos/internal/infrastructure/http/v1/dto"
	"hivepos/pkg/logger"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the Gin context and aborts.
// The JSON body is written by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// PathID parses a UUID path parameter. On failure the error is already registered.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	v, err := id.Parse(c.Param(name))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+name+" format").WithDetail("field", name))
		return id.Nil(), false
	}
	return v, true
}

// ParseIntQuery reads an integer query parameter. Absent or malformed values yield def.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, def int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil {
		return n
	}
	return def
}

// ListFilter reads search, includeInactive, limit and offset.
func (h *BaseHandler) ListFilter(c *gin.Context) domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = c.Query("search")
	f.IncludeInactive = c.Query("includeInactive") == "true"
	f.Limit = h.ParseIntQuery(c, "limit", f.Limit)
	f.Offset = h.ParseIntQuery(c, "offset", 0)
	return f.Normalize()
}

// CompleteIdempotency stores the response under the request's idempotency key
// so a replay returns the same status, content type and body.
func (h *BaseHandler) CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key := c.GetString("idempotency_key")
	if key == "" {
		return
	}
	store, ok := c.Get("idempotency_store")
	if !ok {
		return
	}
	if s, ok := store.(idempotency.Store); ok {
		if err := s.CompleteKey(c.Request.Context(), key, statusCode, contentType, response); err != nil {
			logger.Warn(c.Request.Context(), "idempotency complete key", "key", key, "error", err)
		}
	}
}

// Created sends 201 with the created resource.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", data)
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	h.CompleteIdempotency(c, http.StatusOK, "application/json", data)
	c.JSON(http.StatusOK, data)
}

// Success sends success response.
func (h *BaseHandler) Success(c *gin.Context, message string) {
	h.OK(c, dto.SuccessResponse{Success: true, Message: message})
}
