package handlers

import (
	"github.com/gin-gonic/gin"

	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/infrastructure/http/v1/dto"
)

// ProductHandler serves the product catalog and each product's stock views.
type ProductHandler struct {
	*BaseHandler
	products *product.Service
	stock    *stock.Service
}

// NewProductHandler creates a product handler.
func NewProductHandler(base *BaseHandler, products *product.Service, stock *stock.Service) *ProductHandler {
	return &ProductHandler{BaseHandler: base, products: products, stock: stock}
}

// List handles GET /products
func (h *ProductHandler) List(c *gin.Context) {
	result, err := h.products.List(c.Request.Context(), h.ListFilter(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// Get handles GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	p, err := h.products.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Create handles POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p := req.ToProduct()
	if err := h.products.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p)
}

// Deactivate handles POST /products/:id/deactivate
func (h *ProductHandler) Deactivate(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.products.Deactivate(c.Request.Context(), productID); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "product deactivated")
}

// Reactivate handles POST /products/:id/reactivate
func (h *ProductHandler) Reactivate(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.products.Reactivate(c.Request.Context(), productID); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "product reactivated")
}

// ListBatches handles GET /products/:id/batches?available=true
func (h *ProductHandler) ListBatches(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	batches, err := h.stock.ListBatches(c.Request.Context(), productID, c.Query("available") == "true")
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(batches))
}

// ReceiveBatch handles POST /products/:id/batches
func (h *ProductHandler) ReceiveBatch(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.products.GetByID(ctx, productID); err != nil {
		h.Error(c, err)
		return
	}
	batch, err := req.ToBatch(productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.stock.Receive(ctx, batch); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, batch)
}

// ListMovements handles GET /products/:id/movements
func (h *ProductHandler) ListMovements(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter(productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	movements, err := h.stock.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(movements))
}

// Consistency handles GET /products/:id/consistency
func (h *ProductHandler) Consistency(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	result, err := h.stock.CheckConsistency(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
