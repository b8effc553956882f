package dto

import (
	"github.com/shopspring/decimal"

	"hivepos/internal/core/types"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
)

// CreateProductRequest for adding a product to the catalog.
type CreateProductRequest struct {
	SKU       string           `json:"sku" binding:"required"`
	Name      string           `json:"name" binding:"required"`
	Category  string           `json:"category"`
	UnitPrice decimal.Decimal  `json:"unitPrice"`
	CostPrice *decimal.Decimal `json:"costPrice"`
}

// ToProduct builds the domain entity.
func (r *CreateProductRequest) ToProduct() *product.Product {
	p := product.NewProduct(r.SKU, r.Name, r.Category, r.UnitPrice)
	p.CostPrice = types.OptionalMoney(r.CostPrice)
	return p
}

// CreateEventRequest for scheduling a market event.
type CreateEventRequest struct {
	Name      string `json:"name" binding:"required"`
	Location  string `json:"location"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

// ToEvent builds the domain entity.
func (r *CreateEventRequest) ToEvent() (*market.Event, error) {
	start, err := ParseDate("startDate", r.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate("endDate", r.EndDate)
	if err != nil {
		return nil, err
	}
	return market.NewEvent(r.Name, r.Location, start, end), nil
}
