// Package product provides the product catalog.
package product

import (
	"context"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
)

// Product is a sellable item. Stock lives in its batches.
type Product struct {
	ID        id.ID           `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	UnitPrice types.Money     `db:"unit_price" json:"unitPrice"`
	CostPrice types.NullMoney `db:"cost_price" json:"costPrice"`
	IsActive  bool            `db:"is_active" json:"isActive"`

	// TotalStock is the sum of batch quantities, computed on read.
	TotalStock int `db:"total_stock" json:"totalStock"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewProduct creates an active product.
func NewProduct(sku, name, category string, unitPrice types.Money) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:        id.New(),
		SKU:       strings.TrimSpace(sku),
		Name:      strings.TrimSpace(name),
		Category:  strings.TrimSpace(category),
		UnitPrice: unitPrice,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EntityID implements domain.Entity.
func (p *Product) EntityID() id.ID { return p.ID }

// Validate checks product invariants.
func (p *Product) Validate(ctx context.Context) error {
	if strings.TrimSpace(p.SKU) == "" {
		return apperror.NewValidation("sku is required").WithDetail("field", "sku")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if p.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit price must not be negative").WithDetail("field", "unitPrice")
	}
	if p.CostPrice.Valid && p.CostPrice.Decimal.IsNegative() {
		return apperror.NewValidation("cost price must not be negative").WithDetail("field", "costPrice")
	}
	return nil
}
