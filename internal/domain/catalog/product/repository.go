package product

import (
	"context"

	"hivepos/internal/core/id"
	"hivepos/internal/domain"
)

// Repository persists products.
type Repository interface {
	domain.CatalogRepository[*Product]

	// FindBySKU returns the product with an exact SKU match.
	// activeOnly restricts the lookup to active products. Returns NotFound on miss.
	FindBySKU(ctx context.Context, sku string, activeOnly bool) (*Product, error)

	// SetActive toggles the soft-deactivation flag.
	SetActive(ctx context.Context, productID id.ID, active bool) error
}
