// Package matching resolves external point-of-sale SKUs to catalog products.
package matching

import (
	"context"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
)

// SourceYocoImport identifies mappings learned from card-terminal exports.
const SourceYocoImport = "yoco_import"

// Mapping links an external SKU from one source to a product.
type Mapping struct {
	ExternalSKU  string    `db:"external_sku" json:"externalSku"`
	Source       string    `db:"source" json:"source"`
	ProductID    id.ID     `db:"product_id" json:"productId"`
	ExternalName *string   `db:"external_name" json:"externalName,omitempty"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// NewMapping creates a mapping for the given source.
func NewMapping(source, externalSKU string, productID id.ID, externalName string) Mapping {
	m := Mapping{
		ExternalSKU: strings.TrimSpace(externalSKU),
		Source:      source,
		ProductID:   productID,
		UpdatedAt:   time.Now().UTC(),
	}
	if name := strings.TrimSpace(externalName); name != "" {
		m.ExternalName = &name
	}
	return m
}

// Validate checks mapping invariants.
func (m Mapping) Validate() error {
	if m.ExternalSKU == "" {
		return apperror.NewValidation("external sku is required").WithDetail("field", "externalSku")
	}
	if m.Source == "" {
		return apperror.NewValidation("source is required").WithDetail("field", "source")
	}
	if id.IsNil(m.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	return nil
}

// Repository persists mappings keyed by (external_sku, source).
type Repository interface {
	// Get returns the mapping or a NotFound error.
	Get(ctx context.Context, source, externalSKU string) (*Mapping, error)

	// Upsert inserts or replaces mappings by key.
	Upsert(ctx context.Context, mappings []Mapping) error

	List(ctx context.Context, source string) ([]Mapping, error)
}

// Cache keeps resolved mapping lookups between imports.
type Cache interface {
	Get(ctx context.Context, source, externalSKU string) (id.ID, bool, error)
	Set(ctx context.Context, source, externalSKU string, productID id.ID) error
	Delete(ctx context.Context, source, externalSKU string) error
}

// NoopCache disables mapping caching.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string, string) (id.ID, bool, error) {
	return id.Nil(), false, nil
}

func (NoopCache) Set(context.Context, string, string, id.ID) error {
	return nil
}

func (NoopCache) Delete(context.Context, string, string) error {
	return nil
}
