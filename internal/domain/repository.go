// Package domain holds the pieces shared by every domain package: list
// paging, the catalog service base and domain events.
package domain

import (
	"context"

	"hivepos/internal/core/id"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListFilter narrows catalog and history listings.
type ListFilter struct {
	// Search is a case-insensitive substring of name or SKU.
	Search string

	// IncludeInactive also lists deactivated products.
	IncludeInactive bool

	Limit  int
	Offset int
}

// DefaultListFilter returns the first page of active records.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: defaultListLimit}
}

// Normalize clamps paging to sane bounds. Out-of-range limits fall back to
// the default page size.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = defaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListResult is one page plus the total matching count.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// Validatable is implemented by entities that check their own invariants.
type Validatable interface {
	Validate(ctx context.Context) error
}

// Entity is a catalog entry.
type Entity interface {
	Validatable
	EntityID() id.ID
}

// CatalogRepository stores a reference catalog (products, market events).
type CatalogRepository[T Entity] interface {
	Create(ctx context.Context, entity T) error
	GetByID(ctx context.Context, id id.ID) (T, error)
	List(ctx context.Context, filter ListFilter) (ListResult[T], error)
}

// Hook runs inside the create transaction, after validation and before the insert.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry holds the before-create hooks of one catalog.
type HookRegistry[T any] struct {
	beforeCreate []Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{}
}

// OnBeforeCreate registers a hook; a hook error aborts the create.
func (r *HookRegistry[T]) OnBeforeCreate(hook Hook[T]) {
	r.beforeCreate = append(r.beforeCreate, hook)
}

func (r *HookRegistry[T]) runBeforeCreate(ctx context.Context, entity T) error {
	for _, hook := range r.beforeCreate {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}
