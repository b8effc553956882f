package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
)

// ProductRepo implements product.Repository.
type ProductRepo struct{ s *Store }

var _ product.Repository = (*ProductRepo)(nil)

// Products returns the product repository.
func (s *Store) Products() *ProductRepo { return &ProductRepo{s: s} }

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	var err error
	r.s.write(ctx, func(st *state) {
		for _, existing := range st.products {
			if existing.SKU == p.SKU {
				err = apperror.NewDuplicate("product", "sku", p.SKU)
				return
			}
		}
		st.products[p.ID] = *p
	})
	return err
}

func (r *ProductRepo) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	var out *product.Product
	r.s.read(func(st *state) {
		if p, ok := st.products[productID]; ok {
			p.TotalStock = totalStock(st, productID)
			out = &p
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return out, nil
}

func (r *ProductRepo) List(_ context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var all []*product.Product
	r.s.read(func(st *state) {
		for _, p := range st.products {
			if !p.IsActive && !filter.IncludeInactive {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(p.Name), search) &&
				!strings.Contains(strings.ToLower(p.SKU), search) {
				continue
			}
			p.TotalStock = totalStock(st, p.ID)
			all = append(all, &p)
		}
	})
	slices.SortFunc(all, func(a, b *product.Product) int { return cmp.Compare(a.SKU, b.SKU) })

	return domain.ListResult[*product.Product]{
		Items:      page(all, filter.Limit, filter.Offset),
		TotalCount: int64(len(all)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *ProductRepo) FindBySKU(_ context.Context, sku string, activeOnly bool) (*product.Product, error) {
	var out *product.Product
	r.s.read(func(st *state) {
		for _, p := range st.products {
			if p.SKU != sku || (activeOnly && !p.IsActive) {
				continue
			}
			p.TotalStock = totalStock(st, p.ID)
			out = &p
			return
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("product", sku)
	}
	return out, nil
}

func (r *ProductRepo) SetActive(ctx context.Context, productID id.ID, active bool) error {
	var found bool
	r.s.write(ctx, func(st *state) {
		p, ok := st.products[productID]
		if !ok {
			return
		}
		found = true
		p.IsActive = active
		p.UpdatedAt = time.Now().UTC()
		st.products[productID] = p
	})
	if !found {
		return apperror.NewNotFound("product", productID.String())
	}
	return nil
}

func totalStock(st *state, productID id.ID) int {
	total := 0
	for _, b := range st.batches {
		if b.ProductID == productID {
			total += b.Quantity
		}
	}
	return total
}

// EventRepo implements market.Repository.
type EventRepo struct{ s *Store }

var _ market.Repository = (*EventRepo)(nil)

// Events returns the market event repository.
func (s *Store) Events() *EventRepo { return &EventRepo{s: s} }

func (r *EventRepo) Create(ctx context.Context, e *market.Event) error {
	r.s.write(ctx, func(st *state) { st.events[e.ID] = *e })
	return nil
}

func (r *EventRepo) GetByID(_ context.Context, eventID id.ID) (*market.Event, error) {
	var out *market.Event
	r.s.read(func(st *state) {
		if e, ok := st.events[eventID]; ok {
			out = &e
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("market event", eventID.String())
	}
	return out, nil
}

func (r *EventRepo) List(_ context.Context, filter domain.ListFilter) (domain.ListResult[*market.Event], error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var all []*market.Event
	r.s.read(func(st *state) {
		for _, e := range st.events {
			if search != "" && !strings.Contains(strings.ToLower(e.Name), search) {
				continue
			}
			all = append(all, &e)
		}
	})
	slices.SortFunc(all, compareEvents)

	return domain.ListResult[*market.Event]{
		Items:      page(all, filter.Limit, filter.Offset),
		TotalCount: int64(len(all)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func (r *EventRepo) ListOverlapping(_ context.Context, from, to time.Time) ([]*market.Event, error) {
	var out []*market.Event
	r.s.read(func(st *state) {
		for _, e := range st.events {
			if !e.StartDate.After(to) && !e.EndDate.Before(from) {
				out = append(out, &e)
			}
		}
	})
	slices.SortFunc(out, compareEvents)
	return out, nil
}

func compareEvents(a, b *market.Event) int {
	if c := a.StartDate.Compare(b.StartDate); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}
