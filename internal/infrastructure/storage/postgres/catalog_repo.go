package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/id"
	"hivepos/internal/domain"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
)

const (
	tableProducts = "products"
	tableEvents   = "market_events"
)

var productColumns = columnsOf[product.Product]("total_stock")

// totalStockExpr derives a product's stock from its batches on read.
const totalStockExpr = "COALESCE((SELECT SUM(b.quantity) FROM batches b WHERE b.product_id = products.id), 0) AS total_stock"

// ProductRepo implements product.Repository.
type ProductRepo struct {
	repo
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a product repository.
func NewProductRepo(txm *TxManager) *ProductRepo {
	return &ProductRepo{repo: newRepo(txm)}
}

func (r *ProductRepo) base() squirrel.SelectBuilder {
	return r.sq.Select(productColumns...).Column(totalStockExpr).From(tableProducts)
}

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	return r.exec(ctx, r.sq.Insert(tableProducts).Columns(productColumns...).Values(rowOf(p, productColumns)...), "product")
}

func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	var p product.Product
	if err := r.get(ctx, &p, r.base().Where(squirrel.Eq{"id": productID}), "product", productID.String()); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	result := domain.ListResult[*product.Product]{Limit: filter.Limit, Offset: filter.Offset}

	q := r.base()
	if !filter.IncludeInactive {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"sku": pattern},
		})
	}

	total, err := r.count(ctx, q, "products")
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	q = q.OrderBy("sku")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	if err := r.selectAll(ctx, &result.Items, q, "products"); err != nil {
		return result, err
	}
	return result, nil
}

func (r *ProductRepo) FindBySKU(ctx context.Context, sku string, activeOnly bool) (*product.Product, error) {
	q := r.base().Where(squirrel.Eq{"sku": sku})
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	var p product.Product
	if err := r.get(ctx, &p, q.Limit(1), "product", sku); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) SetActive(ctx context.Context, productID id.ID, active bool) error {
	n, err := r.execCount(ctx, r.sq.Update(tableProducts).
		Set("is_active", active).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": productID}), "product")
	if err != nil {
		return err
	}
	return expectOne(n, "product", productID.String())
}

var eventColumns = columnsOf[market.Event]()

// EventRepo implements market.Repository.
type EventRepo struct {
	repo
}

var _ market.Repository = (*EventRepo)(nil)

// NewEventRepo creates a market event repository.
func NewEventRepo(txm *TxManager) *EventRepo {
	return &EventRepo{repo: newRepo(txm)}
}

func (r *EventRepo) Create(ctx context.Context, e *market.Event) error {
	return r.exec(ctx, r.sq.Insert(tableEvents).Columns(eventColumns...).Values(rowOf(e, eventColumns)...), "market event")
}

func (r *EventRepo) GetByID(ctx context.Context, eventID id.ID) (*market.Event, error) {
	var e market.Event
	q := r.sq.Select(eventColumns...).From(tableEvents).Where(squirrel.Eq{"id": eventID})
	if err := r.get(ctx, &e, q, "market event", eventID.String()); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*market.Event], error) {
	result := domain.ListResult[*market.Event]{Limit: filter.Limit, Offset: filter.Offset}

	q := r.sq.Select(eventColumns...).From(tableEvents)
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"location": pattern},
		})
	}

	total, err := r.count(ctx, q, "market events")
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	q = q.OrderBy("start_date DESC", "name")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	if err := r.selectAll(ctx, &result.Items, q, "market events"); err != nil {
		return result, err
	}
	return result, nil
}

func (r *EventRepo) ListOverlapping(ctx context.Context, from, to time.Time) ([]*market.Event, error) {
	var out []*market.Event
	q := r.sq.Select(eventColumns...).From(tableEvents).
		Where(squirrel.LtOrEq{"start_date": to}).
		Where(squirrel.GtOrEq{"end_date": from}).
		OrderBy("start_date", "created_at")
	if err := r.selectAll(ctx, &out, q, "market events"); err != nil {
		return nil, err
	}
	return out, nil
}
