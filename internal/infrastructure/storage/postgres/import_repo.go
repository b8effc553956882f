package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/id"
	"hivepos/internal/domain"
	"hivepos/internal/domain/salesimport"
)

const tableImportBatches = "import_batches"

var importColumns = columnsOf[salesimport.Batch]()

// ImportRepo implements salesimport.Repository.
type ImportRepo struct {
	repo
}

var _ salesimport.Repository = (*ImportRepo)(nil)

// NewImportRepo creates an import batch repository.
func NewImportRepo(txm *TxManager) *ImportRepo {
	return &ImportRepo{repo: newRepo(txm)}
}

func (r *ImportRepo) Create(ctx context.Context, b *salesimport.Batch) error {
	if b.Errors == nil {
		b.Errors = []string{}
	}
	return r.exec(ctx, r.sq.Insert(tableImportBatches).Columns(importColumns...).Values(rowOf(b, importColumns)...), "import batch")
}

func (r *ImportRepo) Get(ctx context.Context, batchID id.ID) (*salesimport.Batch, error) {
	return r.getBatch(ctx, r.sq.Select(importColumns...).From(tableImportBatches).Where(squirrel.Eq{"id": batchID}), batchID)
}

func (r *ImportRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*salesimport.Batch, error) {
	return r.getBatch(ctx, r.sq.Select(importColumns...).From(tableImportBatches).Where(squirrel.Eq{"id": batchID}).Suffix("FOR UPDATE"), batchID)
}

func (r *ImportRepo) getBatch(ctx context.Context, q squirrel.SelectBuilder, batchID id.ID) (*salesimport.Batch, error) {
	var b salesimport.Batch
	if err := r.get(ctx, &b, q, "import batch", batchID.String()); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *ImportRepo) Update(ctx context.Context, b *salesimport.Batch) error {
	errs := b.Errors
	if errs == nil {
		errs = []string{}
	}
	n, err := r.execCount(ctx, r.sq.Update(tableImportBatches).
		Set("status", b.Status).
		Set("orders_created", b.OrdersCreated).
		Set("orders_skipped", b.OrdersSkipped).
		Set("items_imported", b.ItemsImported).
		Set("unmatched_products", b.UnmatchedProducts).
		Set("errors", errs).
		Set("completed_at", b.CompletedAt).
		Where(squirrel.Eq{"id": b.ID}), "import batch")
	if err != nil {
		return err
	}
	return expectOne(n, "import batch", b.ID.String())
}

// List returns import runs newest first.
func (r *ImportRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*salesimport.Batch], error) {
	result := domain.ListResult[*salesimport.Batch]{Limit: filter.Limit, Offset: filter.Offset}

	q := r.sq.Select(importColumns...).From(tableImportBatches)
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"batch_number": pattern},
			squirrel.ILike{"file_name": pattern},
		})
	}

	total, err := r.count(ctx, q, "import batches")
	if err != nil {
		return result, err
	}
	result.TotalCount = total

	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	if err := r.selectAll(ctx, &result.Items, q, "import batches"); err != nil {
		return result, err
	}
	return result, nil
}
