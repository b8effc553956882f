package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/id"
	"hivepos/internal/domain/registers/stock"
)

const (
	tableBatches   = "batches"
	tableMovements = "stock_movements"
)

var (
	batchColumns    = columnsOf[stock.Batch]()
	movementColumns = columnsOf[stock.Movement]()
)

// StockRepo implements stock.Repository over the batches table and the
// movement ledger.
type StockRepo struct {
	repo
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a stock repository.
func NewStockRepo(txm *TxManager) *StockRepo {
	return &StockRepo{repo: newRepo(txm)}
}

func (r *StockRepo) CreateBatch(ctx context.Context, b *stock.Batch) error {
	return r.exec(ctx, r.sq.Insert(tableBatches).Columns(batchColumns...).Values(rowOf(b, batchColumns)...), "batch")
}

func (r *StockRepo) GetBatch(ctx context.Context, batchID id.ID) (*stock.Batch, error) {
	var b stock.Batch
	q := r.sq.Select(batchColumns...).From(tableBatches).Where(squirrel.Eq{"id": batchID})
	if err := r.get(ctx, &b, q, "batch", batchID.String()); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns batches in FEFO order: earliest expiry first, batches
// without expiry last, ties broken by receipt time.
func (r *StockRepo) ListBatches(ctx context.Context, productID id.ID, availableOnly bool) ([]stock.Batch, error) {
	q := r.sq.Select(batchColumns...).From(tableBatches).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("expiry_date ASC NULLS LAST", "created_at ASC")
	if availableOnly {
		q = q.Where(squirrel.Gt{"quantity": 0})
	}
	var out []stock.Batch
	if err := r.selectAll(ctx, &out, q, "batches"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StockRepo) DecrementBatch(ctx context.Context, batchID id.ID, qty int) (bool, error) {
	n, err := r.execCount(ctx, r.sq.Update(tableBatches).
		Set("quantity", squirrel.Expr("quantity - ?", qty)).
		Where(squirrel.Eq{"id": batchID}).
		Where(squirrel.GtOrEq{"quantity": qty}), "batch")
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *StockRepo) IncrementBatch(ctx context.Context, batchID id.ID, qty int) error {
	n, err := r.execCount(ctx, r.sq.Update(tableBatches).
		Set("quantity", squirrel.Expr("quantity + ?", qty)).
		Where(squirrel.Eq{"id": batchID}), "batch")
	if err != nil {
		return err
	}
	return expectOne(n, "batch", batchID.String())
}

func (r *StockRepo) SetBatchQuantity(ctx context.Context, batchID id.ID, qty int) error {
	n, err := r.execCount(ctx, r.sq.Update(tableBatches).
		Set("quantity", qty).
		Where(squirrel.Eq{"id": batchID}), "batch")
	if err != nil {
		return err
	}
	return expectOne(n, "batch", batchID.String())
}

func (r *StockRepo) SumBatchQuantity(ctx context.Context, productID id.ID, unexpiredAsOf *time.Time) (int, error) {
	q := r.sq.Select("COALESCE(SUM(quantity), 0)").From(tableBatches).
		Where(squirrel.Eq{"product_id": productID})
	if unexpiredAsOf != nil {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"expiry_date": nil},
			squirrel.GtOrEq{"expiry_date": *unexpiredAsOf},
		})
	}
	return r.scanInt(ctx, q, "batch quantity")
}

func (r *StockRepo) AppendMovements(ctx context.Context, movements []stock.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	rows := make([][]any, len(movements))
	for i := range movements {
		rows[i] = rowOf(&movements[i], movementColumns)
	}
	return r.insertRows(ctx, tableMovements, movementColumns, rows)
}

func (r *StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	q := r.sq.Select(movementColumns...).From(tableMovements).OrderBy("created_at", "id")
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Type})
	}
	if filter.ReferenceType != nil {
		q = q.Where(squirrel.Eq{"reference_type": *filter.ReferenceType})
	}
	if len(filter.ReferenceIDs) > 0 {
		q = q.Where(squirrel.Eq{"reference_id": filter.ReferenceIDs})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	var out []stock.Movement
	if err := r.selectAll(ctx, &out, q, "stock movements"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StockRepo) LedgerBalance(ctx context.Context, productID id.ID) (int, error) {
	q := r.sq.Select(fmt.Sprintf(
		"COALESCE(SUM(CASE WHEN movement_type IN ('%s', '%s') THEN quantity ELSE -quantity END), 0)",
		stock.MovementIn, stock.MovementAdjustment)).
		From(tableMovements).
		Where(squirrel.Eq{"product_id": productID})
	return r.scanInt(ctx, q, "ledger balance")
}
