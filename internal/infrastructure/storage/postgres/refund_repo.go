package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/id"
	"hivepos/internal/domain/refund"
)

const tableRefunds = "refunds"

var refundColumns = columnsOf[refund.Refund]()

// RefundRepo implements refund.Repository. Items are stored as jsonb.
type RefundRepo struct {
	repo
}

var _ refund.Repository = (*RefundRepo)(nil)

// NewRefundRepo creates a refund repository.
func NewRefundRepo(txm *TxManager) *RefundRepo {
	return &RefundRepo{repo: newRepo(txm)}
}

func (r *RefundRepo) base() squirrel.SelectBuilder {
	return r.sq.Select(refundColumns...).From(tableRefunds)
}

func (r *RefundRepo) Create(ctx context.Context, rf *refund.Refund) error {
	if rf.Items == nil {
		rf.Items = []refund.Item{}
	}
	return r.exec(ctx, r.sq.Insert(tableRefunds).Columns(refundColumns...).Values(rowOf(rf, refundColumns)...), "refund")
}

func (r *RefundRepo) Get(ctx context.Context, refundID id.ID) (*refund.Refund, error) {
	return r.one(ctx, r.base().Where(squirrel.Eq{"id": refundID}), refundID.String())
}

func (r *RefundRepo) GetForUpdate(ctx context.Context, refundID id.ID) (*refund.Refund, error) {
	return r.one(ctx, r.base().Where(squirrel.Eq{"id": refundID}).Suffix("FOR UPDATE"), refundID.String())
}

func (r *RefundRepo) FindByGatewayReference(ctx context.Context, reference string) (*refund.Refund, error) {
	return r.one(ctx, r.base().Where(squirrel.Eq{"gateway_reference": reference}), reference)
}

func (r *RefundRepo) one(ctx context.Context, q squirrel.SelectBuilder, key string) (*refund.Refund, error) {
	var rf refund.Refund
	if err := r.get(ctx, &rf, q, "refund", key); err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *RefundRepo) Update(ctx context.Context, rf *refund.Refund) error {
	n, err := r.execCount(ctx, r.sq.Update(tableRefunds).
		Set("status", rf.Status).
		Set("gateway_reference", rf.GatewayReference).
		Set("failure_reason", rf.FailureReason).
		Set("completed_at", rf.CompletedAt).
		Where(squirrel.Eq{"id": rf.ID}), "refund")
	if err != nil {
		return err
	}
	return expectOne(n, "refund", rf.ID.String())
}

func (r *RefundRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]refund.Refund, error) {
	var out []refund.Refund
	if err := r.selectAll(ctx, &out, r.base().Where(squirrel.Eq{"order_id": orderID}).OrderBy("created_at"), "refunds"); err != nil {
		return nil, err
	}
	return out, nil
}

// HasRefunds ignores rejected refunds; they moved neither money nor stock.
func (r *RefundRepo) HasRefunds(ctx context.Context, orderIDs []id.ID) (bool, error) {
	if len(orderIDs) == 0 {
		return false, nil
	}
	sub := r.sq.Select("1").From(tableRefunds).
		Where(squirrel.Eq{"order_id": orderIDs}).
		Where(squirrel.Eq{"status": []refund.Status{refund.StatusPending, refund.StatusCompleted}}).
		Limit(1)
	n, err := r.count(ctx, sub, "refunds")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
