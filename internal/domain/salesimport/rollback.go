package salesimport

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/domain"
	"hivepos/internal/domain/registers/stock"
	"hivepos/pkg/logger"
)

// RollbackResult summarises a reversed import.
type RollbackResult struct {
	Message                string `json:"message"`
	OrdersDeleted          int    `json:"ordersDeleted"`
	StockRestored          int    `json:"stockRestored"`
	StockMovementsReversed int    `json:"stockMovementsReversed"`
}

// Rollback reverses a whole import run exactly once. Stock drawn by its orders
// goes back to the batches it came from, each restoration recorded as an
// adjustment movement referencing the rollback; the orders and everything hanging
// off them are deleted. The original sale movements stay in the ledger.
func (s *Service) Rollback(ctx context.Context, batchID id.ID) (*RollbackResult, error) {
	if err := appctx.RequireAdmin(ctx, "rolling back imports"); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "salesimport.Rollback",
		trace.WithAttributes(attribute.String("import.batch_id", batchID.String())))
	defer span.End()

	result := &RollbackResult{}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		*result = RollbackResult{}

		batch, err := s.batches.GetForUpdate(ctx, batchID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("import batch", batchID.String())
			}
			return err
		}
		if batch.Status == StatusRolledBack {
			return apperror.NewAlreadyRolledBack(batchID.String())
		}
		if !batch.RollbackAllowed() {
			return apperror.NewInvalidState("import batch", string(batch.Status))
		}

		orders, err := s.orders.ListOrdersByImportBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		orderIDs := make([]id.ID, len(orders))
		for i, o := range orders {
			orderIDs[i] = o.ID
		}

		if len(orderIDs) > 0 {
			if s.refunds != nil {
				refunded, err := s.refunds.HasRefunds(ctx, orderIDs)
				if err != nil {
					return fmt.Errorf("check refunds: %w", err)
				}
				if refunded {
					return apperror.NewBusinessRule(apperror.CodeInvalidState,
						"import contains refunded orders; reverse the refunds manually before rolling back").
						WithDetail("import_batch_id", batchID.String())
				}
			}

			if err := s.restoreStock(ctx, batchID, orderIDs, result); err != nil {
				return err
			}

			deleted, err := s.orders.DeleteOrders(ctx, orderIDs)
			if err != nil {
				return fmt.Errorf("delete orders: %w", err)
			}
			result.OrdersDeleted = deleted
		}

		batch.Status = StatusRolledBack
		completed := s.now().UTC()
		batch.CompletedAt = &completed
		if err := s.batches.Update(ctx, batch); err != nil {
			return fmt.Errorf("update import batch: %w", err)
		}

		if err := s.publisher.Publish(ctx, domain.Event{
			AggregateType: "import_batch",
			AggregateID:   batchID,
			EventType:     domain.EventImportRolledBack,
			Payload: map[string]any{
				"batchNumber":            batch.BatchNumber,
				"ordersDeleted":          result.OrdersDeleted,
				"stockRestored":          result.StockRestored,
				"stockMovementsReversed": result.StockMovementsReversed,
			},
		}); err != nil {
			return fmt.Errorf("publish rollback: %w", err)
		}
		return s.audit.LogChange(ctx, "import_batch", batchID, domain.AuditActionRollback, map[string]any{
			"ordersDeleted":          result.OrdersDeleted,
			"stockRestored":          result.StockRestored,
			"stockMovementsReversed": result.StockMovementsReversed,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result.Message = fmt.Sprintf("Rolled back %d orders, restored %d units", result.OrdersDeleted, result.StockRestored)
	span.SetAttributes(
		attribute.Int("rollback.orders_deleted", result.OrdersDeleted),
		attribute.Int("rollback.stock_restored", result.StockRestored),
	)
	logger.Info(ctx, "import rolled back",
		"import_batch_id", batchID,
		"orders_deleted", result.OrdersDeleted,
		"stock_restored", result.StockRestored,
		"movements_reversed", result.StockMovementsReversed,
	)
	return result, nil
}

func (s *Service) restoreStock(ctx context.Context, batchID id.ID, orderIDs []id.ID, result *RollbackResult) error {
	saleType := stock.MovementSale
	refType := stock.RefOrder
	movements, err := s.inventory.ListMovements(ctx, stock.MovementFilter{
		Type:          &saleType,
		ReferenceType: &refType,
		ReferenceIDs:  orderIDs,
	})
	if err != nil {
		return fmt.Errorf("list sale movements: %w", err)
	}

	restores := make([]stock.RestoreRequest, 0, len(movements))
	for _, m := range movements {
		if m.BatchID == nil {
			continue
		}
		restores = append(restores, stock.RestoreRequest{
			ProductID:     m.ProductID,
			BatchID:       *m.BatchID,
			Quantity:      m.Quantity,
			MovementType:  stock.MovementAdjustment,
			ReferenceType: stock.RefRollback,
			ReferenceID:   batchID,
		})
		result.StockRestored += m.Quantity
	}
	if err := s.inventory.Restore(ctx, restores); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	result.StockMovementsReversed = len(restores)
	return nil
}
