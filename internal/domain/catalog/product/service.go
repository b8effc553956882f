package product

import (
	"context"
	"fmt"
	"time"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/core/tx"
	"hivepos/internal/domain"
	"hivepos/pkg/logger"
)

// StockChecker reports stock that blocks deactivation.
type StockChecker interface {
	// UnexpiredQuantity sums batch quantities with no expiry or expiry after asOf.
	UnexpiredQuantity(ctx context.Context, productID id.ID, asOf time.Time) (int, error)
}

// Service provides business logic for the product catalog.
type Service struct {
	*domain.CatalogService[*Product]
	repo      Repository
	txManager tx.Manager
	stock     StockChecker
	now       func() time.Time
}

// NewService creates a new product service.
func NewService(repo Repository, txManager tx.Manager, stock StockChecker, audit domain.AuditLogger) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txManager,
		Audit:      audit,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		txManager:      txManager,
		stock:          stock,
		now:            time.Now,
	}

	base.Hooks().OnBeforeCreate(svc.checkSKUUnique)

	return svc
}

func (s *Service) checkSKUUnique(ctx context.Context, p *Product) error {
	existing, err := s.repo.FindBySKU(ctx, p.SKU, false)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("check sku: %w", err)
	}
	if existing.ID != p.ID {
		return apperror.NewDuplicate("product", "sku", p.SKU)
	}
	return nil
}

// Deactivate soft-deactivates a product. Products holding unexpired stock stay active.
func (s *Service) Deactivate(ctx context.Context, productID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.GetByID(ctx, productID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return nil
		}

		qty, err := s.stock.UnexpiredQuantity(ctx, productID, s.now())
		if err != nil {
			return fmt.Errorf("unexpired stock: %w", err)
		}
		if qty > 0 {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule, "product still has unexpired stock").
				WithDetail("product_id", productID).
				WithDetail("quantity", qty)
		}

		if err := s.repo.SetActive(ctx, productID, false); err != nil {
			return fmt.Errorf("deactivate product: %w", err)
		}
		if err := s.Audit(ctx, productID, domain.AuditActionUpdate, map[string]any{"isActive": false}); err != nil {
			return err
		}
		logger.Info(ctx, "product deactivated", "product_id", productID, "sku", p.SKU)
		return nil
	})
}

// Reactivate restores a deactivated product. Admin only.
func (s *Service) Reactivate(ctx context.Context, productID id.ID) error {
	if err := appctx.RequireAdmin(ctx, "reactivating products"); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetByID(ctx, productID); err != nil {
			return err
		}
		if err := s.repo.SetActive(ctx, productID, true); err != nil {
			return fmt.Errorf("reactivate product: %w", err)
		}
		if err := s.Audit(ctx, productID, domain.AuditActionUpdate, map[string]any{"isActive": true}); err != nil {
			return err
		}
		logger.Info(ctx, "product reactivated", "product_id", productID)
		return nil
	})
}

// FindActiveBySKU resolves an exact SKU against active products.
func (s *Service) FindActiveBySKU(ctx context.Context, sku string) (*Product, error) {
	return s.repo.FindBySKU(ctx, sku, true)
}
