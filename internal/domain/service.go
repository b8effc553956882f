package domain

import (
	"context"
	"fmt"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/core/tx"
	"hivepos/pkg/logger"
)

// CatalogService provides create/get/list for reference catalogs and
// records every change in the audit log.
type CatalogService[T Entity] struct {
	repo      CatalogRepository[T]
	txManager tx.Manager
	audit     AuditLogger
	hooks     *HookRegistry[T]

	// entityName for error messages and audit rows
	entityName string
}

// CatalogServiceConfig configures the catalog service.
type CatalogServiceConfig[T Entity] struct {
	Repo       CatalogRepository[T]
	TxManager  tx.Manager
	Audit      AuditLogger // optional
	EntityName string
}

// NewCatalogService creates a new catalog service.
func NewCatalogService[T Entity](cfg CatalogServiceConfig[T]) *CatalogService[T] {
	audit := cfg.Audit
	if audit == nil {
		audit = NoopAudit{}
	}
	return &CatalogService[T]{
		repo:       cfg.Repo,
		txManager:  cfg.TxManager,
		audit:      audit,
		hooks:      NewHookRegistry[T](),
		entityName: cfg.EntityName,
	}
}

// Hooks returns the hook registry for external registration.
func (s *CatalogService[T]) Hooks() *HookRegistry[T] {
	return s.hooks
}

// Create validates, runs hooks and inserts the entity in a transaction.
func (s *CatalogService[T]) Create(ctx context.Context, entity T) error {
	if err := entity.Validate(ctx); err != nil {
		if apperror.IsAppError(err) {
			return err
		}
		return apperror.NewValidation(err.Error())
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.hooks.runBeforeCreate(ctx, entity); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, entity); err != nil {
			return fmt.Errorf("create %s: %w", s.entityName, err)
		}
		return s.Audit(ctx, entity.EntityID(), AuditActionCreate, map[string]any{"after": entity})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, s.entityName+" created", "id", entity.EntityID())
	return nil
}

// Audit records a change to one catalog entry. Call it inside the
// transaction that made the change.
func (s *CatalogService[T]) Audit(ctx context.Context, entityID id.ID, action AuditAction, changes map[string]any) error {
	if err := s.audit.LogChange(ctx, s.entityName, entityID, action, changes); err != nil {
		return fmt.Errorf("audit %s: %w", s.entityName, err)
	}
	return nil
}

// GetByID retrieves entity by ID.
func (s *CatalogService[T]) GetByID(ctx context.Context, entityID id.ID) (T, error) {
	entity, err := s.repo.GetByID(ctx, entityID)
	switch {
	case err == nil:
		return entity, nil
	case apperror.IsNotFound(err):
		return entity, apperror.NewNotFound(s.entityName, entityID.String())
	case apperror.IsAppError(err):
		return entity, err
	default:
		return entity, apperror.NewInternal(err).WithDetail("entity", s.entityName).WithDetail("id", entityID.String())
	}
}

// List retrieves entities with filtering.
func (s *CatalogService[T]) List(ctx context.Context, filter ListFilter) (ListResult[T], error) {
	return s.repo.List(ctx, filter.Normalize())
}
