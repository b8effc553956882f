package domain

import (
	"context"

	"hivepos/internal/core/id"
)

// Event types written to the transactional outbox.
const (
	EventImportCompleted  = "ImportCompleted"
	EventImportRolledBack = "ImportRolledBack"
	EventRefundCompleted  = "RefundCompleted"
	EventOrderCreated     = "OrderCreated"
)

// Event is a domain event published inside the business transaction.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// EventPublisher writes events to the outbox.
// Publish must be called inside the transaction that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// AuditAction represents the type of audited operation.
type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionImport   AuditAction = "import"
	AuditActionRollback AuditAction = "rollback"
	AuditActionRefund   AuditAction = "refund"
)

// AuditLogger records who changed what.
type AuditLogger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action AuditAction, changes map[string]any) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// NoopAudit discards audit entries.
type NoopAudit struct{}

func (NoopAudit) LogChange(context.Context, string, id.ID, AuditAction, map[string]any) error {
	return nil
}
