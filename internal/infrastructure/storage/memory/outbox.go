package memory

import (
	"context"
	"slices"
	"time"

	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/domain"
)

// AuditEntry is one recorded change.
type AuditEntry struct {
	EntityType string
	EntityID   id.ID
	Action     domain.AuditAction
	UserID     string
	Changes    map[string]any
	CreatedAt  time.Time
}

// Outbox implements domain.EventPublisher. Events written inside a failed
// transaction disappear with it.
type Outbox struct{ s *Store }

var _ domain.EventPublisher = (*Outbox)(nil)

// Outbox returns the event publisher.
func (s *Store) Outbox() *Outbox { return &Outbox{s: s} }

func (o *Outbox) Publish(ctx context.Context, event domain.Event) error {
	o.s.write(ctx, func(st *state) { st.outbox = append(st.outbox, event) })
	return nil
}

// Events returns published events, oldest first.
func (o *Outbox) Events() []domain.Event {
	var out []domain.Event
	o.s.read(func(st *state) { out = slices.Clone(st.outbox) })
	return out
}

// AuditLog implements domain.AuditLogger.
type AuditLog struct{ s *Store }

var _ domain.AuditLogger = (*AuditLog)(nil)

// Audit returns the audit logger.
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }

func (a *AuditLog) LogChange(ctx context.Context, entityType string, entityID id.ID, action domain.AuditAction, changes map[string]any) error {
	entry := AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     appctx.GetUserID(ctx),
		Changes:    changes,
		CreatedAt:  time.Now().UTC(),
	}
	a.s.write(ctx, func(st *state) { st.audit = append(st.audit, entry) })
	return nil
}

// Entries returns recorded audit entries, oldest first.
func (a *AuditLog) Entries() []AuditEntry {
	var out []AuditEntry
	a.s.read(func(st *state) { out = slices.Clone(st.audit) })
	return out
}
