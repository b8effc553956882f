package market

import (
	"context"
	"fmt"
	"time"

	"hivepos/internal/core/id"
	"hivepos/internal/core/tx"
	"hivepos/internal/domain"
)

// Repository persists market events.
type Repository interface {
	domain.CatalogRepository[*Event]

	// ListOverlapping returns events whose date range intersects [from, to].
	ListOverlapping(ctx context.Context, from, to time.Time) ([]*Event, error)
}

// Service provides market event operations.
type Service struct {
	*domain.CatalogService[*Event]
	repo Repository
}

// NewService creates a new market event service.
func NewService(repo Repository, txManager tx.Manager, audit domain.AuditLogger) *Service {
	return &Service{
		CatalogService: domain.NewCatalogService(domain.CatalogServiceConfig[*Event]{
			Repo:       repo,
			TxManager:  txManager,
			Audit:      audit,
			EntityName: "market event",
		}),
		repo: repo,
	}
}

// Linker attributes timestamps to events by calendar date.
type Linker struct {
	events []*Event
	loc    *time.Location
}

// NewLinker loads the events overlapping [from, to] once for a whole import run.
func (s *Service) NewLinker(ctx context.Context, from, to time.Time, loc *time.Location) (*Linker, error) {
	if loc == nil {
		loc = time.UTC
	}
	events, err := s.repo.ListOverlapping(ctx, truncateDate(from.In(loc)), truncateDate(to.In(loc)))
	if err != nil {
		return nil, fmt.Errorf("list overlapping events: %w", err)
	}
	return &Linker{events: events, loc: loc}, nil
}

// Match returns the first event whose range contains the calendar date of ts.
func (l *Linker) Match(ts time.Time) *id.ID {
	if l == nil {
		return nil
	}
	date := ts.In(l.loc).Format(dateLayout)
	for _, e := range l.events {
		if e.Covers(date) {
			eventID := e.ID
			return &eventID
		}
	}
	return nil
}
