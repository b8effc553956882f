// Package market provides market/sales events (farmers' markets, fairs) that orders can be attributed to.
package market

import (
	"context"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
)

const dateLayout = "2006-01-02"

// Event is a dated selling occasion. StartDate and EndDate are calendar dates, inclusive.
type Event struct {
	ID        id.ID     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Location  string    `db:"location" json:"location"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewEvent creates an event spanning the given calendar dates.
func NewEvent(name, location string, start, end time.Time) *Event {
	return &Event{
		ID:        id.New(),
		Name:      strings.TrimSpace(name),
		Location:  strings.TrimSpace(location),
		StartDate: truncateDate(start),
		EndDate:   truncateDate(end),
		CreatedAt: time.Now().UTC(),
	}
}

// EntityID implements domain.Entity.
func (e *Event) EntityID() id.ID { return e.ID }

// Validate checks event invariants.
func (e *Event) Validate(ctx context.Context) error {
	if e.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return apperror.NewValidation("start and end dates are required")
	}
	if e.EndDate.Before(e.StartDate) {
		return apperror.NewValidation("end date must not be before start date").
			WithDetail("startDate", e.StartDate.Format(dateLayout)).
			WithDetail("endDate", e.EndDate.Format(dateLayout))
	}
	return nil
}

// Covers reports whether the calendar date (YYYY-MM-DD) falls inside the event.
func (e *Event) Covers(date string) bool {
	return date >= e.StartDate.Format(dateLayout) && date <= e.EndDate.Format(dateLayout)
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
