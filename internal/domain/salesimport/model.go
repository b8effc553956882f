// Package salesimport reconciles point-of-sale exports against inventory:
// parsing, grouping, idempotent order creation, and rollback of whole runs.
package salesimport

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
	"hivepos/internal/domain"
)

// Status is the lifecycle state of an import run.
type Status string

const (
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
	StatusRolledBack          Status = "rolled_back"
)

// maxBatchErrors bounds the error list kept on an import batch.
const maxBatchErrors = 100

// ParsedLine is one approved, validated row of an export.
type ParsedLine struct {
	Timestamp     time.Time   `json:"timestamp"`
	ProductName   string      `json:"productName"`
	ProductSKU    string      `json:"productSku"`
	Quantity      int         `json:"quantity"`
	UnitPrice     types.Money `json:"unitPrice"`
	Discount      types.Money `json:"discount"`
	LineTotal     types.Money `json:"lineTotal"`
	Status        string      `json:"status"`
	Category      string      `json:"category"`
	ReceiptNumber string      `json:"receiptNumber,omitempty"`
}

// TransactionGroup is a set of lines close enough in time to be one sale.
type TransactionGroup struct {
	Timestamp   time.Time    `json:"timestamp"`
	TotalAmount types.Money  `json:"totalAmount"`
	Lines       []ParsedLine `json:"lines"`
}

// NewGroup builds a group from time-ordered lines.
func NewGroup(lines []ParsedLine) TransactionGroup {
	total := types.Zero()
	for _, l := range lines {
		total = total.Add(l.LineTotal)
	}
	g := TransactionGroup{TotalAmount: total, Lines: lines}
	if len(lines) > 0 {
		g.Timestamp = lines[0].Timestamp
	}
	return g
}

// FirstSKU returns the SKU of the chronologically first line.
func (g TransactionGroup) FirstSKU() string {
	if len(g.Lines) == 0 {
		return ""
	}
	first := g.Lines[0]
	for _, l := range g.Lines[1:] {
		if l.Timestamp.Before(first.Timestamp) {
			first = l
		}
	}
	return first.ProductSKU
}

// Key is the group's idempotency fingerprint:
// source|timestamp rounded to the second|total to 2dp|first SKU.
func (g TransactionGroup) Key(source string) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		source,
		g.Timestamp.UTC().Round(time.Second).Format(time.RFC3339),
		g.TotalAmount.StringFixed(types.MoneyPlaces),
		g.FirstSKU(),
	)
}

// Validate checks a group received from a client.
func (g TransactionGroup) Validate() error {
	if len(g.Lines) == 0 {
		return fmt.Errorf("group has no lines")
	}
	if g.Timestamp.IsZero() {
		return fmt.Errorf("group has no timestamp")
	}
	for i, l := range g.Lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be positive", i)
		}
		if l.LineTotal.IsNegative() {
			return fmt.Errorf("line %d: total must not be negative", i)
		}
	}
	return nil
}

// Normalized rebuilds a client-supplied group from its lines: lines are put
// in time order (a line without a timestamp takes the group's) and the total
// and timestamp are recomputed, so they always agree with the lines.
func (g TransactionGroup) Normalized() TransactionGroup {
	lines := make([]ParsedLine, len(g.Lines))
	copy(lines, g.Lines)
	for i := range lines {
		if lines[i].Timestamp.IsZero() {
			lines[i].Timestamp = g.Timestamp
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Timestamp.Before(lines[j].Timestamp)
	})
	return NewGroup(lines)
}

// DateRange is the span of parsed timestamps.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// ParseResult is the outcome of parsing an export.
type ParseResult struct {
	Groups       []TransactionGroup `json:"groups"`
	TotalRows    int                `json:"totalRows"`
	ValidRows    int                `json:"validRows"`
	ExcludedRows int                `json:"excludedRows"`
	DateRange    DateRange          `json:"dateRange"`
	Warnings     []string           `json:"warnings"`
}

// Batch is one import run and its statistics.
type Batch struct {
	ID                id.ID      `db:"id" json:"id"`
	BatchNumber       string     `db:"batch_number" json:"batchNumber"`
	FileName          *string    `db:"file_name" json:"fileName,omitempty"`
	StartDate         time.Time  `db:"start_date" json:"startDate"`
	EndDate           time.Time  `db:"end_date" json:"endDate"`
	Status            Status     `db:"status" json:"status"`
	OrdersCreated     int        `db:"orders_created" json:"ordersCreated"`
	OrdersSkipped     int        `db:"orders_skipped" json:"ordersSkipped"`
	ItemsImported     int        `db:"items_imported" json:"itemsImported"`
	UnmatchedProducts int        `db:"unmatched_products" json:"unmatchedProducts"`
	Errors            []string   `db:"errors" json:"errors"`
	CreatedBy         *string    `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	CompletedAt       *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

// AddError appends a run error, keeping the list bounded.
func (b *Batch) AddError(msg string) {
	switch {
	case len(b.Errors) < maxBatchErrors:
		b.Errors = append(b.Errors, msg)
	case len(b.Errors) == maxBatchErrors:
		b.Errors = append(b.Errors, "further errors omitted")
	}
}

// RollbackAllowed reports whether the run can be rolled back from its current state.
func (b *Batch) RollbackAllowed() bool {
	return b.Status == StatusCompleted || b.Status == StatusCompletedWithErrors
}

// Repository persists import batches.
type Repository interface {
	Create(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, batchID id.ID) (*Batch, error)

	// GetForUpdate locks the batch row for the rest of the transaction.
	GetForUpdate(ctx context.Context, batchID id.ID) (*Batch, error)

	// Update writes status, counters, errors and completion time.
	Update(ctx context.Context, batch *Batch) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Batch], error)
}
