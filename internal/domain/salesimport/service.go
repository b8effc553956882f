package salesimport

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	corenumerator "hivepos/internal/core/numerator"
	"hivepos/internal/core/tx"
	"hivepos/internal/core/types"
	"hivepos/internal/domain"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/cost"
	"hivepos/internal/domain/matching"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/pkg/logger"
)

var tracer = otel.Tracer("hivepos/salesimport")

// Inventory is the stock register as seen by imports and rollbacks.
type Inventory interface {
	Allocate(ctx context.Context, req stock.AllocateRequest) (stock.AllocationResult, error)
	Restore(ctx context.Context, reqs []stock.RestoreRequest) error
	ListMovements(ctx context.Context, filter stock.MovementFilter) ([]stock.Movement, error)
}

// Matching builds per-run product matchers and persists mappings.
type Matching interface {
	NewMatcher(source string, overrides map[string]id.ID) *matching.Matcher
	SaveOverrides(ctx context.Context, source string, overrides map[string]id.ID, names map[string]string) error
}

// Settler records payment and the sale transaction for an order.
type Settler interface {
	Settle(ctx context.Context, order *sales.Order, method sales.PaymentMethod, reference string, totals cost.Totals) (*sales.Payment, *sales.FinancialTransaction, error)
}

// EventLinker loads market events for attributing orders.
type EventLinker interface {
	NewLinker(ctx context.Context, from, to time.Time, loc *time.Location) (*market.Linker, error)
}

// RefundChecker reports whether any of the orders were refunded.
type RefundChecker interface {
	HasRefunds(ctx context.Context, orderIDs []id.ID) (bool, error)
}

// ServiceConfig wires the import service.
type ServiceConfig struct {
	Batches   Repository
	Orders    sales.Repository
	Settler   Settler
	Inventory Inventory
	Matching  Matching
	Events    EventLinker
	Refunds   RefundChecker
	TxManager tx.Manager
	Numerator corenumerator.Generator
	Publisher domain.EventPublisher
	Audit     domain.AuditLogger
	Parser    *Parser

	// Location is the time zone used for calendar-date event linking.
	Location *time.Location

	// AutoLinkEvents attributes orders to market events by date.
	AutoLinkEvents bool
}

// Service runs imports and rollbacks.
type Service struct {
	batches   Repository
	orders    sales.Repository
	settler   Settler
	inventory Inventory
	matching  Matching
	events    EventLinker
	refunds   RefundChecker
	txManager tx.Manager
	numerator corenumerator.Generator
	publisher domain.EventPublisher
	audit     domain.AuditLogger
	parser    *Parser
	loc       *time.Location
	autoLink  bool
	now       func() time.Time
}

// NewService creates a new import service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		batches:   cfg.Batches,
		orders:    cfg.Orders,
		settler:   cfg.Settler,
		inventory: cfg.Inventory,
		matching:  cfg.Matching,
		events:    cfg.Events,
		refunds:   cfg.Refunds,
		txManager: cfg.TxManager,
		numerator: cfg.Numerator,
		publisher: cfg.Publisher,
		audit:     cfg.Audit,
		parser:    cfg.Parser,
		loc:       cfg.Location,
		autoLink:  cfg.AutoLinkEvents && cfg.Events != nil,
		now:       time.Now,
	}
	if s.publisher == nil {
		s.publisher = domain.NoopPublisher{}
	}
	if s.audit == nil {
		s.audit = domain.NoopAudit{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.parser == nil {
		s.parser = NewParser(s.loc, nil)
	}
	return s
}

// Parser returns the configured export parser.
func (s *Service) Parser() *Parser {
	return s.parser
}

// Request is an import of parsed groups.
type Request struct {
	Groups              []TransactionGroup
	StartDate           time.Time
	EndDate             time.Time
	FileName            string
	ProductMappings     map[string]id.ID
	SaveProductMappings bool
}

// Result summarises an import run.
type Result struct {
	NewOrders         int      `json:"newOrders"`
	SkippedDuplicates int      `json:"skippedDuplicates"`
	TotalItems        int      `json:"totalItems"`
	UnmatchedProducts int      `json:"unmatchedProducts"`
	UnmatchedSKUs     []string `json:"unmatchedSkus"`
	ImportBatchID     id.ID    `json:"importBatchId"`
	BatchNumber       string   `json:"batchNumber"`
	Status            Status   `json:"status"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings"`
}

// groupOutcome is what importing one group produced. err is set when the
// group failed and nothing of it was persisted.
type groupOutcome struct {
	created  bool
	skipped  bool
	items    int
	warnings []string
	err      error
}

// Import creates orders for every group not seen before. One failing group
// is recorded on the batch and does not stop the others.
func (s *Service) Import(ctx context.Context, req Request) (*Result, error) {
	if err := appctx.RequireAdmin(ctx, "importing sales"); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req.Groups = normalizeGroups(req.Groups)

	ctx, span := tracer.Start(ctx, "salesimport.Import",
		trace.WithAttributes(attribute.Int("import.groups", len(req.Groups))))
	defer span.End()

	now := s.now().UTC()
	number, err := corenumerator.Next(ctx, s.numerator, corenumerator.ImportPolicy, now)
	if err != nil {
		return nil, fmt.Errorf("import number: %w", err)
	}

	batch := &Batch{
		ID:          id.New(),
		BatchNumber: number,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      StatusProcessing,
		Errors:      []string{},
		CreatedAt:   now,
	}
	if req.FileName != "" {
		batch.FileName = &req.FileName
	}
	batch.CreatedBy = appctx.Actor(ctx)
	if err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.batches.Create(ctx, batch)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create import batch")
		return nil, fmt.Errorf("create import batch: %w", err)
	}
	span.SetAttributes(attribute.String("import.batch_id", batch.ID.String()))

	logger.Info(ctx, "import started",
		"import_batch_id", batch.ID,
		"batch_number", batch.BatchNumber,
		"groups", len(req.Groups),
	)

	result, err := s.run(ctx, batch, req)
	if err != nil {
		s.fail(ctx, batch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("import.orders_created", result.NewOrders),
		attribute.Int("import.orders_skipped", result.SkippedDuplicates),
		attribute.Int("import.unmatched", result.UnmatchedProducts),
		attribute.String("import.status", string(result.Status)),
	)
	logger.Info(ctx, "import finished",
		"import_batch_id", batch.ID,
		"status", result.Status,
		"orders_created", result.NewOrders,
		"orders_skipped", result.SkippedDuplicates,
		"items", result.TotalItems,
		"unmatched", result.UnmatchedProducts,
		"errors", len(result.Errors),
	)
	return result, nil
}

func validateRequest(req Request) error {
	if len(req.Groups) == 0 {
		return apperror.NewValidation("no transactions to import").WithDetail("field", "groups")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return apperror.NewValidation("start and end dates are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return apperror.NewValidation("end date must not be before start date")
	}
	for i, g := range req.Groups {
		if err := g.Validate(); err != nil {
			return apperror.NewValidation(fmt.Sprintf("group %d: %v", i, err))
		}
	}
	return nil
}

// normalizeGroups recomputes totals and timestamps from the lines. Client
// values feed the order total, revenue and the dedup key, so they are not trusted.
func normalizeGroups(groups []TransactionGroup) []TransactionGroup {
	out := make([]TransactionGroup, len(groups))
	for i, g := range groups {
		out[i] = g.Normalized()
	}
	return out
}

// run does the setup steps and the group loop. An error here fails the batch.
func (s *Service) run(ctx context.Context, batch *Batch, req Request) (*Result, error) {
	if req.SaveProductMappings && len(req.ProductMappings) > 0 {
		if err := s.matching.SaveOverrides(ctx, matching.SourceYocoImport, req.ProductMappings, externalNames(req.Groups)); err != nil {
			return nil, fmt.Errorf("save product mappings: %w", err)
		}
	}

	groups := make([]TransactionGroup, len(req.Groups))
	copy(groups, req.Groups)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Timestamp.Before(groups[j].Timestamp)
	})

	var linker *market.Linker
	if s.autoLink {
		var err error
		linker, err = s.events.NewLinker(ctx, groups[0].Timestamp, groups[len(groups)-1].Timestamp, s.loc)
		if err != nil {
			return nil, fmt.Errorf("load market events: %w", err)
		}
	}

	matcher := s.matching.NewMatcher(matching.SourceYocoImport, req.ProductMappings)
	result := &Result{ImportBatchID: batch.ID, BatchNumber: batch.BatchNumber}

	for _, g := range groups {
		out := s.importGroup(ctx, batch, g, matcher, linker)
		result.Warnings = append(result.Warnings, out.warnings...)
		switch {
		case out.err != nil:
			msg := fmt.Sprintf("transaction at %s (%s, %s): %v",
				g.Timestamp.In(s.loc).Format(time.DateTime), g.FirstSKU(), g.TotalAmount.StringFixed(types.MoneyPlaces), out.err)
			batch.AddError(msg)
			logger.Warn(ctx, "import group failed", "import_batch_id", batch.ID, "key", g.Key(matching.SourceYocoImport), "error", out.err)
		case out.skipped:
			batch.OrdersSkipped++
		case out.created:
			batch.OrdersCreated++
			batch.ItemsImported += out.items
		}
	}

	unmatched := matcher.Unmatched()
	batch.UnmatchedProducts = len(unmatched)
	batch.Status = StatusCompleted
	if len(batch.Errors) > 0 {
		batch.Status = StatusCompletedWithErrors
	}
	completed := s.now().UTC()
	batch.CompletedAt = &completed

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.batches.Update(ctx, batch); err != nil {
			return fmt.Errorf("update import batch: %w", err)
		}
		if err := s.publisher.Publish(ctx, domain.Event{
			AggregateType: "import_batch",
			AggregateID:   batch.ID,
			EventType:     domain.EventImportCompleted,
			Payload: map[string]any{
				"batchNumber":       batch.BatchNumber,
				"status":            batch.Status,
				"ordersCreated":     batch.OrdersCreated,
				"ordersSkipped":     batch.OrdersSkipped,
				"itemsImported":     batch.ItemsImported,
				"unmatchedProducts": batch.UnmatchedProducts,
			},
		}); err != nil {
			return fmt.Errorf("publish import completed: %w", err)
		}
		return s.audit.LogChange(ctx, "import_batch", batch.ID, domain.AuditActionImport, map[string]any{
			"fileName":      req.FileName,
			"status":        batch.Status,
			"ordersCreated": batch.OrdersCreated,
			"ordersSkipped": batch.OrdersSkipped,
			"unmatchedSkus": unmatched,
			"errors":        batch.Errors,
		})
	})
	if err != nil {
		return nil, err
	}

	result.NewOrders = batch.OrdersCreated
	result.SkippedDuplicates = batch.OrdersSkipped
	result.TotalItems = batch.ItemsImported
	result.UnmatchedProducts = batch.UnmatchedProducts
	result.UnmatchedSKUs = unmatched
	result.Status = batch.Status
	result.Errors = batch.Errors
	return result, nil
}

// fail marks the batch failed. The original error is what the caller sees.
func (s *Service) fail(ctx context.Context, batch *Batch, cause error) {
	batch.Status = StatusFailed
	batch.AddError(cause.Error())
	completed := s.now().UTC()
	batch.CompletedAt = &completed
	if err := s.batches.Update(ctx, batch); err != nil {
		logger.Error(ctx, "mark import batch failed", "import_batch_id", batch.ID, "error", err)
	}
	logger.Error(ctx, "import failed", "import_batch_id", batch.ID, "error", cause)
}

// importGroup persists one group atomically or not at all.
func (s *Service) importGroup(ctx context.Context, batch *Batch, g TransactionGroup, matcher *matching.Matcher, linker *market.Linker) groupOutcome {
	key := g.Key(matching.SourceYocoImport)

	if _, err := s.orders.FindOrderByExternalKey(ctx, key); err == nil {
		return groupOutcome{skipped: true}
	} else if !apperror.IsNotFound(err) {
		return groupOutcome{err: fmt.Errorf("check duplicate: %w", err)}
	}

	number, err := corenumerator.Next(ctx, s.numerator, corenumerator.ImportedOrderPolicy, g.Timestamp)
	if err != nil {
		return groupOutcome{err: fmt.Errorf("order number: %w", err)}
	}

	var out groupOutcome
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		out = groupOutcome{}
		source := matching.SourceYocoImport
		batchID := batch.ID
		order := &sales.Order{
			ID:                     id.New(),
			OrderNumber:            number,
			MarketEventID:          linker.Match(g.Timestamp),
			TotalAmount:            types.Round(g.TotalAmount),
			Status:                 sales.OrderCompleted,
			ExternalSource:         &source,
			ExternalTransactionKey: &key,
			ImportBatchID:          &batchID,
			CreatedAt:              g.Timestamp.UTC(),
		}
		if err := s.orders.CreateOrder(ctx, order); err != nil {
			return err
		}

		var acc cost.Accumulator
		var items []sales.OrderItem
		for _, line := range g.Lines {
			p, _, err := matcher.Resolve(ctx, line.ProductSKU, line.ProductName)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", line.ProductSKU, err)
			}
			if p == nil {
				items = append(items, sales.UnmatchedLine(order.ID, line.ProductSKU, line.ProductName, line.Quantity, line.LineTotal, &acc))
				continue
			}
			lineItems, warning, err := s.sellLine(ctx, order.ID, p, line, &acc)
			if err != nil {
				return err
			}
			items = append(items, lineItems...)
			if warning != "" {
				out.warnings = append(out.warnings, warning)
			}
		}
		if err := s.orders.CreateItems(ctx, items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}

		if _, _, err := s.settler.Settle(ctx, order, sales.PaymentMethod(source), "", acc.Totals(order.TotalAmount)); err != nil {
			return err
		}
		out.items = len(g.Lines)
		return nil
	})

	switch {
	case err == nil:
		out.created = true
		return out
	case apperror.IsDuplicate(err):
		return groupOutcome{skipped: true}
	default:
		return groupOutcome{err: err}
	}
}

func (s *Service) sellLine(ctx context.Context, orderID id.ID, p *product.Product, line ParsedLine, acc *cost.Accumulator) ([]sales.OrderItem, string, error) {
	out, err := sales.SellLine(ctx, s.inventory, orderID, p, line.Quantity, line.LineTotal, acc)
	if err != nil {
		return nil, "", err
	}
	for i := range out.Items {
		out.Items[i].ExternalSKU = line.ProductSKU
	}
	if out.Shortfall == 0 {
		return out.Items, "", nil
	}
	return out.Items, fmt.Sprintf("insufficient stock for %s at %s: %d of %d units not covered by any batch",
		p.SKU, line.Timestamp.In(s.loc).Format(time.DateTime), out.Shortfall, line.Quantity), nil
}

func externalNames(groups []TransactionGroup) map[string]string {
	names := make(map[string]string)
	for _, g := range groups {
		for _, l := range g.Lines {
			if _, ok := names[l.ProductSKU]; !ok && l.ProductName != "" {
				names[l.ProductSKU] = l.ProductName
			}
		}
	}
	return names
}

// Preview lists the SKUs in groups that would not resolve to a product.
func (s *Service) Preview(ctx context.Context, groups []TransactionGroup, overrides map[string]id.ID) ([]string, error) {
	matcher := s.matching.NewMatcher(matching.SourceYocoImport, overrides)
	for _, g := range groups {
		for _, l := range g.Lines {
			if _, _, err := matcher.Resolve(ctx, l.ProductSKU, l.ProductName); err != nil {
				return nil, err
			}
		}
	}
	return matcher.Unmatched(), nil
}

// Get returns an import batch. Admin only.
func (s *Service) Get(ctx context.Context, batchID id.ID) (*Batch, error) {
	if err := appctx.RequireAdmin(ctx, "import history"); err != nil {
		return nil, err
	}
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("import batch", batchID.String())
		}
		return nil, err
	}
	return b, nil
}

// List returns import batches, newest first. Admin only.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Batch], error) {
	if err := appctx.RequireAdmin(ctx, "import history"); err != nil {
		return domain.ListResult[*Batch]{}, err
	}
	return s.batches.List(ctx, filter.Normalize())
}
