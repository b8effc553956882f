package sales

import (
	"context"
	"fmt"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	corenumerator "hivepos/internal/core/numerator"
	"hivepos/internal/core/tx"
	"hivepos/internal/core/types"
	"hivepos/internal/domain"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/cost"
	"hivepos/pkg/logger"
)

// ProductReader loads catalog products.
type ProductReader interface {
	GetByID(ctx context.Context, productID id.ID) (*product.Product, error)
}

// ServiceConfig wires the sales service.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager
	Products  ProductReader
	Stock     Allocator
	Numerator corenumerator.Generator
	Publisher domain.EventPublisher
}

// Service handles till checkout, order reads and invoicing.
type Service struct {
	repo      Repository
	txManager tx.Manager
	products  ProductReader
	stock     Allocator
	numerator corenumerator.Generator
	publisher domain.EventPublisher
	now       func() time.Time
}

// NewService creates a new sales service.
func NewService(cfg ServiceConfig) *Service {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = domain.NoopPublisher{}
	}
	return &Service{
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		products:  cfg.Products,
		stock:     cfg.Stock,
		numerator: cfg.Numerator,
		publisher: publisher,
		now:       time.Now,
	}
}

// CheckoutLine is one product sold at the till. A missing UnitPrice uses the catalog price.
type CheckoutLine struct {
	ProductID id.ID
	Quantity  int
	UnitPrice types.NullMoney
}

// CheckoutRequest is a manual sale.
type CheckoutRequest struct {
	Lines            []CheckoutLine
	PaymentMethod    PaymentMethod
	CustomerID       *id.ID
	MarketEventID    *id.ID
	PaymentReference string
}

// Validate checks the request before any lookup.
func (r CheckoutRequest) Validate() error {
	if len(r.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for i, l := range r.Lines {
		if id.IsNil(l.ProductID) {
			return apperror.NewValidation(fmt.Sprintf("line %d: product is required", i))
		}
		if l.Quantity <= 0 {
			return apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i))
		}
		if l.UnitPrice.Valid && l.UnitPrice.Decimal.IsNegative() {
			return apperror.NewValidation(fmt.Sprintf("line %d: unit price must not be negative", i))
		}
	}
	switch r.PaymentMethod {
	case PaymentCash, PaymentCard:
	default:
		return apperror.NewValidation("payment method must be cash or card").WithDetail("field", "paymentMethod")
	}
	return nil
}

// CheckoutResult is the persisted sale with any stock warnings.
type CheckoutResult struct {
	OrderDetail
	Warnings []string `json:"warnings"`
}

type pricedLine struct {
	product   *product.Product
	quantity  int
	lineTotal types.Money
}

// Checkout records a till sale: order, items drawn FEFO, a completed payment
// and the sale financial transaction. Stock shortfalls are returned as warnings.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lines := make([]pricedLine, 0, len(req.Lines))
	total := types.Zero()
	for _, l := range req.Lines {
		p, err := s.products.GetByID(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, apperror.NewInvalidState("product "+p.SKU, "inactive")
		}
		price := p.UnitPrice
		if l.UnitPrice.Valid {
			price = l.UnitPrice.Decimal
		}
		lineTotal := types.Round(types.MulInt(price, l.Quantity))
		lines = append(lines, pricedLine{product: p, quantity: l.Quantity, lineTotal: lineTotal})
		total = total.Add(lineTotal)
	}

	now := s.now().UTC()
	number, err := corenumerator.Next(ctx, s.numerator, corenumerator.OrderPolicy, now)
	if err != nil {
		return nil, fmt.Errorf("order number: %w", err)
	}

	result := &CheckoutResult{}
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order := &Order{
			ID:            id.New(),
			OrderNumber:   number,
			CustomerID:    req.CustomerID,
			MarketEventID: req.MarketEventID,
			TotalAmount:   total,
			Status:        OrderCompleted,
			CreatedAt:     now,
		}
		if err := s.repo.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		var acc cost.Accumulator
		var items []OrderItem
		var warnings []string
		for _, l := range lines {
			out, err := SellLine(ctx, s.stock, order.ID, l.product, l.quantity, l.lineTotal, &acc)
			if err != nil {
				return err
			}
			items = append(items, out.Items...)
			if out.Shortfall > 0 {
				warnings = append(warnings, fmt.Sprintf("insufficient stock for %s: %d of %d units not covered by any batch",
					l.product.SKU, out.Shortfall, l.quantity))
			}
		}
		if err := s.repo.CreateItems(ctx, items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}

		payment, ft, err := s.settle(ctx, order, req.PaymentMethod, req.PaymentReference, acc.Totals(total))
		if err != nil {
			return err
		}

		if err := s.publisher.Publish(ctx, domain.Event{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     domain.EventOrderCreated,
			Payload: map[string]any{
				"orderNumber": order.OrderNumber,
				"total":       order.TotalAmount.StringFixed(types.MoneyPlaces),
				"profit":      ft.Profit.StringFixed(types.MoneyPlaces),
			},
		}); err != nil {
			return fmt.Errorf("publish order created: %w", err)
		}

		result.Order = order
		result.Items = items
		result.Payments = []Payment{*payment}
		result.Transactions = []FinancialTransaction{*ft}
		result.Warnings = warnings
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "order created",
		"order_id", result.Order.ID,
		"order_number", result.Order.OrderNumber,
		"total", result.Order.TotalAmount.String(),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// Settle records the completed payment and the sale financial transaction for an order.
// Must run inside the caller's transaction.
func (s *Service) Settle(ctx context.Context, order *Order, method PaymentMethod, reference string, totals cost.Totals) (*Payment, *FinancialTransaction, error) {
	return s.settle(ctx, order, method, reference, totals)
}

func (s *Service) settle(ctx context.Context, order *Order, method PaymentMethod, reference string, totals cost.Totals) (*Payment, *FinancialTransaction, error) {
	payment := &Payment{
		ID:        id.New(),
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		Method:    method,
		Status:    PaymentCompleted,
		CreatedAt: order.CreatedAt,
	}
	if reference != "" {
		payment.ExternalReference = &reference
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("create payment: %w", err)
	}

	ft := &FinancialTransaction{
		ID:            id.New(),
		OrderID:       order.ID,
		Type:          TransactionSale,
		Amount:        totals.Revenue,
		Cost:          totals.Cost,
		Profit:        totals.Profit,
		PaymentMethod: &method,
		CreatedAt:     order.CreatedAt,
	}
	if err := s.repo.CreateFinancialTransaction(ctx, ft); err != nil {
		return nil, nil, fmt.Errorf("create financial transaction: %w", err)
	}
	return payment, ft, nil
}

// GetDetail loads an order with its items, payments, transactions and invoice.
func (s *Service) GetDetail(ctx context.Context, orderID id.ID) (*OrderDetail, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: order}

	if detail.Items, err = s.repo.ListItems(ctx, orderID); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if detail.Payments, err = s.repo.ListPayments(ctx, orderID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if detail.Transactions, err = s.repo.ListFinancialTransactions(ctx, orderID); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	invoice, err := s.repo.GetInvoiceByOrder(ctx, orderID)
	switch {
	case err == nil:
		detail.Invoice = invoice
	case !apperror.IsNotFound(err):
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return detail, nil
}

// IssueInvoice issues the order's invoice. An order keeps a single invoice;
// repeated calls return the existing one.
func (s *Service) IssueInvoice(ctx context.Context, orderID id.ID, customerName string) (*Invoice, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetInvoiceByOrder(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	now := s.now().UTC()
	number, err := corenumerator.Next(ctx, s.numerator, corenumerator.InvoicePolicy, now)
	if err != nil {
		return nil, fmt.Errorf("invoice number: %w", err)
	}

	invoice := &Invoice{
		ID:            id.New(),
		InvoiceNumber: number,
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		CustomerName:  customerName,
		IssuedAt:      now,
	}
	if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
		if apperror.IsDuplicate(err) {
			return s.repo.GetInvoiceByOrder(ctx, orderID)
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	logger.Info(ctx, "invoice issued", "order_id", orderID, "invoice_number", number)
	return invoice, nil
}
