package refund

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	corenumerator "hivepos/internal/core/numerator"
	"hivepos/internal/core/tx"
	"hivepos/internal/core/types"
	"hivepos/internal/domain"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/pkg/logger"
)

// errGatewayUnavailable is returned for card refunds when no gateway is configured.
var errGatewayUnavailable = errors.New("payment gateway not configured")

// Restorer puts units back on batches.
type Restorer interface {
	Restore(ctx context.Context, reqs []stock.RestoreRequest) error
}

// ServiceConfig wires the refund service.
type ServiceConfig struct {
	Repo      Repository
	Orders    sales.Repository
	Stock     Restorer
	Gateway   Gateway
	TxManager tx.Manager
	Numerator corenumerator.Generator
	Publisher domain.EventPublisher
	Audit     domain.AuditLogger
}

// Service creates and completes refunds.
type Service struct {
	repo      Repository
	orders    sales.Repository
	stock     Restorer
	gateway   Gateway
	txManager tx.Manager
	numerator corenumerator.Generator
	publisher domain.EventPublisher
	audit     domain.AuditLogger
	now       func() time.Time
}

// NewService creates a new refund service. A nil gateway rejects card refunds.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:      cfg.Repo,
		orders:    cfg.Orders,
		stock:     cfg.Stock,
		gateway:   cfg.Gateway,
		txManager: cfg.TxManager,
		numerator: cfg.Numerator,
		publisher: cfg.Publisher,
		audit:     cfg.Audit,
		now:       time.Now,
	}
	if s.publisher == nil {
		s.publisher = domain.NoopPublisher{}
	}
	if s.audit == nil {
		s.audit = domain.NoopAudit{}
	}
	return s
}

// Request is a refund of part or all of an order.
type Request struct {
	OrderID   id.ID
	PaymentID *id.ID
	Amount    types.Money
	Reason    string
	Items     []Item
}

func (r Request) validate() error {
	if id.IsNil(r.OrderID) {
		return apperror.NewValidation("order is required").WithDetail("field", "orderId")
	}
	if !r.Amount.IsPositive() {
		return apperror.NewValidation("refund amount must be positive").WithDetail("field", "amount")
	}
	if !r.Amount.Equal(r.Amount.Round(types.MoneyPlaces)) {
		return apperror.NewValidation("refund amount has more than two decimal places").WithDetail("field", "amount")
	}
	seen := make(map[id.ID]bool, len(r.Items))
	for i, it := range r.Items {
		if it.Quantity <= 0 {
			return apperror.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
		if seen[it.OrderItemID] {
			return apperror.NewValidation(fmt.Sprintf("item %d: order item listed twice", i))
		}
		seen[it.OrderItemID] = true
	}
	return nil
}

// Create records a refund. Cash and imported payments complete at once;
// card payments go to the gateway and stay pending until its callback. A
// gateway failure leaves the refund rejected and is returned as a gateway error.
func (s *Service) Create(ctx context.Context, req Request) (*Refund, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	number, err := corenumerator.Next(ctx, s.numerator, corenumerator.RefundPolicy, now)
	if err != nil {
		return nil, fmt.Errorf("refund number: %w", err)
	}

	var (
		r       *Refund
		payment *sales.Payment
	)
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// Concurrent refunds of one order queue here, so each sees the others' amounts.
		order, err := s.orders.GetOrderForUpdate(ctx, req.OrderID)
		if err != nil {
			return err
		}
		payment, err = s.resolvePayment(ctx, order.ID, req.PaymentID)
		if err != nil {
			return err
		}
		if err := s.checkRefundable(ctx, order, req); err != nil {
			return err
		}

		r = &Refund{
			ID:           id.New(),
			RefundNumber: number,
			OrderID:      order.ID,
			PaymentID:    id.Ptr(payment.ID),
			Amount:       req.Amount,
			Method:       string(payment.Method),
			Status:       StatusPending,
			Reason:       strings.TrimSpace(req.Reason),
			Items:        req.Items,
			CreatedAt:    now,
		}
		if r.Items == nil {
			r.Items = []Item{}
		}
		r.CreatedBy = appctx.Actor(ctx)
		if err := s.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create refund: %w", err)
		}

		if payment.ViaGateway() {
			return nil
		}
		return s.complete(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	if !payment.ViaGateway() {
		logger.Info(ctx, "refund completed", "refund_id", r.ID, "order_id", r.OrderID, "amount", r.Amount.String())
		return r, nil
	}
	return s.submit(ctx, r, payment)
}

// submit hands a pending card refund to the gateway.
func (s *Service) submit(ctx context.Context, r *Refund, payment *sales.Payment) (*Refund, error) {
	reference := ""
	if payment.ExternalReference != nil {
		reference = *payment.ExternalReference
	}

	var gatewayRef string
	var gwErr error
	if s.gateway == nil {
		gwErr = errGatewayUnavailable
	} else {
		gatewayRef, gwErr = s.gateway.Refund(ctx, GatewayRequest{
			RefundID:         r.ID,
			RefundNumber:     r.RefundNumber,
			PaymentReference: reference,
			Amount:           r.Amount,
		})
	}

	if gwErr != nil {
		reason := gwErr.Error()
		r.Status = StatusRejected
		r.FailureReason = &reason
		if err := s.repo.Update(ctx, r); err != nil {
			logger.Error(ctx, "mark refund rejected", "refund_id", r.ID, "error", err)
		}
		logger.Warn(ctx, "gateway refund failed", "refund_id", r.ID, "order_id", r.OrderID, "error", gwErr)
		return r, apperror.NewGateway(gwErr).WithDetail("refund_id", r.ID.String())
	}

	r.GatewayReference = &gatewayRef
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("store gateway reference: %w", err)
	}
	logger.Info(ctx, "refund submitted to gateway", "refund_id", r.ID, "gateway_reference", gatewayRef)
	return r, nil
}

// HandleCallback applies a gateway completion notice. Repeated notices for a
// refund that already reached a final state change nothing.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (*Refund, error) {
	if strings.TrimSpace(cb.GatewayReference) == "" {
		return nil, apperror.NewValidation("reference is required")
	}

	var out *Refund
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindByGatewayReference(ctx, cb.GatewayReference)
		if err != nil {
			return err
		}
		r, err := s.repo.GetForUpdate(ctx, found.ID)
		if err != nil {
			return err
		}
		out = r

		if r.Status != StatusPending {
			logger.Info(ctx, "refund callback ignored", "refund_id", r.ID, "status", r.Status, "callback_status", cb.Status)
			return nil
		}

		switch cb.Status {
		case CallbackSucceeded:
			return s.complete(ctx, r)
		case CallbackFailed:
			reason := cb.Reason
			if reason == "" {
				reason = "rejected by gateway"
			}
			r.Status = StatusRejected
			r.FailureReason = &reason
			return s.repo.Update(ctx, r)
		default:
			return apperror.NewValidation(fmt.Sprintf("unknown callback status %q", cb.Status))
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// complete restores selected items, records the proportional reversal and
// marks the refund completed. Must run inside a transaction.
func (s *Service) complete(ctx context.Context, r *Refund) error {
	order, err := s.orders.GetOrder(ctx, r.OrderID)
	if err != nil {
		return err
	}

	if err := s.restoreItems(ctx, r); err != nil {
		return err
	}

	txs, err := s.orders.ListFinancialTransactions(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	sale := saleTransaction(txs)
	if sale == nil {
		return apperror.NewInvalidState("order "+order.OrderNumber, "no sale transaction")
	}

	method := sales.PaymentMethod(r.Method)
	reversal := Reverse(*sale, r.Amount)
	reversal.ID = id.New()
	reversal.PaymentMethod = &method
	reversal.CreatedAt = s.now().UTC()
	if err := s.orders.CreateFinancialTransaction(ctx, &reversal); err != nil {
		return fmt.Errorf("create refund transaction: %w", err)
	}

	refunded := r.Amount
	for _, ft := range txs {
		if ft.Type == sales.TransactionRefund {
			refunded = refunded.Add(ft.Amount.Neg())
		}
	}
	status := sales.OrderPartiallyRefunded
	if refunded.GreaterThanOrEqual(order.TotalAmount) {
		status = sales.OrderRefunded
	}
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	completed := s.now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &completed
	if err := s.repo.Update(ctx, r); err != nil {
		return fmt.Errorf("complete refund: %w", err)
	}

	if err := s.publisher.Publish(ctx, domain.Event{
		AggregateType: "refund",
		AggregateID:   r.ID,
		EventType:     domain.EventRefundCompleted,
		Payload: map[string]any{
			"refundNumber": r.RefundNumber,
			"orderId":      r.OrderID.String(),
			"amount":       r.Amount.StringFixed(types.MoneyPlaces),
			"orderStatus":  status,
		},
	}); err != nil {
		return fmt.Errorf("publish refund completed: %w", err)
	}
	return s.audit.LogChange(ctx, "refund", r.ID, domain.AuditActionRefund, map[string]any{
		"orderId": r.OrderID.String(),
		"amount":  r.Amount.StringFixed(types.MoneyPlaces),
		"items":   r.Items,
		"method":  r.Method,
	})
}

func (s *Service) restoreItems(ctx context.Context, r *Refund) error {
	if len(r.Items) == 0 {
		return nil
	}
	items, err := s.orders.ListItems(ctx, r.OrderID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	byID := make(map[id.ID]sales.OrderItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var restores []stock.RestoreRequest
	for _, sel := range r.Items {
		it, ok := byID[sel.OrderItemID]
		if !ok {
			return apperror.NewValidation("order item does not belong to the order").
				WithDetail("orderItemId", sel.OrderItemID.String())
		}
		if it.BatchID == nil || it.ProductID == nil {
			continue
		}
		restores = append(restores, stock.RestoreRequest{
			ProductID:     *it.ProductID,
			BatchID:       *it.BatchID,
			Quantity:      sel.Quantity,
			MovementType:  stock.MovementIn,
			ReferenceType: stock.RefRefund,
			ReferenceID:   r.ID,
		})
	}
	return s.stock.Restore(ctx, restores)
}

func (s *Service) resolvePayment(ctx context.Context, orderID id.ID, paymentID *id.ID) (*sales.Payment, error) {
	if paymentID != nil {
		p, err := s.orders.GetPayment(ctx, *paymentID)
		if err != nil {
			return nil, err
		}
		if p.OrderID != orderID {
			return nil, apperror.NewValidation("payment does not belong to the order").WithDetail("field", "paymentId")
		}
		return p, nil
	}

	payments, err := s.orders.ListPayments(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	for i := range payments {
		if payments[i].Status == sales.PaymentCompleted {
			return &payments[i], nil
		}
	}
	return nil, apperror.NewInvalidState("order", "unpaid")
}

// checkRefundable rejects amounts or item quantities beyond what earlier
// pending and completed refunds left.
func (s *Service) checkRefundable(ctx context.Context, order *sales.Order, req Request) error {
	existing, err := s.repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list refunds: %w", err)
	}

	refunded := types.Zero()
	returned := make(map[id.ID]int)
	for _, r := range existing {
		if !r.Counts() {
			continue
		}
		refunded = refunded.Add(r.Amount)
		for _, it := range r.Items {
			returned[it.OrderItemID] += it.Quantity
		}
	}

	remaining := order.TotalAmount.Sub(refunded)
	if req.Amount.GreaterThan(remaining) {
		return apperror.NewBusinessRule(apperror.CodeRefundExceedsRemaining, "refund exceeds the remaining refundable amount").
			WithDetail("requested", req.Amount.StringFixed(types.MoneyPlaces)).
			WithDetail("remaining", remaining.StringFixed(types.MoneyPlaces))
	}

	if len(req.Items) == 0 {
		return nil
	}
	items, err := s.orders.ListItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	sold := make(map[id.ID]int, len(items))
	for _, it := range items {
		sold[it.ID] = it.Quantity
	}
	for _, sel := range req.Items {
		qty, ok := sold[sel.OrderItemID]
		if !ok {
			return apperror.NewValidation("order item does not belong to the order").
				WithDetail("orderItemId", sel.OrderItemID.String())
		}
		if left := qty - returned[sel.OrderItemID]; sel.Quantity > left {
			return apperror.NewBusinessRule(apperror.CodeRefundExceedsRemaining, "refund returns more units than remain on the item").
				WithDetail("orderItemId", sel.OrderItemID.String()).
				WithDetail("remaining", left)
		}
	}
	return nil
}

// Get returns a refund by ID.
func (s *Service) Get(ctx context.Context, refundID id.ID) (*Refund, error) {
	return s.repo.Get(ctx, refundID)
}

// ListByOrder returns an order's refunds.
func (s *Service) ListByOrder(ctx context.Context, orderID id.ID) ([]Refund, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

func saleTransaction(txs []sales.FinancialTransaction) *sales.FinancialTransaction {
	for i := range txs {
		if txs[i].Type == sales.TransactionSale {
			return &txs[i]
		}
	}
	return nil
}

// Reverse builds the refund transaction mirroring sale scaled by
// amount / sale.Amount: amount, cost and profit are negated proportionally.
func Reverse(sale sales.FinancialTransaction, amount types.Money) sales.FinancialTransaction {
	fraction := types.Zero()
	if !sale.Amount.IsZero() {
		fraction = amount.Div(sale.Amount)
	}
	refundAmount := types.Round(amount).Neg()
	refundCost := types.Round(sale.Cost.Mul(fraction)).Neg()
	return sales.FinancialTransaction{
		OrderID: sale.OrderID,
		Type:    sales.TransactionRefund,
		Amount:  refundAmount,
		Cost:    refundCost,
		Profit:  refundAmount.Sub(refundCost),
	}
}
