package refund_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/app"
	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/refund"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/internal/infrastructure/storage/memory"
)

type fakeGateway struct {
	err      error
	requests []refund.GatewayRequest
}

func (g *fakeGateway) Refund(_ context.Context, req refund.GatewayRequest) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return "gw-" + req.RefundNumber, nil
}

type fixture struct {
	svc     *app.Services
	ctx     context.Context
	gateway *fakeGateway
	product *product.Product
	batch   *stock.Batch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &fakeGateway{}
	svc := app.NewServices(app.MemoryRepositories(memory.New()), app.Options{JWTSecret: "test", Gateway: gw})
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "admin-1", Roles: []string{appctx.RoleAdmin}, IsAdmin: true})

	p := product.NewProduct("HNY-1", "Fynbos Honey", "honey", types.MustMoney("100"))
	p.CostPrice = types.SomeMoney(types.MustMoney("60"))
	require.NoError(t, svc.Products.Create(ctx, p))

	b := stock.NewBatch(p.ID, "B1", 10, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil, types.NullMoney{})
	require.NoError(t, svc.Stock.Receive(ctx, b))

	return &fixture{svc: svc, ctx: ctx, gateway: gw, product: p, batch: b}
}

func (f *fixture) sell(t *testing.T, qty int, method sales.PaymentMethod) *sales.CheckoutResult {
	t.Helper()
	res, err := f.svc.Sales.Checkout(f.ctx, sales.CheckoutRequest{
		Lines:            []sales.CheckoutLine{{ProductID: f.product.ID, Quantity: qty}},
		PaymentMethod:    method,
		PaymentReference: "pay-123",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) batchQuantity(t *testing.T) int {
	t.Helper()
	b, err := f.svc.Stock.GetBatch(f.ctx, f.batch.ID)
	require.NoError(t, err)
	return b.Quantity
}

func refundTransaction(t *testing.T, d *sales.OrderDetail) sales.FinancialTransaction {
	t.Helper()
	for _, ft := range d.Transactions {
		if ft.Type == sales.TransactionRefund {
			return ft
		}
	}
	t.Fatal("no refund transaction")
	return sales.FinancialTransaction{}
}

func TestReverse_IsProportional(t *testing.T) {
	sale := sales.FinancialTransaction{
		Type:   sales.TransactionSale,
		Amount: types.MustMoney("100"),
		Cost:   types.MustMoney("60"),
		Profit: types.MustMoney("40"),
	}

	r := refund.Reverse(sale, types.MustMoney("50"))

	assert.Equal(t, sales.TransactionRefund, r.Type)
	assert.True(t, r.Amount.Equal(types.MustMoney("-50")))
	assert.True(t, r.Cost.Equal(types.MustMoney("-30")))
	assert.True(t, r.Profit.Equal(types.MustMoney("-20")))
}

func TestCreate_CashCompletesAndRestoresStock(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, 1, sales.PaymentCash)
	require.Equal(t, 9, f.batchQuantity(t))

	r, err := f.svc.Refunds.Create(f.ctx, refund.Request{
		OrderID: sale.Order.ID,
		Amount:  types.MustMoney("50"),
		Reason:  "cracked jar",
		Items:   []refund.Item{{OrderItemID: sale.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, refund.StatusCompleted, r.Status)
	assert.NotNil(t, r.CompletedAt)
	assert.Empty(t, f.gateway.requests)
	assert.Equal(t, 10, f.batchQuantity(t))

	detail, err := f.svc.Sales.GetDetail(f.ctx, sale.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.OrderPartiallyRefunded, detail.Order.Status)
	ft := refundTransaction(t, detail)
	assert.True(t, ft.Amount.Equal(types.MustMoney("-50")))
	assert.True(t, ft.Cost.Equal(types.MustMoney("-30")))
	assert.True(t, ft.Profit.Equal(types.MustMoney("-20")))
}

func TestCreate_FullAmountMarksOrderRefunded(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, 2, sales.PaymentCash)

	_, err := f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("150")})
	require.NoError(t, err)
	_, err = f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("50")})
	require.NoError(t, err)

	detail, err := f.svc.Sales.GetDetail(f.ctx, sale.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.OrderRefunded, detail.Order.Status)

	_, err = f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("0.01")})
	assert.True(t, apperror.HasCode(err, apperror.CodeRefundExceedsRemaining))
}

func TestCreate_RejectsExcessItemQuantity(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, 1, sales.PaymentCash)

	_, err := f.svc.Refunds.Create(f.ctx, refund.Request{
		OrderID: sale.Order.ID,
		Amount:  types.MustMoney("10"),
		Items:   []refund.Item{{OrderItemID: sale.Items[0].ID, Quantity: 2}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeRefundExceedsRemaining))
	assert.Equal(t, 9, f.batchQuantity(t))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, 1, sales.PaymentCash)

	for name, req := range map[string]refund.Request{
		"zero amount":   {OrderID: sale.Order.ID, Amount: types.Zero()},
		"fractional":    {OrderID: sale.Order.ID, Amount: types.MustMoney("1.005")},
		"missing order": {Amount: types.MustMoney("1")},
		"zero item qty": {OrderID: sale.Order.ID, Amount: types.MustMoney("1"), Items: []refund.Item{{OrderItemID: sale.Items[0].ID}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Refunds.Create(f.ctx, req)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

func TestCreate_CardWaitsForCallback(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, 1, sales.PaymentCard)

	r, err := f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("40")})
	require.NoError(t, err)
	assert.Equal(t, refund.StatusPending, r.Status)
	require.NotNil(t, r.GatewayReference)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, "pay-123", f.gateway.requests[0].PaymentReference)

	detail, err := f.svc.Sales.GetDetail(f.ctx, sale.Order.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Transactions, 1, "no reversal before the gateway confirms")

	done, err := f.svc.Refunds.HandleCallback(f.ctx, refund.Callback{GatewayReference: *r.GatewayReference, Status: refund.CallbackSucceeded})
	require.NoError(t, err)
	assert.Equal(t, refund.StatusCompleted, done.Status)

	again, err := f.svc.Refunds.HandleCallback(f.ctx, refund.Callback{GatewayReference: *r.GatewayReference, Status: refund.CallbackSucceeded})
	require.NoError(t, err)
	assert.Equal(t, refund.StatusCompleted, again.Status)

	detail, err = f.svc.Sales.GetDetail(f.ctx, sale.Order.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Transactions, 2, "repeated callback does not reverse twice")
}

func TestCreate_CardFailedCallbackRejects(t *testing.T) {
	f := newFixture(t)
	sale := f.sell(t, 1, sales.PaymentCard)

	r, err := f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("100")})
	require.NoError(t, err)

	rejected, err := f.svc.Refunds.HandleCallback(f.ctx, refund.Callback{GatewayReference: *r.GatewayReference, Status: refund.CallbackFailed})
	require.NoError(t, err)
	assert.Equal(t, refund.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.FailureReason)
	assert.Equal(t, "rejected by gateway", *rejected.FailureReason)

	_, err = f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("100")})
	require.NoError(t, err, "a rejected refund frees the balance")
}

func TestCreate_GatewayErrorRejects(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("connection refused")
	sale := f.sell(t, 1, sales.PaymentCard)

	r, err := f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("40")})
	assert.True(t, apperror.HasCode(err, apperror.CodeGateway))
	require.NotNil(t, r)

	stored, err := f.svc.Refunds.Get(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.StatusRejected, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "connection refused")
}

func TestHandleCallback_UnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Refunds.HandleCallback(f.ctx, refund.Callback{GatewayReference: "nope", Status: refund.CallbackSucceeded})
	assert.True(t, apperror.IsNotFound(err))
}

// lockRecorder counts order row locks taken through the repository.
type lockRecorder struct {
	sales.Repository
	mu    sync.Mutex
	locks int
}

func (r *lockRecorder) GetOrderForUpdate(ctx context.Context, orderID id.ID) (*sales.Order, error) {
	r.mu.Lock()
	r.locks++
	r.mu.Unlock()
	return r.Repository.GetOrderForUpdate(ctx, orderID)
}

func TestCreate_ConcurrentRefundsNeverExceedOrderTotal(t *testing.T) {
	repos := app.MemoryRepositories(memory.New())
	orders := &lockRecorder{Repository: repos.Sales}
	repos.Sales = orders
	svc := app.NewServices(repos, app.Options{JWTSecret: "test"})
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "admin-1", Roles: []string{appctx.RoleAdmin}, IsAdmin: true})

	p := product.NewProduct("HNY-1", "Fynbos Honey", "honey", types.MustMoney("100"))
	require.NoError(t, svc.Products.Create(ctx, p))
	require.NoError(t, svc.Stock.Receive(ctx, stock.NewBatch(p.ID, "B1", 5, time.Now(), nil, types.NullMoney{})))
	sale, err := svc.Sales.Checkout(ctx, sales.CheckoutRequest{
		Lines:         []sales.CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: sales.PaymentCash,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Refunds.Create(ctx, refund.Request{OrderID: sale.Order.ID, Amount: types.MustMoney("60")})
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.True(t, apperror.HasCode(err, apperror.CodeRefundExceedsRemaining), err.Error())
			failed++
		}
	}
	assert.Equal(t, 1, failed, "only one 60 refund fits a 100 order")
	assert.Equal(t, 2, orders.locks)
}
