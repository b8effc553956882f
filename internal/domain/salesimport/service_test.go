package salesimport_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/app"
	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
	"hivepos/internal/domain"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/cost"
	"hivepos/internal/domain/matching"
	"hivepos/internal/domain/refund"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/internal/domain/salesimport"
	"hivepos/internal/infrastructure/numerator"
	"hivepos/internal/infrastructure/storage/memory"
)

type fixture struct {
	store *memory.Store
	svc   *app.Services
	ctx   context.Context
}

func newFixture(t *testing.T, opts app.Options) *fixture {
	t.Helper()
	store := memory.New()
	opts.JWTSecret = "test-secret"
	return &fixture{
		store: store,
		svc:   app.NewServices(app.MemoryRepositories(store), opts),
		ctx: appctx.WithUser(context.Background(), &appctx.UserContext{
			UserID:  "admin-1",
			Roles:   []string{appctx.RoleAdmin},
			IsAdmin: true,
		}),
	}
}

func (f *fixture) product(t *testing.T, sku string, costPrice string) *product.Product {
	t.Helper()
	p := product.NewProduct(sku, "Product "+sku, "honey", types.MustMoney("60"))
	if costPrice != "" {
		p.CostPrice = types.SomeMoney(types.MustMoney(costPrice))
	}
	require.NoError(t, f.svc.Products.Create(f.ctx, p))
	return p
}

func (f *fixture) batch(t *testing.T, p *product.Product, number string, qty int, expiry string, unitCost string) *stock.Batch {
	t.Helper()
	var exp *time.Time
	if expiry != "" {
		e, err := time.Parse(time.DateOnly, expiry)
		require.NoError(t, err)
		exp = &e
	}
	c := types.NullMoney{}
	if unitCost != "" {
		c = types.SomeMoney(types.MustMoney(unitCost))
	}
	b := stock.NewBatch(p.ID, number, qty, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), exp, c)
	require.NoError(t, f.svc.Stock.Receive(f.ctx, b))
	return b
}

func (f *fixture) parse(t *testing.T, csv string) *salesimport.ParseResult {
	t.Helper()
	res, err := f.svc.Imports.Parser().ParseCSV(strings.NewReader(csv), salesimport.Bounds{})
	require.NoError(t, err)
	return res
}

func (f *fixture) importCSV(t *testing.T, csv string) *salesimport.Result {
	t.Helper()
	res, err := f.svc.Imports.Import(f.ctx, request(f.parse(t, csv)))
	require.NoError(t, err)
	return res
}

func (f *fixture) quantity(t *testing.T, batchID id.ID) int {
	t.Helper()
	b, err := f.svc.Stock.GetBatch(f.ctx, batchID)
	require.NoError(t, err)
	return b.Quantity
}

func (f *fixture) orders(t *testing.T, batchID id.ID) []sales.Order {
	t.Helper()
	orders, err := f.store.Sales().ListOrdersByImportBatch(f.ctx, batchID)
	require.NoError(t, err)
	return orders
}

func request(parsed *salesimport.ParseResult) salesimport.Request {
	return salesimport.Request{
		Groups:    parsed.Groups,
		StartDate: *parsed.DateRange.Start,
		EndDate:   *parsed.DateRange.End,
		FileName:  "export.csv",
	}
}

const header = "Date,Time,Item,SKU,Quantity,Total,Status\n"

func TestImport_DrawsFEFOAndRecordsCost(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "")
	late := f.batch(t, p, "B-LATE", 5, "2026-06-01", "30")
	early := f.batch(t, p, "B-EARLY", 2, "2026-04-01", "25")

	res := f.importCSV(t, header+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,3,180.00,Approved\n")

	assert.Equal(t, 1, res.NewOrders)
	assert.Equal(t, 1, res.TotalItems)
	assert.Equal(t, salesimport.StatusCompleted, res.Status)
	assert.True(t, strings.HasPrefix(res.BatchNumber, "IMP-"), res.BatchNumber)
	assert.Zero(t, f.quantity(t, early.ID))
	assert.Equal(t, 4, f.quantity(t, late.ID))

	orders := f.orders(t, res.ImportBatchID)
	require.Len(t, orders, 1)
	detail, err := f.svc.Sales.GetDetail(f.ctx, orders[0].ID)
	require.NoError(t, err)

	require.Len(t, detail.Items, 2)
	assert.Equal(t, early.ID, *detail.Items[0].BatchID)
	assert.Equal(t, 2, detail.Items[0].Quantity)
	assert.Equal(t, late.ID, *detail.Items[1].BatchID)
	assert.True(t, detail.Items[0].Subtotal.Add(detail.Items[1].Subtotal).Equal(types.MustMoney("180")))

	sale := detail.SaleTransaction()
	require.NotNil(t, sale)
	assert.True(t, sale.Amount.Equal(types.MustMoney("180")))
	assert.True(t, sale.Cost.Equal(types.MustMoney("80")), "2×25 + 1×30, got %s", sale.Cost)
	assert.True(t, sale.Profit.Equal(types.MustMoney("100")))

	require.Len(t, detail.Payments, 1)
	assert.Equal(t, sales.PaymentMethod(matching.SourceYocoImport), detail.Payments[0].Method)
}

func TestImport_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")
	b := f.batch(t, p, "B1", 10, "", "")

	csv := header +
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n" +
		"14/03/2026,11:00:00,Fynbos Honey,HNY-1,2,120.00,Approved\n"

	first := f.importCSV(t, csv)
	assert.Equal(t, 2, first.NewOrders)
	assert.Equal(t, 7, f.quantity(t, b.ID))

	second := f.importCSV(t, csv)
	assert.Zero(t, second.NewOrders)
	assert.Equal(t, 2, second.SkippedDuplicates)
	assert.Equal(t, 7, f.quantity(t, b.ID), "replay must not touch stock")
	assert.NotEqual(t, first.ImportBatchID, second.ImportBatchID)
}

func TestImport_UnmatchedLinesKeepRevenueWithEstimatedCost(t *testing.T) {
	f := newFixture(t, app.Options{})

	res := f.importCSV(t, header+"14/03/2026,10:00:00,Mystery Jar,MYST-9,2,100.00,Approved\n")

	assert.Equal(t, 1, res.NewOrders)
	assert.Equal(t, 1, res.UnmatchedProducts)
	assert.Equal(t, []string{"MYST-9"}, res.UnmatchedSKUs)

	detail, err := f.svc.Sales.GetDetail(f.ctx, f.orders(t, res.ImportBatchID)[0].ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 1)
	assert.Nil(t, detail.Items[0].ProductID)
	assert.Nil(t, detail.Items[0].BatchID)
	assert.Equal(t, "MYST-9", detail.Items[0].ExternalSKU)
	assert.True(t, detail.SaleTransaction().Cost.Equal(types.MustMoney("60")))
}

func TestImport_ShortfallWarnsAndKeepsLedgerConsistent(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")
	b := f.batch(t, p, "B1", 2, "", "")

	res := f.importCSV(t, header+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,5,300.00,Approved\n")

	assert.Equal(t, 1, res.NewOrders)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "3 of 5 units")
	assert.Zero(t, f.quantity(t, b.ID))

	detail, err := f.svc.Sales.GetDetail(f.ctx, f.orders(t, res.ImportBatchID)[0].ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 2)
	assert.Nil(t, detail.Items[1].BatchID)
	assert.Equal(t, 3, detail.Items[1].Quantity)

	c, err := f.svc.Stock.CheckConsistency(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, c.Consistent)
	assert.Zero(t, c.LedgerBalance)
}

func TestImport_OverridesAreSavedAsMappings(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")

	parsed := f.parse(t, header+"14/03/2026,10:00:00,Honey (terminal),TERM-77,1,60.00,Approved\n")
	req := request(parsed)
	req.ProductMappings = map[string]id.ID{"TERM-77": p.ID}
	req.SaveProductMappings = true

	res, err := f.svc.Imports.Import(f.ctx, req)
	require.NoError(t, err)
	assert.Zero(t, res.UnmatchedProducts)

	saved, err := f.store.Mappings().Get(f.ctx, matching.SourceYocoImport, "TERM-77")
	require.NoError(t, err)
	assert.Equal(t, p.ID, saved.ProductID)
	require.NotNil(t, saved.ExternalName)
	assert.Equal(t, "Honey (terminal)", *saved.ExternalName)

	unmatched, err := f.svc.Imports.Preview(f.ctx, parsed.Groups, nil)
	require.NoError(t, err)
	assert.Empty(t, unmatched, "the saved mapping resolves without overrides")
}

func TestImport_LinksMarketEvents(t *testing.T) {
	f := newFixture(t, app.Options{AutoLinkEvents: true})
	ev := market.NewEvent("Saturday Market", "Town Hall",
		time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, f.svc.Events.Create(f.ctx, ev))

	res := f.importCSV(t, header+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n"+
		"15/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n")

	orders := f.orders(t, res.ImportBatchID)
	require.Len(t, orders, 2)
	require.NotNil(t, orders[0].MarketEventID)
	assert.Equal(t, ev.ID, *orders[0].MarketEventID)
	assert.Nil(t, orders[1].MarketEventID)
}

func TestImport_RequiresAdmin(t *testing.T) {
	f := newFixture(t, app.Options{})
	parsed := f.parse(t, header+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n")

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u", Roles: []string{appctx.RoleUser}})
	_, err := f.svc.Imports.Import(ctx, request(parsed))
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestImport_PublishesAndAudits(t *testing.T) {
	f := newFixture(t, app.Options{})
	res := f.importCSV(t, header+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n")

	events := f.store.Outbox().Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventImportCompleted, last.EventType)
	assert.Equal(t, res.ImportBatchID, last.AggregateID)

	entries := f.store.Audit().Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.AuditActionImport, entries[len(entries)-1].Action)
	assert.Equal(t, "admin-1", entries[len(entries)-1].UserID)
}

func TestRollback_RestoresStockExactlyOnce(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")
	early := f.batch(t, p, "B-EARLY", 2, "2026-04-01", "")
	late := f.batch(t, p, "B-LATE", 5, "2026-06-01", "")

	csv := header +
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,3,180.00,Approved\n" +
		"14/03/2026,11:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n"
	res := f.importCSV(t, csv)
	require.Equal(t, 2, res.NewOrders)
	assert.Zero(t, f.quantity(t, early.ID))
	assert.Equal(t, 3, f.quantity(t, late.ID))

	rb, err := f.svc.Imports.Rollback(f.ctx, res.ImportBatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, rb.OrdersDeleted)
	assert.Equal(t, 4, rb.StockRestored)
	assert.Equal(t, 3, rb.StockMovementsReversed)
	assert.Equal(t, "Rolled back 2 orders, restored 4 units", rb.Message)

	assert.Equal(t, 2, f.quantity(t, early.ID))
	assert.Equal(t, 5, f.quantity(t, late.ID))
	assert.Empty(t, f.orders(t, res.ImportBatchID))

	batch, err := f.svc.Imports.Get(f.ctx, res.ImportBatchID)
	require.NoError(t, err)
	assert.Equal(t, salesimport.StatusRolledBack, batch.Status)

	c, err := f.svc.Stock.CheckConsistency(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, c.Consistent)
	assert.Equal(t, 7, c.BatchTotal)

	_, err = f.svc.Imports.Rollback(f.ctx, res.ImportBatchID)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyRolledBack))
	assert.Equal(t, 2, f.quantity(t, early.ID), "second attempt changes nothing")

	again := f.importCSV(t, csv)
	assert.Equal(t, 2, again.NewOrders, "rolled back transactions can be imported again")
}

func TestRollback_RejectedWhenOrdersWereRefunded(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")
	b := f.batch(t, p, "B1", 5, "", "")

	res := f.importCSV(t, header+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,2,120.00,Approved\n")
	order := f.orders(t, res.ImportBatchID)[0]

	_, err := f.svc.Refunds.Create(f.ctx, refund.Request{OrderID: order.ID, Amount: types.MustMoney("60")})
	require.NoError(t, err)

	_, err = f.svc.Imports.Rollback(f.ctx, res.ImportBatchID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	assert.Equal(t, 3, f.quantity(t, b.ID))
	assert.Len(t, f.orders(t, res.ImportBatchID), 1)
}

func TestRollback_UnknownBatch(t *testing.T) {
	f := newFixture(t, app.Options{})
	_, err := f.svc.Imports.Rollback(f.ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestImport_RecomputesGroupTotalsFromLines(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "10")
	f.batch(t, p, "B1", 5, "", "")

	csv := header + "14/03/2026,10:00:00,Fynbos Honey,HNY-1,2,100.00,Approved\n"
	parsed := f.parse(t, csv)
	tampered := parsed.Groups[0]
	tampered.TotalAmount = types.Zero()
	tampered.Timestamp = tampered.Timestamp.Add(time.Hour)

	req := request(parsed)
	req.Groups = []salesimport.TransactionGroup{tampered}
	res, err := f.svc.Imports.Import(f.ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, res.NewOrders)

	orders := f.orders(t, res.ImportBatchID)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].TotalAmount.Equal(types.MustMoney("100")), orders[0].TotalAmount.String())
	assert.True(t, parsed.Groups[0].Timestamp.Equal(orders[0].CreatedAt), "order time comes from the earliest line")

	replay := f.importCSV(t, csv)
	assert.Zero(t, replay.NewOrders)
	assert.Equal(t, 1, replay.SkippedDuplicates, "dedup key is built from the lines, not the client total")
}

// settleFailing fails settlement for orders of one total and delegates the rest.
type settleFailing struct {
	next  salesimport.Settler
	total types.Money
}

func (s settleFailing) Settle(ctx context.Context, order *sales.Order, method sales.PaymentMethod, ref string, totals cost.Totals) (*sales.Payment, *sales.FinancialTransaction, error) {
	if order.TotalAmount.Equal(s.total) {
		return nil, nil, errors.New("card terminal offline")
	}
	return s.next.Settle(ctx, order, method, ref, totals)
}

func (f *fixture) importService(settler salesimport.Settler) *salesimport.Service {
	return salesimport.NewService(salesimport.ServiceConfig{
		Batches:   f.store.Imports(),
		Orders:    f.store.Sales(),
		Settler:   settler,
		Inventory: f.svc.Stock,
		Matching:  f.svc.Matching,
		Refunds:   f.store.Refunds(),
		TxManager: f.store.TxManager(),
		Numerator: numerator.NewMemory(),
		Publisher: f.store.Outbox(),
		Audit:     f.store.Audit(),
	})
}

func TestImport_FailingGroupIsRecordedAndOthersContinue(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")
	b := f.batch(t, p, "B1", 10, "", "")
	svc := f.importService(settleFailing{next: f.svc.Sales, total: types.MustMoney("120")})

	parsed := f.parse(t, header+
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n"+
		"14/03/2026,11:00:00,Fynbos Honey,HNY-1,2,120.00,Approved\n"+
		"14/03/2026,12:00:00,Fynbos Honey,HNY-1,3,180.00,Approved\n")
	res, err := svc.Import(f.ctx, request(parsed))
	require.NoError(t, err)

	assert.Equal(t, salesimport.StatusCompletedWithErrors, res.Status)
	assert.Equal(t, 2, res.NewOrders)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "card terminal offline")
	assert.Len(t, f.orders(t, res.ImportBatchID), 2)
	assert.Equal(t, 6, f.quantity(t, b.ID), "the failed group's stock draw is undone")

	c, err := f.svc.Stock.CheckConsistency(f.ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, c.Consistent)

	batch, err := f.svc.Imports.Get(f.ctx, res.ImportBatchID)
	require.NoError(t, err)
	assert.Equal(t, salesimport.StatusCompletedWithErrors, batch.Status)
	assert.Equal(t, res.Errors, batch.Errors)
}

func TestImport_SetupErrorFailsBatch(t *testing.T) {
	f := newFixture(t, app.Options{})
	parsed := f.parse(t, header+"14/03/2026,10:00:00,Fynbos Honey,HNY-1,1,60.00,Approved\n")

	req := request(parsed)
	req.SaveProductMappings = true
	req.ProductMappings = map[string]id.ID{"HNY-1": id.New()}
	_, err := f.svc.Imports.Import(f.ctx, req)
	require.Error(t, err)

	list, err := f.svc.Imports.List(f.ctx, domain.DefaultListFilter())
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	batch := list.Items[0]
	assert.Equal(t, salesimport.StatusFailed, batch.Status)
	assert.NotEmpty(t, batch.Errors)
	assert.NotNil(t, batch.CompletedAt)
	assert.Empty(t, f.orders(t, batch.ID))

	_, err = f.svc.Imports.Rollback(f.ctx, batch.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestRollback_BatchWithoutOrders(t *testing.T) {
	f := newFixture(t, app.Options{})
	p := f.product(t, "HNY-1", "20")
	b := f.batch(t, p, "B1", 5, "", "")

	csv := header + "14/03/2026,10:00:00,Fynbos Honey,HNY-1,2,120.00,Approved\n"
	first := f.importCSV(t, csv)
	replay := f.importCSV(t, csv)
	require.Zero(t, replay.NewOrders)

	rb, err := f.svc.Imports.Rollback(f.ctx, replay.ImportBatchID)
	require.NoError(t, err)
	assert.Zero(t, rb.OrdersDeleted)
	assert.Zero(t, rb.StockRestored)

	batch, err := f.svc.Imports.Get(f.ctx, replay.ImportBatchID)
	require.NoError(t, err)
	assert.Equal(t, salesimport.StatusRolledBack, batch.Status)
	assert.Len(t, f.orders(t, first.ImportBatchID), 1, "the earlier run is untouched")
	assert.Equal(t, 3, f.quantity(t, b.ID))
}
