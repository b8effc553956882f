package sales_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/app"
	"hivepos/internal/core/apperror"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/types"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/cost"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/internal/infrastructure/storage/memory"
)

func setup(t *testing.T) (*app.Services, context.Context, *product.Product) {
	t.Helper()
	svc := app.NewServices(app.MemoryRepositories(memory.New()), app.Options{JWTSecret: "test"})
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "clerk-1", Roles: []string{appctx.RoleUser}})

	p := product.NewProduct("HNY-1", "Fynbos Honey", "honey", types.MustMoney("60"))
	require.NoError(t, svc.Products.Create(ctx, p))
	return svc, ctx, p
}

func receive(t *testing.T, svc *app.Services, ctx context.Context, p *product.Product, qty int, unitCost string) *stock.Batch {
	t.Helper()
	b := stock.NewBatch(p.ID, "B-"+unitCost, qty, time.Now().UTC(), nil, types.SomeMoney(types.MustMoney(unitCost)))
	require.NoError(t, svc.Stock.Receive(ctx, b))
	return b
}

func TestCheckout_UsesCatalogPriceAndBatchCost(t *testing.T) {
	svc, ctx, p := setup(t)
	receive(t, svc, ctx, p, 10, "22.50")

	res, err := svc.Sales.Checkout(ctx, sales.CheckoutRequest{
		Lines:         []sales.CheckoutLine{{ProductID: p.ID, Quantity: 2}},
		PaymentMethod: sales.PaymentCash,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.True(t, strings.HasPrefix(res.Order.OrderNumber, "ORD-"), res.Order.OrderNumber)
	assert.True(t, res.Order.TotalAmount.Equal(types.MustMoney("120")))
	assert.False(t, res.Order.Imported())

	require.Len(t, res.Items, 1)
	assert.Equal(t, string(cost.SourceBatch), res.Items[0].CostSource)

	sale := res.SaleTransaction()
	require.NotNil(t, sale)
	assert.True(t, sale.Cost.Equal(types.MustMoney("45")))
	assert.True(t, sale.Profit.Equal(types.MustMoney("75")))
	require.Len(t, res.Payments, 1)
	assert.Equal(t, sales.PaymentCompleted, res.Payments[0].Status)
}

func TestCheckout_PriceOverrideAndShortfallWarning(t *testing.T) {
	svc, ctx, p := setup(t)
	receive(t, svc, ctx, p, 1, "20")

	res, err := svc.Sales.Checkout(ctx, sales.CheckoutRequest{
		Lines: []sales.CheckoutLine{{
			ProductID: p.ID,
			Quantity:  3,
			UnitPrice: types.SomeMoney(types.MustMoney("50")),
		}},
		PaymentMethod: sales.PaymentCard,
	})
	require.NoError(t, err)
	assert.True(t, res.Order.TotalAmount.Equal(types.MustMoney("150")))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "2 of 3 units")

	require.Len(t, res.Items, 2)
	assert.Nil(t, res.Items[1].BatchID)
	assert.True(t, res.Items[0].Subtotal.Add(res.Items[1].Subtotal).Equal(types.MustMoney("150")))

	// 20 from the batch plus two units at 0.6 × 50 without any cost on record.
	assert.True(t, res.SaleTransaction().Cost.Equal(types.MustMoney("80")), res.SaleTransaction().Cost.String())
}

func TestCheckout_Validation(t *testing.T) {
	svc, ctx, p := setup(t)

	_, err := svc.Sales.Checkout(ctx, sales.CheckoutRequest{PaymentMethod: sales.PaymentCash})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = svc.Sales.Checkout(ctx, sales.CheckoutRequest{
		Lines:         []sales.CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "cheque",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	admin := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "a", IsAdmin: true})
	require.NoError(t, svc.Products.Deactivate(admin, p.ID))
	_, err = svc.Sales.Checkout(ctx, sales.CheckoutRequest{
		Lines:         []sales.CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: sales.PaymentCash,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestIssueInvoice_OncePerOrder(t *testing.T) {
	svc, ctx, p := setup(t)
	receive(t, svc, ctx, p, 5, "20")

	res, err := svc.Sales.Checkout(ctx, sales.CheckoutRequest{
		Lines:         []sales.CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: sales.PaymentCash,
	})
	require.NoError(t, err)

	first, err := svc.Sales.IssueInvoice(ctx, res.Order.ID, "Jane Beekeeper")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.InvoiceNumber, "INV-"), first.InvoiceNumber)
	assert.True(t, first.Amount.Equal(types.MustMoney("60")))

	second, err := svc.Sales.IssueInvoice(ctx, res.Order.ID, "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	detail, err := svc.Sales.GetDetail(ctx, res.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Invoice)
	assert.Equal(t, first.InvoiceNumber, detail.Invoice.InvoiceNumber)
}
