package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/app"
	appctx "hivepos/internal/core/context"
	"hivepos/internal/core/idempotency"
	"hivepos/internal/infrastructure/gateway"
	v1 "hivepos/internal/infrastructure/http/v1"
	"hivepos/internal/infrastructure/storage/memory"
	"hivepos/pkg/logger"
)

const (
	adminEmail = "admin@hive.test"
	clerkEmail = "clerk@hive.test"
	password   = "correct-horse"
	whSecret   = "whsec-test"
)

type apiFixture struct {
	t       *testing.T
	handler http.Handler
	admin   string
	clerk   string
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()

	svc := app.NewServices(app.MemoryRepositories(memory.New()), app.Options{
		JWTSecret: "router-test-secret",
	})
	ctx := context.Background()
	_, err := svc.Auth.CreateOperator(ctx, adminEmail, password, "Admin", []string{appctx.RoleAdmin})
	require.NoError(t, err)
	_, err = svc.Auth.CreateOperator(ctx, clerkEmail, password, "Clerk", []string{appctx.RoleUser})
	require.NoError(t, err)

	f := &apiFixture{
		t: t,
		handler: v1.NewRouter(v1.RouterConfig{
			Services:         svc,
			Logger:           logger.Nop(),
			IdempotencyStore: idempotency.NewMemoryStore(time.Hour),
			Verifier:         gateway.NewVerifier(whSecret),
		}),
	}
	f.admin = f.login(adminEmail)
	f.clerk = f.login(clerkEmail)
	return f
}

func (f *apiFixture) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(email string) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	decode(f.t, rec, &resp)
	require.NotEmpty(f.t, resp.AccessToken)
	return resp.AccessToken
}

func (f *apiFixture) createProduct(sku string) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/products", f.admin, map[string]any{
		"sku": sku, "name": "Fynbos Honey", "category": "honey", "unitPrice": "60.00",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	var p struct {
		ID string `json:"id"`
	}
	decode(f.t, rec, &p)
	return p.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decode(t, rec, &body)
	return body.Code
}

func TestHealthLive(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRejectClerk(t *testing.T) {
	f := newAPI(t)

	rec := f.do(http.MethodPost, "/api/v1/products", f.clerk, map[string]any{"sku": "HNY-1", "name": "Honey", "unitPrice": "60"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	rec = f.do(http.MethodPost, "/api/v1/imports/parse", f.clerk, map[string]string{"csvText": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/products", f.clerk, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductStockFlow(t *testing.T) {
	f := newAPI(t)
	productID := f.createProduct("HNY-1")

	rec := f.do(http.MethodPost, "/api/v1/products", f.admin, map[string]any{"sku": "HNY-1", "name": "Other", "unitPrice": "10"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/products/"+productID+"/batches", f.admin, map[string]any{
		"batchNumber": "B-1", "quantity": 10, "expiryDate": "2099-01-31", "costPerUnit": "25.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var batch struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	}
	decode(t, rec, &batch)
	assert.Equal(t, 10, batch.Quantity)

	rec = f.do(http.MethodPut, "/api/v1/batches/"+batch.ID+"/count", f.admin, map[string]any{"counted": 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/products/"+productID+"/consistency", f.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var consistency struct {
		BatchTotal    int  `json:"batchTotal"`
		LedgerBalance int  `json:"ledgerBalance"`
		Consistent    bool `json:"consistent"`
	}
	decode(t, rec, &consistency)
	assert.Equal(t, 7, consistency.BatchTotal)
	assert.Equal(t, 7, consistency.LedgerBalance)
	assert.True(t, consistency.Consistent)

	rec = f.do(http.MethodGet, "/api/v1/products/"+productID+"/movements", f.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var movements struct {
		Items []struct {
			MovementType string `json:"movementType"`
			Quantity     int    `json:"quantity"`
		} `json:"items"`
	}
	decode(t, rec, &movements)
	require.Len(t, movements.Items, 2)

	rec = f.do(http.MethodPost, "/api/v1/products/"+productID+"/deactivate", f.admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/products", f.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []struct {
			SKU        string `json:"sku"`
			TotalStock int    `json:"totalStock"`
		} `json:"items"`
		TotalCount int64 `json:"totalCount"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "HNY-1", list.Items[0].SKU)
	assert.Equal(t, 7, list.Items[0].TotalStock)
}

func TestInvalidPathID(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodGet, "/api/v1/products/not-a-uuid", f.clerk, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestImportParseImportRollback(t *testing.T) {
	f := newAPI(t)
	productID := f.createProduct("HNY-1")
	rec := f.do(http.MethodPost, "/api/v1/products/"+productID+"/batches", f.admin, map[string]any{
		"batchNumber": "B-1", "quantity": 10, "costPerUnit": "25.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	csv := "Date,Time,Item,SKU,Quantity,Total,Status\n" +
		"14/03/2026,10:00:00,Fynbos Honey,HNY-1,3,180.00,Approved\n" +
		"14/03/2026,11:00:00,Mystery Jar,MYST-9,1,50.00,Approved\n"
	rec = f.do(http.MethodPost, "/api/v1/imports/parse", f.admin, map[string]string{"csvText": csv})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var parsed struct {
		Groups        json.RawMessage `json:"groups"`
		ValidRows     int             `json:"validRows"`
		UnmatchedSKUs []string        `json:"unmatchedSkus"`
	}
	decode(t, rec, &parsed)
	assert.Equal(t, 2, parsed.ValidRows)
	assert.Equal(t, []string{"MYST-9"}, parsed.UnmatchedSKUs)

	importBody := map[string]any{
		"groups":    parsed.Groups,
		"startDate": "2026-03-14",
		"endDate":   "2026-03-14",
		"fileName":  "export.csv",
	}
	rec = f.do(http.MethodPost, "/api/v1/imports", f.admin, importBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result struct {
		NewOrders         int    `json:"newOrders"`
		SkippedDuplicates int    `json:"skippedDuplicates"`
		UnmatchedProducts int    `json:"unmatchedProducts"`
		ImportBatchID     string `json:"importBatchId"`
	}
	decode(t, rec, &result)
	assert.Equal(t, 2, result.NewOrders)
	assert.Equal(t, 1, result.UnmatchedProducts)

	rec = f.do(http.MethodPost, "/api/v1/imports", f.admin, importBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.Equal(t, 0, result.NewOrders)
	assert.Equal(t, 2, result.SkippedDuplicates)

	rec = f.do(http.MethodGet, "/api/v1/imports", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		TotalCount int64 `json:"totalCount"`
	}
	decode(t, rec, &history)
	assert.EqualValues(t, 2, history.TotalCount)

	// Roll back the run that created the orders, which is the older of the two.
	var first struct {
		Items []struct {
			ID            string `json:"id"`
			OrdersCreated int    `json:"ordersCreated"`
		} `json:"items"`
	}
	decode(t, rec, &first)
	var createdRun string
	for _, b := range first.Items {
		if b.OrdersCreated == 2 {
			createdRun = b.ID
		}
	}
	require.NotEmpty(t, createdRun)

	rec = f.do(http.MethodPost, "/api/v1/imports/"+createdRun+"/rollback", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rollback struct {
		OrdersDeleted int `json:"ordersDeleted"`
		StockRestored int `json:"stockRestored"`
	}
	decode(t, rec, &rollback)
	assert.Equal(t, 2, rollback.OrdersDeleted)
	assert.Equal(t, 3, rollback.StockRestored)

	rec = f.do(http.MethodPost, "/api/v1/imports/"+createdRun+"/rollback", f.admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_ROLLED_BACK", errorCode(t, rec))
}

func TestParseReportsMissingColumns(t *testing.T) {
	f := newAPI(t)
	rec := f.do(http.MethodPost, "/api/v1/imports/parse", f.admin, map[string]string{"csvText": "Date,Colour\n14/03/2026,red\n"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestIdempotentReplay(t *testing.T) {
	f := newAPI(t)
	body := map[string]any{"sku": "HNY-7", "name": "Honey", "unitPrice": "60"}

	first := f.do(http.MethodPost, "/api/v1/products", f.admin, body, "X-Idempotency-Key", "create-hny-7")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := f.do(http.MethodPost, "/api/v1/products", f.admin, body, "X-Idempotency-Key", "create-hny-7")
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	var a, b struct {
		ID string `json:"id"`
	}
	decode(t, first, &a)
	decode(t, second, &b)
	assert.Equal(t, a.ID, b.ID)

	body["name"] = "Changed"
	mismatch := f.do(http.MethodPost, "/api/v1/products", f.admin, body, "X-Idempotency-Key", "create-hny-7")
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", errorCode(t, mismatch))
}

func TestGatewayWebhook(t *testing.T) {
	f := newAPI(t)
	payload := []byte(`{"reference":"gw-unknown","status":"succeeded"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway/refunds", bytes.NewReader(payload))
		req.Header.Set(gateway.HeaderSignature, signature)
		req.Header.Set(gateway.HeaderTimestamp, ts)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("bad signature", func(t *testing.T) {
		rec := send("deadbeef")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown reference", func(t *testing.T) {
		rec := send(gateway.NewVerifier(whSecret).Sign(ts, payload))
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}
