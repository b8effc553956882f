package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain/refund"
)

func TestClient_Refund(t *testing.T) {
	var got refundRequest
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refunds", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(refundResponse{Reference: "gw-123"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret-key"})
	ref, err := c.Refund(context.Background(), refund.GatewayRequest{
		RefundID:         id.New(),
		RefundNumber:     "REF-2026-00001",
		PaymentReference: "pay-9",
		Amount:           decimal.RequireFromString("49.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "gw-123", ref)
	assert.Equal(t, "49.50", got.Amount)
	assert.Equal(t, "pay-9", got.PaymentReference)
	assert.Equal(t, "REF-2026-00001", gotKey)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestClient_RefundRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(refundResponse{Message: "payment already refunded"})
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Refund(context.Background(), refund.GatewayRequest{
		RefundNumber: "REF-2026-00002",
		Amount:       decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "payment already refunded")
}

func TestVerifier(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	v := NewVerifier("whsec")
	v.now = func() time.Time { return now }

	body := []byte(`{"reference":"gw-123","status":"succeeded"}`)
	ts := strconv.FormatInt(now.Unix(), 10)

	t.Run("valid", func(t *testing.T) {
		cb, err := v.Verify(v.Sign(ts, body), ts, body)
		require.NoError(t, err)
		assert.Equal(t, "gw-123", cb.GatewayReference)
		assert.Equal(t, refund.CallbackSucceeded, cb.Status)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := v.Sign(ts, body)
		_, err := v.Verify(sig, ts, []byte(`{"reference":"gw-999","status":"succeeded"}`))
		assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
		_, err := v.Verify(v.Sign(old, body), old, body)
		assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
	})

	t.Run("unknown status", func(t *testing.T) {
		bad := []byte(`{"reference":"gw-123","status":"maybe"}`)
		_, err := v.Verify(v.Sign(ts, bad), ts, bad)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("no secret", func(t *testing.T) {
		_, err := NewVerifier("").Verify("x", ts, body)
		assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
	})
}
