package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivepos/internal/core/apperror"
)

func newTestStore(now *time.Time) *MemoryStore {
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return *now }
	return s
}

func TestMemoryStore_ReplaysCompletedKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	replay, err := s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)

	require.NoError(t, s.CompleteKey(ctx, "k1", http.StatusCreated, "application/json", map[string]string{"id": "r1"}))

	replay, err = s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.JSONEq(t, `{"id":"r1"}`, string(replay.Body))
}

func TestMemoryStore_InFlightKeyConflicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	_, err := s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h1")
	require.NoError(t, err)

	_, err = s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h1")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIdempotency, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)

	now = now.Add(2 * StaleAfter)
	replay, err := s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay, "stale pending key is reclaimed")
}

func TestMemoryStore_RejectsDifferentRequest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	_, err := s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h1")
	require.NoError(t, err)

	_, err = s.AcquireKey(ctx, "k1", "u1", "POST /refunds", "h2")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Idempotency key mismatch", appErr.Message)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	_, err := s.AcquireKey(ctx, "k1", "u1", "POST /orders", "h1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	n, err := s.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	replay, err := s.AcquireKey(ctx, "k1", "u2", "POST /orders", "other")
	require.NoError(t, err)
	assert.Nil(t, replay)
}
