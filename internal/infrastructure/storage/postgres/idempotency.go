package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/core/idempotency"
)

const tableIdempotency = "sys_idempotency"

// IdempotencyStore implements idempotency.Store on the sys_idempotency table.
type IdempotencyStore struct {
	repo
	ttl time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(txm *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{repo: newRepo(txm), ttl: ttl}
}

// AcquireKey inserts the key or returns the existing row in one round trip.
// xmax = 0 on the returned row means this call inserted it.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*idempotency.Replay, error) {
	now := time.Now().UTC()

	var (
		rec      idempotency.Record
		inserted bool
		response []byte
		status   *int
		ctype    *string
	)
	err := s.txm.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
		RETURNING user_id, operation, status, request_hash, response, response_status,
			response_content_type, updated_at, expires_at, (xmax = 0) AS inserted
	`, key, userID, operation, idempotency.StatusPending, requestHash, now, now.Add(s.ttl)).Scan(
		&rec.UserID, &rec.Operation, &rec.Status, &rec.RequestHash, &response, &status,
		&ctype, &rec.UpdatedAt, &rec.ExpiresAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	rec.Key = key
	rec.Response = response
	if status != nil {
		rec.StatusCode = *status
	}
	if ctype != nil {
		rec.ContentType = *ctype
	}

	replay, reclaim, err := rec.Check(userID, operation, requestHash, now)
	if err != nil || replay != nil {
		return replay, err
	}
	if reclaim {
		if err := s.exec(ctx, s.sq.Update(tableIdempotency).
			Set("updated_at", now).
			Where(squirrel.Eq{"idempotency_key": key, "status": idempotency.StatusPending}), "idempotency key"); err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
	}
	return nil, nil
}

// CompleteKey stores the successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := idempotency.MarshalResponse(response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, body)
}

// FailKey stores the error response for replay.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := idempotency.MarshalResponse(response)
	if err != nil {
		body, _ = idempotency.MarshalResponse(map[string]string{"error": err.Error()})
	}
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, body)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, body []byte) error {
	return s.exec(ctx, s.sq.Update(tableIdempotency).
		Set("status", status).
		Set("response", body).
		Set("response_status", statusCode).
		Set("response_content_type", contentType).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"idempotency_key": key}), "idempotency key")
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	return s.execCount(ctx, s.sq.Delete(tableIdempotency).Where(squirrel.Lt{"expires_at": time.Now().UTC()}), "idempotency keys")
}
