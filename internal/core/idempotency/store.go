// Package idempotency defines replay protection for mutating HTTP requests.
package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"hivepos/internal/core/apperror"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may sit before another request reclaims it.
const StaleAfter = time.Minute

// Replay is the cached HTTP response for a completed key.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store manages idempotency keys.
type Store interface {
	// AcquireKey returns:
	//   - (nil, nil) if the key was acquired
	//   - (replay, nil) if the operation already finished (success or failed)
	//   - (nil, err) if the key is in flight or was used for a different request
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*Replay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
}

// Record is one stored key.
type Record struct {
	Key         string
	UserID      string
	Operation   string
	Status      Status
	RequestHash string
	Response    []byte
	StatusCode  int
	ContentType string
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// Check decides what a repeated key means for the incoming request.
func (r *Record) Check(userID, operation, requestHash string, now time.Time) (*Replay, bool, error) {
	if r.UserID != userID || r.Operation != operation || r.RequestHash != requestHash {
		return nil, false, apperror.NewIdempotencyMismatch(r.Key).
			WithDetail("stored_operation", r.Operation).
			WithDetail("request_operation", operation)
	}

	switch r.Status {
	case StatusSuccess, StatusFailed:
		return &Replay{
			StatusCode:  NormalizeStatus(r.StatusCode),
			ContentType: NormalizeContentType(r.ContentType),
			Body:        r.Response,
		}, false, nil
	default:
		if now.Sub(r.UpdatedAt) > StaleAfter {
			return nil, true, nil
		}
		return nil, false, apperror.NewIdempotencyConflict(r.Key)
	}
}

// NormalizeStatus defaults a missing status code to 200.
func NormalizeStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

// NormalizeContentType defaults a missing content type to JSON.
func NormalizeContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}

// MarshalResponse encodes a response body for storage. A nil response stores nothing.
func MarshalResponse(response any) ([]byte, error) {
	if response == nil {
		return nil, nil
	}
	return json.Marshal(response)
}

// MemoryStore keeps keys in process memory. Used when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*Record
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-process store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, records: make(map[string]*Record), now: time.Now}
}

func (s *MemoryStore) AcquireKey(_ context.Context, key, userID, operation, requestHash string) (*Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if rec, ok := s.records[key]; ok && now.Before(rec.ExpiresAt) {
		replay, reclaim, err := rec.Check(userID, operation, requestHash, now)
		if err != nil || replay != nil {
			return replay, err
		}
		if reclaim {
			rec.UpdatedAt = now
		}
		return nil, nil
	}

	s.records[key] = &Record{
		Key:         key,
		UserID:      userID,
		Operation:   operation,
		Status:      StatusPending,
		RequestHash: requestHash,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	return nil, nil
}

func (s *MemoryStore) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(key, StatusSuccess, statusCode, contentType, response)
}

func (s *MemoryStore) FailKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(key, StatusFailed, statusCode, contentType, response)
}

func (s *MemoryStore) finish(key string, status Status, statusCode int, contentType string, response any) error {
	body, err := MarshalResponse(response)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		rec.Status = status
		rec.Response = body
		rec.StatusCode = statusCode
		rec.ContentType = contentType
		rec.UpdatedAt = s.now().UTC()
	}
	return nil
}

// CleanupExpired drops expired keys and returns how many were removed.
func (s *MemoryStore) CleanupExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	var n int64
	for k, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}
