// Package numerator issues document numbers (IMP, ORD, INV, REF) from
// sys_sequences, with an in-process variant for the memory backend.
package numerator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "hivepos/internal/core/numerator"
)

const defaultRangeSize int64 = 50

// reserveSQL bumps a sequence by $2 and returns the new upper bound.
const reserveSQL = `
INSERT INTO sys_sequences (key, current_val) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + EXCLUDED.current_val
RETURNING current_val`

const overwriteSQL = `
INSERT INTO sys_sequences (key, current_val) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET current_val = EXCLUDED.current_val
RETURNING current_val`

// Querier is the part of pgxpool.Pool the numerator needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// block is a reserved range (next-1, last] handed out from memory.
type block struct {
	next int64
	last int64
}

func (b *block) exhausted() bool { return b.next > b.last }

// Service numbers documents on PostgreSQL. It runs on the pool, never in the
// caller's transaction, so numbers taken by a rolled back import stay used.
type Service struct {
	db Querier

	mu     sync.Mutex
	blocks map[string]*block
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator over db.
func New(db Querier) *Service {
	return &Service{db: db, blocks: make(map[string]*block)}
}

// GetNextNumber implements Generator.
func (s *Service) GetNextNumber(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("numerator: not initialized")
	}

	key := buildKey(cfg, period)
	var (
		n   int64
		err error
	)
	if opts != nil && opts.Strategy == corenumerator.StrategyCached {
		n, err = s.fromBlock(ctx, key, opts.RangeSize)
	} else {
		n, err = s.reserve(ctx, key, 1)
	}
	if err != nil {
		return "", fmt.Errorf("numerator %s: %w", key, err)
	}
	return formatNumber(cfg, period, n), nil
}

func (s *Service) fromBlock(ctx context.Context, key string, size int64) (int64, error) {
	if size <= 0 {
		size = defaultRangeSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.blocks[key]
	if b == nil || b.exhausted() {
		last, err := s.reserve(ctx, key, size)
		if err != nil {
			return 0, err
		}
		b = &block{next: last - size + 1, last: last}
		s.blocks[key] = b
	}

	n := b.next
	b.next++
	return n, nil
}

func (s *Service) reserve(ctx context.Context, key string, n int64) (int64, error) {
	var last int64
	if err := s.db.QueryRow(ctx, reserveSQL, key, n).Scan(&last); err != nil {
		return 0, err
	}
	return last, nil
}

// SetNextNumber implements Generator. Any block cached for the key is dropped.
func (s *Service) SetNextNumber(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	key := buildKey(cfg, period)

	s.mu.Lock()
	delete(s.blocks, key)
	s.mu.Unlock()

	var stored int64
	if err := s.db.QueryRow(ctx, overwriteSQL, key, value).Scan(&stored); err != nil {
		return fmt.Errorf("numerator %s: overwrite: %w", key, err)
	}
	return nil
}
