package numerator

import (
	"context"
	"sync"
	"time"

	corenumerator "hivepos/internal/core/numerator"
)

// Memory numbers in process. Used with the in-memory store and in tests.
// Strategies behave identically since there is no round trip to save.
type Memory struct {
	mu   sync.Mutex
	vals map[string]int64
}

var _ corenumerator.Generator = (*Memory)(nil)

// NewMemory creates an empty in-process numerator.
func NewMemory() *Memory {
	return &Memory{vals: make(map[string]int64)}
}

// GetNextNumber implements Generator.
func (m *Memory) GetNextNumber(_ context.Context, cfg corenumerator.Config, _ *corenumerator.Options, period time.Time) (string, error) {
	key := buildKey(cfg, period)

	m.mu.Lock()
	m.vals[key]++
	num := m.vals[key]
	m.mu.Unlock()

	return formatNumber(cfg, period, num), nil
}

// SetNextNumber implements Generator.
func (m *Memory) SetNextNumber(_ context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	m.mu.Lock()
	m.vals[buildKey(cfg, period)] = value
	m.mu.Unlock()
	return nil
}
