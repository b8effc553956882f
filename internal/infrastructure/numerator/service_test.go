package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "hivepos/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences: every call passes (key, increment).
type mockQuerier struct {
	mu    sync.Mutex
	vals  map[string]int64
	calls int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{vals: make(map[string]int64)}
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	key := args[0].(string)
	var increment int64 = 1
	if len(args) == 2 {
		if v, ok := args[1].(int64); ok {
			increment = v
		}
	}
	m.vals[key] += increment
	return &mockRow{val: m.vals[key]}
}

var period = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig(corenumerator.PrefixImport)

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "IMP-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "IMP-2026-00002", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_YearReset(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig(corenumerator.PrefixRefund)

	_, err := svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)

	num, err := svc.GetNextNumber(ctx, cfg, nil, period.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "REF-2027-00001", num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := newMockQuerier()
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig(corenumerator.PrefixOrder)
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-00001", num)
	assert.Equal(t, int64(10), q.vals["ORD_2026"])

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-00002", num)
	assert.Equal(t, 1, q.calls, "second number comes from the reserved range")

	for range 8 {
		_, err = svc.GetNextNumber(ctx, cfg, opts, period)
		require.NoError(t, err)
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-00011", num)
	assert.Equal(t, int64(20), q.vals["ORD_2026"])
}

func TestGetNextNumber_QueryError(t *testing.T) {
	svc := New(errQuerier{})
	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("INV"), nil, period)
	require.Error(t, err)
}

type errQuerier struct{}

func (errQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return &mockRow{err: assert.AnError}
}

func TestMemory_Sequences(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	imp := corenumerator.DefaultConfig(corenumerator.PrefixImport)
	ord := corenumerator.DefaultConfig(corenumerator.PrefixOrder)

	a, _ := m.GetNextNumber(ctx, imp, nil, period)
	b, _ := m.GetNextNumber(ctx, imp, nil, period)
	c, _ := m.GetNextNumber(ctx, ord, nil, period)
	assert.Equal(t, "IMP-2026-00001", a)
	assert.Equal(t, "IMP-2026-00002", b)
	assert.Equal(t, "ORD-2026-00001", c)

	require.NoError(t, m.SetNextNumber(ctx, imp, period, 99))
	d, _ := m.GetNextNumber(ctx, imp, nil, period)
	assert.Equal(t, "IMP-2026-00100", d)
}

func TestNext_ImportedOrdersShareOrderSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := corenumerator.Next(ctx, m, corenumerator.OrderPolicy, period)
	require.NoError(t, err)
	b, err := corenumerator.Next(ctx, m, corenumerator.ImportedOrderPolicy, period)
	require.NoError(t, err)
	inv, err := corenumerator.Next(ctx, m, corenumerator.InvoicePolicy, period)
	require.NoError(t, err)

	assert.Equal(t, "ORD-2026-00001", a)
	assert.Equal(t, "ORD-2026-00002", b)
	assert.Equal(t, "INV-2026-00001", inv)
}
