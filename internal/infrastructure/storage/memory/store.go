// Package memory is an in-process implementation of every repository and of
// tx.Manager. It backs the server when DATABASE_URL is empty and the domain tests.
//
// Transactions are serialized: RunInTransaction snapshots the whole state and
// restores it when fn fails. Nested calls reuse the outer transaction. A write
// outside a transaction runs as its own single-statement transaction, so it
// never lands between another transaction's snapshot and restore.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"hivepos/internal/core/id"
	"hivepos/internal/core/tx"
	"hivepos/internal/domain"
	"hivepos/internal/domain/auth"
	"hivepos/internal/domain/catalog/market"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/matching"
	"hivepos/internal/domain/refund"
	"hivepos/internal/domain/registers/stock"
	"hivepos/internal/domain/sales"
	"hivepos/internal/domain/salesimport"
)

type mappingKey struct {
	source string
	sku    string
}

type state struct {
	products  map[id.ID]product.Product
	events    map[id.ID]market.Event
	batches   map[id.ID]stock.Batch
	movements []stock.Movement
	mappings  map[mappingKey]matching.Mapping

	orders       map[id.ID]sales.Order
	orderByKey   map[string]id.ID
	items        map[id.ID][]sales.OrderItem
	payments     map[id.ID]sales.Payment
	transactions []sales.FinancialTransaction
	invoices     map[id.ID]sales.Invoice

	imports   map[id.ID]salesimport.Batch
	refunds   map[id.ID]refund.Refund
	operators map[string]auth.Operator

	outbox []domain.Event
	audit  []AuditEntry
}

func newState() state {
	return state{
		products:   make(map[id.ID]product.Product),
		events:     make(map[id.ID]market.Event),
		batches:    make(map[id.ID]stock.Batch),
		mappings:   make(map[mappingKey]matching.Mapping),
		orders:     make(map[id.ID]sales.Order),
		orderByKey: make(map[string]id.ID),
		items:      make(map[id.ID][]sales.OrderItem),
		payments:   make(map[id.ID]sales.Payment),
		invoices:   make(map[id.ID]sales.Invoice),
		imports:    make(map[id.ID]salesimport.Batch),
		refunds:    make(map[id.ID]refund.Refund),
		operators:  make(map[string]auth.Operator),
	}
}

// clone copies every container. Stored values are replaced, never mutated in
// place, so a shallow copy of each map is a consistent snapshot.
func (st state) clone() state {
	return state{
		products:     maps.Clone(st.products),
		events:       maps.Clone(st.events),
		batches:      maps.Clone(st.batches),
		movements:    slices.Clone(st.movements),
		mappings:     maps.Clone(st.mappings),
		orders:       maps.Clone(st.orders),
		orderByKey:   maps.Clone(st.orderByKey),
		items:        maps.Clone(st.items),
		payments:     maps.Clone(st.payments),
		transactions: slices.Clone(st.transactions),
		invoices:     maps.Clone(st.invoices),
		imports:      maps.Clone(st.imports),
		refunds:      maps.Clone(st.refunds),
		operators:    maps.Clone(st.operators),
		outbox:       slices.Clone(st.outbox),
		audit:        slices.Clone(st.audit),
	}
}

// Store holds all data in memory.
type Store struct {
	txMu sync.Mutex   // serializes transactions
	mu   sync.RWMutex // guards st
	st   state
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

// TxManager implements tx.Manager for the store.
type TxManager struct {
	s *Store
}

var _ tx.Manager = (*TxManager)(nil)

// TxManager returns the store's transaction manager.
func (s *Store) TxManager() *TxManager {
	return &TxManager{s: s}
}

// RunInTransaction executes fn atomically. Nested calls reuse the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	m.s.mu.RLock()
	snapshot := m.s.st.clone()
	m.s.mu.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			m.s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			m.s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) restore(snapshot state) {
	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
}

func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.st)
}

// write applies fn under the transaction lock unless ctx already holds it.
func (s *Store) write(ctx context.Context, fn func(st *state)) {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.st)
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
