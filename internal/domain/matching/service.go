package matching

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/core/tx"
	"hivepos/internal/domain/catalog/product"
	"hivepos/pkg/logger"
)

// ProductLookup is the part of the catalog the matcher reads.
type ProductLookup interface {
	GetByID(ctx context.Context, productID id.ID) (*product.Product, error)
	FindActiveBySKU(ctx context.Context, sku string) (*product.Product, error)
}

// Stage tells which resolution step produced a match.
type Stage string

const (
	StageOverride Stage = "override"
	StageMapping  Stage = "mapping"
	StageSKU      Stage = "sku"
	StageNone     Stage = "unmatched"
)

// Service manages persisted mappings and builds per-run matchers.
type Service struct {
	repo      Repository
	cache     Cache
	products  ProductLookup
	txManager tx.Manager
}

// NewService creates a mapping service. A nil cache disables caching.
func NewService(repo Repository, cache Cache, products ProductLookup, txManager tx.Manager) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		products:  products,
		txManager: txManager,
	}
}

// List returns persisted mappings for a source.
func (s *Service) List(ctx context.Context, source string) ([]Mapping, error) {
	if source == "" {
		source = SourceYocoImport
	}
	return s.repo.List(ctx, source)
}

// Save upserts mappings after checking their products exist.
func (s *Service) Save(ctx context.Context, mappings []Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, m := range mappings {
			if _, err := s.products.GetByID(ctx, m.ProductID); err != nil {
				return err
			}
		}
		if err := s.repo.Upsert(ctx, mappings); err != nil {
			return fmt.Errorf("upsert mappings: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, m := range mappings {
		if err := s.cache.Delete(ctx, m.Source, m.ExternalSKU); err != nil {
			logger.Warn(ctx, "mapping cache invalidation failed", "sku", m.ExternalSKU, "error", err)
		}
	}
	logger.Info(ctx, "product mappings saved", "count", len(mappings))
	return nil
}

// SaveOverrides persists run overrides keyed by external SKU. names supplies
// optional external names for the same SKUs.
func (s *Service) SaveOverrides(ctx context.Context, source string, overrides map[string]id.ID, names map[string]string) error {
	mappings := make([]Mapping, 0, len(overrides))
	for sku, productID := range overrides {
		mappings = append(mappings, NewMapping(source, sku, productID, names[sku]))
	}
	return s.Save(ctx, mappings)
}

// NewMatcher builds a matcher for one run. overrides take precedence over
// everything persisted.
func (s *Service) NewMatcher(source string, overrides map[string]id.ID) *Matcher {
	normalized := make(map[string]id.ID, len(overrides))
	for sku, productID := range overrides {
		if sku = strings.TrimSpace(sku); sku != "" && !id.IsNil(productID) {
			normalized[sku] = productID
		}
	}
	return &Matcher{
		svc:       s,
		source:    source,
		overrides: normalized,
		resolved:  make(map[string]match),
		unmatched: make(map[string]struct{}),
	}
}

// Matcher resolves external SKUs for a single run and remembers its answers.
// Not safe for concurrent use.
type Matcher struct {
	svc       *Service
	source    string
	overrides map[string]id.ID
	resolved  map[string]match
	unmatched map[string]struct{}
}

type match struct {
	product *product.Product
	stage   Stage
}

// Resolve returns the product for an external SKU, or nil when every stage misses.
// Order: run override, persisted mapping, exact SKU among active products.
func (m *Matcher) Resolve(ctx context.Context, externalSKU, externalName string) (*product.Product, Stage, error) {
	sku := strings.TrimSpace(externalSKU)
	if sku == "" {
		return nil, StageNone, nil
	}
	if hit, ok := m.resolved[sku]; ok {
		return hit.product, hit.stage, nil
	}
	if _, ok := m.unmatched[sku]; ok {
		return nil, StageNone, nil
	}

	if productID, ok := m.overrides[sku]; ok {
		p, err := m.svc.products.GetByID(ctx, productID)
		if err == nil {
			m.resolved[sku] = match{p, StageOverride}
			return p, StageOverride, nil
		}
		if !apperror.IsNotFound(err) {
			return nil, StageNone, err
		}
		logger.Warn(ctx, "mapping override points at unknown product", "sku", sku, "product_id", productID)
	}

	p, err := m.fromMapping(ctx, sku)
	if err != nil {
		return nil, StageNone, err
	}
	if p != nil {
		m.resolved[sku] = match{p, StageMapping}
		return p, StageMapping, nil
	}

	p, err = m.svc.products.FindActiveBySKU(ctx, sku)
	if err == nil {
		m.resolved[sku] = match{p, StageSKU}
		return p, StageSKU, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, StageNone, fmt.Errorf("find product by sku: %w", err)
	}

	m.unmatched[sku] = struct{}{}
	logger.Debug(ctx, "sku unmatched", "sku", sku, "name", externalName)
	return nil, StageNone, nil
}

func (m *Matcher) fromMapping(ctx context.Context, sku string) (*product.Product, error) {
	productID, hit, err := m.svc.cache.Get(ctx, m.source, sku)
	if err != nil {
		logger.Warn(ctx, "mapping cache read failed", "sku", sku, "error", err)
		hit = false
	}

	if !hit {
		mapping, err := m.svc.repo.Get(ctx, m.source, sku)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("get mapping: %w", err)
		}
		productID = mapping.ProductID
		if err := m.svc.cache.Set(ctx, m.source, sku, productID); err != nil {
			logger.Warn(ctx, "mapping cache write failed", "sku", sku, "error", err)
		}
	}

	p, err := m.svc.products.GetByID(ctx, productID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Unmatched returns the distinct SKUs that missed every stage so far.
func (m *Matcher) Unmatched() []string {
	return slices.Sorted(maps.Keys(m.unmatched))
}
