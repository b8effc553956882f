package memory

import (
	"cmp"
	"context"
	"slices"

	"hivepos/internal/core/apperror"
	"hivepos/internal/domain/matching"
)

// MappingRepo implements matching.Repository.
type MappingRepo struct{ s *Store }

var _ matching.Repository = (*MappingRepo)(nil)

// Mappings returns the product mapping repository.
func (s *Store) Mappings() *MappingRepo { return &MappingRepo{s: s} }

func (r *MappingRepo) Get(_ context.Context, source, externalSKU string) (*matching.Mapping, error) {
	var out *matching.Mapping
	r.s.read(func(st *state) {
		if m, ok := st.mappings[mappingKey{source: source, sku: externalSKU}]; ok {
			out = &m
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("product mapping", externalSKU)
	}
	return out, nil
}

func (r *MappingRepo) Upsert(ctx context.Context, mappings []matching.Mapping) error {
	r.s.write(ctx, func(st *state) {
		for _, m := range mappings {
			st.mappings[mappingKey{source: m.Source, sku: m.ExternalSKU}] = m
		}
	})
	return nil
}

func (r *MappingRepo) List(_ context.Context, source string) ([]matching.Mapping, error) {
	var out []matching.Mapping
	r.s.read(func(st *state) {
		for k, m := range st.mappings {
			if source == "" || k.source == source {
				out = append(out, m)
			}
		}
	})
	slices.SortFunc(out, func(a, b matching.Mapping) int {
		return cmp.Or(cmp.Compare(a.Source, b.Source), cmp.Compare(a.ExternalSKU, b.ExternalSKU))
	})
	return out, nil
}
