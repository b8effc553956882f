package memory

import (
	"context"
	"slices"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/domain"
	"hivepos/internal/domain/salesimport"
)

// ImportRepo implements salesimport.Repository.
type ImportRepo struct{ s *Store }

var _ salesimport.Repository = (*ImportRepo)(nil)

// Imports returns the import batch repository.
func (s *Store) Imports() *ImportRepo { return &ImportRepo{s: s} }

func (r *ImportRepo) Create(ctx context.Context, b *salesimport.Batch) error {
	stored := *b
	stored.Errors = slices.Clone(b.Errors)
	r.s.write(ctx, func(st *state) { st.imports[b.ID] = stored })
	return nil
}

func (r *ImportRepo) Get(_ context.Context, batchID id.ID) (*salesimport.Batch, error) {
	var out *salesimport.Batch
	r.s.read(func(st *state) {
		if b, ok := st.imports[batchID]; ok {
			b.Errors = slices.Clone(b.Errors)
			out = &b
		}
	})
	if out == nil {
		return nil, apperror.NewNotFound("import batch", batchID.String())
	}
	return out, nil
}

// GetForUpdate relies on transactions being serialized.
func (r *ImportRepo) GetForUpdate(ctx context.Context, batchID id.ID) (*salesimport.Batch, error) {
	return r.Get(ctx, batchID)
}

func (r *ImportRepo) Update(ctx context.Context, b *salesimport.Batch) error {
	var found bool
	stored := *b
	stored.Errors = slices.Clone(b.Errors)
	r.s.write(ctx, func(st *state) {
		if _, found = st.imports[b.ID]; found {
			st.imports[b.ID] = stored
		}
	})
	if !found {
		return apperror.NewNotFound("import batch", b.ID.String())
	}
	return nil
}

func (r *ImportRepo) List(_ context.Context, filter domain.ListFilter) (domain.ListResult[*salesimport.Batch], error) {
	var all []*salesimport.Batch
	r.s.read(func(st *state) {
		for _, b := range st.imports {
			b.Errors = slices.Clone(b.Errors)
			all = append(all, &b)
		}
	})
	// Newest first.
	slices.SortFunc(all, func(a, b *salesimport.Batch) int { return b.CreatedAt.Compare(a.CreatedAt) })

	return domain.ListResult[*salesimport.Batch]{
		Items:      page(all, filter.Limit, filter.Offset),
		TotalCount: int64(len(all)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}
