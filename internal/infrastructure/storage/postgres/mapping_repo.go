package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"hivepos/internal/domain/matching"
)

const tableMappings = "product_mappings"

var mappingColumns = columnsOf[matching.Mapping]()

// MappingRepo implements matching.Repository.
type MappingRepo struct {
	repo
}

var _ matching.Repository = (*MappingRepo)(nil)

// NewMappingRepo creates a product mapping repository.
func NewMappingRepo(txm *TxManager) *MappingRepo {
	return &MappingRepo{repo: newRepo(txm)}
}

func (r *MappingRepo) Get(ctx context.Context, source, externalSKU string) (*matching.Mapping, error) {
	var m matching.Mapping
	q := r.sq.Select(mappingColumns...).From(tableMappings).
		Where(squirrel.Eq{"source": source, "external_sku": externalSKU})
	if err := r.get(ctx, &m, q, "product mapping", externalSKU); err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert replaces the product and name of existing keys in one statement.
// A key repeated in the input keeps its last occurrence.
func (r *MappingRepo) Upsert(ctx context.Context, mappings []matching.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}
	type key struct{ source, sku string }
	last := make(map[key]int, len(mappings))
	for i, m := range mappings {
		last[key{m.Source, m.ExternalSKU}] = i
	}
	ins := r.sq.Insert(tableMappings).Columns(mappingColumns...)
	for i := range mappings {
		if last[key{mappings[i].Source, mappings[i].ExternalSKU}] != i {
			continue
		}
		ins = ins.Values(rowOf(&mappings[i], mappingColumns)...)
	}
	ins = ins.Suffix(`ON CONFLICT (external_sku, source) DO UPDATE SET
		product_id = EXCLUDED.product_id,
		external_name = EXCLUDED.external_name,
		updated_at = EXCLUDED.updated_at`)
	return r.exec(ctx, ins, "product mapping")
}

func (r *MappingRepo) List(ctx context.Context, source string) ([]matching.Mapping, error) {
	q := r.sq.Select(mappingColumns...).From(tableMappings).OrderBy("source", "external_sku")
	if source != "" {
		q = q.Where(squirrel.Eq{"source": source})
	}
	var out []matching.Mapping
	if err := r.selectAll(ctx, &out, q, "product mappings"); err != nil {
		return nil, err
	}
	return out, nil
}
