package dto

import (
	"hivepos/internal/domain/matching"
)

// MappingInput links one external SKU to a product.
type MappingInput struct {
	ExternalSKU  string `json:"externalSku" binding:"required"`
	ProductID    string `json:"productId" binding:"required"`
	ExternalName string `json:"externalName"`
}

// SaveMappingsRequest replaces mappings for the given SKUs.
type SaveMappingsRequest struct {
	Source   string         `json:"source"`
	Mappings []MappingInput `json:"mappings" binding:"required,min=1,dive"`
}

// ToMappings builds domain mappings. An empty source means the POS import source.
func (r *SaveMappingsRequest) ToMappings() ([]matching.Mapping, error) {
	source := r.Source
	if source == "" {
		source = matching.SourceYocoImport
	}
	out := make([]matching.Mapping, 0, len(r.Mappings))
	for _, m := range r.Mappings {
		productID, err := ParseID("productId", m.ProductID)
		if err != nil {
			return nil, err
		}
		out = append(out, matching.NewMapping(source, m.ExternalSKU, productID, m.ExternalName))
	}
	return out, nil
}
