package dto

import (
	"hivepos/internal/core/id"
	"hivepos/internal/domain/salesimport"
)

// ParseQuery bounds parsed rows to a date range. Both sides are optional.
type ParseQuery struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

// ToBounds converts the query to parser bounds.
func (q *ParseQuery) ToBounds() (salesimport.Bounds, error) {
	var b salesimport.Bounds
	if q.StartDate != "" {
		t, err := ParseDate("startDate", q.StartDate)
		if err != nil {
			return b, err
		}
		b.Start = t
	}
	if q.EndDate != "" {
		t, err := ParseDate("endDate", q.EndDate)
		if err != nil {
			return b, err
		}
		b.End = t
	}
	return b, nil
}

// ParseTextRequest carries a pasted export instead of an uploaded file.
type ParseTextRequest struct {
	CSVText string `json:"csvText" binding:"required"`
}

// ParseResponse is the parsed export plus the SKUs that would not match.
type ParseResponse struct {
	*salesimport.ParseResult
	UnmatchedSKUs []string `json:"unmatchedSkus"`
}

// ImportRequest imports groups returned by the parse endpoint.
type ImportRequest struct {
	Groups              []salesimport.TransactionGroup `json:"groups" binding:"required"`
	StartDate           string                         `json:"startDate" binding:"required"`
	EndDate             string                         `json:"endDate" binding:"required"`
	FileName            string                         `json:"fileName"`
	ProductMappings     map[string]string              `json:"productMappings"`
	SaveProductMappings bool                           `json:"saveProductMappings"`
}

// ToRequest converts to the domain request.
func (r *ImportRequest) ToRequest() (salesimport.Request, error) {
	start, err := ParseDate("startDate", r.StartDate)
	if err != nil {
		return salesimport.Request{}, err
	}
	end, err := ParseDate("endDate", r.EndDate)
	if err != nil {
		return salesimport.Request{}, err
	}
	mappings, err := ParseMappings(r.ProductMappings)
	if err != nil {
		return salesimport.Request{}, err
	}
	return salesimport.Request{
		Groups:              r.Groups,
		StartDate:           start,
		EndDate:             end,
		FileName:            r.FileName,
		ProductMappings:     mappings,
		SaveProductMappings: r.SaveProductMappings,
	}, nil
}

// ParseMappings converts a SKU to product ID map.
func ParseMappings(in map[string]string) (map[string]id.ID, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]id.ID, len(in))
	for sku, raw := range in {
		productID, err := ParseID("productMappings."+sku, raw)
		if err != nil {
			return nil, err
		}
		out[sku] = productID
	}
	return out, nil
}
