package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
	"hivepos/internal/domain/registers/stock"
)

// ReceiveBatchRequest records a delivery of one product.
type ReceiveBatchRequest struct {
	BatchNumber    string           `json:"batchNumber" binding:"required"`
	Quantity       int              `json:"quantity" binding:"min=0"`
	ProductionDate *string          `json:"productionDate"`
	ExpiryDate     *string          `json:"expiryDate"`
	CostPerUnit    *decimal.Decimal `json:"costPerUnit"`
}

// ToBatch builds the batch. A missing production date means today.
func (r *ReceiveBatchRequest) ToBatch(productID id.ID) (*stock.Batch, error) {
	produced := time.Now().UTC().Truncate(24 * time.Hour)
	if p, err := ParseOptionalDate("productionDate", r.ProductionDate); err != nil {
		return nil, err
	} else if p != nil {
		produced = *p
	}
	expiry, err := ParseOptionalDate("expiryDate", r.ExpiryDate)
	if err != nil {
		return nil, err
	}
	return stock.NewBatch(productID, r.BatchNumber, r.Quantity, produced, expiry, types.OptionalMoney(r.CostPerUnit)), nil
}

// CountRequest is the result of a physical stock count of one batch.
type CountRequest struct {
	Counted *int `json:"counted" binding:"required,min=0"`
}

// MovementQuery filters ledger listings.
type MovementQuery struct {
	Type          string `form:"type"`
	ReferenceType string `form:"referenceType"`
	ReferenceID   string `form:"referenceId"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// ToFilter builds the ledger filter for one product.
func (q *MovementQuery) ToFilter(productID id.ID) (stock.MovementFilter, error) {
	f := stock.MovementFilter{ProductID: &productID, Limit: q.Limit}
	if f.Limit == 0 {
		f.Limit = 200
	}
	if q.Type != "" {
		t := stock.MovementType(q.Type)
		f.Type = &t
	}
	if q.ReferenceType != "" {
		t := stock.ReferenceType(q.ReferenceType)
		f.ReferenceType = &t
	}
	if q.ReferenceID != "" {
		refID, err := ParseID("referenceId", q.ReferenceID)
		if err != nil {
			return f, err
		}
		f.ReferenceIDs = []id.ID{refID}
	}
	return f, nil
}
