// Package stock provides the inventory register: product batches with materialised
// quantity counters and the append-only movement ledger behind them.
package stock

import (
	"context"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
)

// MovementType classifies a ledger entry.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementSale       MovementType = "sale"
	MovementAdjustment MovementType = "adjustment"
)

// ReferenceType names what caused a movement.
type ReferenceType string

const (
	RefBatch       ReferenceType = "batch"
	RefOrder       ReferenceType = "order"
	RefImportBatch ReferenceType = "import_batch"
	RefRollback    ReferenceType = "rollback"
	RefRefund      ReferenceType = "refund"
	RefManual      ReferenceType = "manual"
)

// Batch is a received lot of a product. Quantity is a counter maintained
// together with the movements that explain it.
type Batch struct {
	ID             id.ID           `db:"id" json:"id"`
	ProductID      id.ID           `db:"product_id" json:"productId"`
	BatchNumber    string          `db:"batch_number" json:"batchNumber"`
	Quantity       int             `db:"quantity" json:"quantity"`
	ProductionDate time.Time       `db:"production_date" json:"productionDate"`
	ExpiryDate     *time.Time      `db:"expiry_date" json:"expiryDate,omitempty"`
	CostPerUnit    types.NullMoney `db:"cost_per_unit" json:"costPerUnit"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// NewBatch creates a batch for receipt.
func NewBatch(productID id.ID, batchNumber string, quantity int, produced time.Time, expiry *time.Time, cost types.NullMoney) *Batch {
	return &Batch{
		ID:             id.New(),
		ProductID:      productID,
		BatchNumber:    strings.TrimSpace(batchNumber),
		Quantity:       quantity,
		ProductionDate: produced,
		ExpiryDate:     expiry,
		CostPerUnit:    cost,
		CreatedAt:      time.Now().UTC(),
	}
}

// Validate checks batch invariants.
func (b *Batch) Validate(ctx context.Context) error {
	if id.IsNil(b.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if b.BatchNumber == "" {
		return apperror.NewValidation("batch number is required").WithDetail("field", "batchNumber")
	}
	if b.Quantity < 0 {
		return apperror.NewValidation("quantity must not be negative").WithDetail("field", "quantity")
	}
	if b.ExpiryDate != nil && !b.ProductionDate.IsZero() && b.ExpiryDate.Before(b.ProductionDate) {
		return apperror.NewValidation("expiry date must not be before production date").WithDetail("field", "expiryDate")
	}
	if b.CostPerUnit.Valid && b.CostPerUnit.Decimal.IsNegative() {
		return apperror.NewValidation("cost per unit must not be negative").WithDetail("field", "costPerUnit")
	}
	return nil
}

// Expired reports whether the batch expired strictly before asOf.
func (b *Batch) Expired(asOf time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(asOf)
}

// Movement is one append-only ledger entry. Quantity is always a positive magnitude;
// the type decides the direction.
type Movement struct {
	ID            id.ID         `db:"id" json:"id"`
	ProductID     id.ID         `db:"product_id" json:"productId"`
	BatchID       *id.ID        `db:"batch_id" json:"batchId,omitempty"`
	Type          MovementType  `db:"movement_type" json:"movementType"`
	Quantity      int           `db:"quantity" json:"quantity"`
	ReferenceType ReferenceType `db:"reference_type" json:"referenceType"`
	ReferenceID   id.ID         `db:"reference_id" json:"referenceId"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

// NewMovement builds a ledger entry stamped now.
func NewMovement(productID id.ID, batchID *id.ID, typ MovementType, qty int, refType ReferenceType, refID id.ID) Movement {
	return Movement{
		ID:            id.New(),
		ProductID:     productID,
		BatchID:       batchID,
		Type:          typ,
		Quantity:      qty,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedAt:     time.Now().UTC(),
	}
}

// Signed returns the movement's effect on stock.
func (m Movement) Signed() int {
	switch m.Type {
	case MovementIn, MovementAdjustment:
		return m.Quantity
	default:
		return -m.Quantity
	}
}

// MovementFilter narrows ledger queries.
type MovementFilter struct {
	ProductID     *id.ID
	Type          *MovementType
	ReferenceType *ReferenceType
	ReferenceIDs  []id.ID
	Limit         int
}

// Consistency compares the counters with the ledger for one product.
type Consistency struct {
	ProductID     id.ID `json:"productId"`
	BatchTotal    int   `json:"batchTotal"`
	LedgerBalance int   `json:"ledgerBalance"`
	Consistent    bool  `json:"consistent"`
}
