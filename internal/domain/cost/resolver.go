// Package cost resolves cost of goods sold for sold units and aggregates order profit.
package cost

import (
	"github.com/shopspring/decimal"

	"hivepos/internal/core/types"
)

// DefaultCostRatio is the share of the sale price assumed as cost when neither
// the batch nor the product records one (a 40% gross margin).
var DefaultCostRatio = decimal.RequireFromString("0.6")

// Source tells where a unit cost came from.
type Source string

const (
	SourceBatch     Source = "batch"
	SourceProduct   Source = "product"
	SourceEstimated Source = "estimated"
)

// UnitCost is a resolved per-unit cost.
type UnitCost struct {
	Amount types.Money `json:"amount"`
	Source Source      `json:"source"`
}

// Estimated reports whether the cost is a heuristic rather than recorded data.
func (u UnitCost) Estimated() bool {
	return u.Source == SourceEstimated
}

// Resolve picks the first present, non-zero cost of batch cost, product cost,
// and saleUnitPrice × DefaultCostRatio.
func Resolve(batchCost, productCost types.NullMoney, saleUnitPrice types.Money) UnitCost {
	if types.HasAmount(batchCost) {
		return UnitCost{Amount: batchCost.Decimal, Source: SourceBatch}
	}
	if types.HasAmount(productCost) {
		return UnitCost{Amount: productCost.Decimal, Source: SourceProduct}
	}
	return UnitCost{Amount: saleUnitPrice.Mul(DefaultCostRatio), Source: SourceEstimated}
}

// Totals holds the aggregated figures recorded once per order.
type Totals struct {
	Revenue types.Money `json:"revenue"`
	Cost    types.Money `json:"cost"`
	Profit  types.Money `json:"profit"`

	// EstimatedUnits counts units whose cost came from DefaultCostRatio.
	EstimatedUnits int `json:"estimatedUnits"`
}

// Accumulator sums line costs for one order.
type Accumulator struct {
	cost      types.Money
	estimated int
}

// Add records qty units at the given unit cost.
func (a *Accumulator) Add(qty int, unit UnitCost) {
	a.cost = a.cost.Add(types.MulInt(unit.Amount, qty))
	if unit.Estimated() {
		a.estimated += qty
	}
}

// Totals closes the order against its revenue. Amounts are rounded to cents.
func (a *Accumulator) Totals(revenue types.Money) Totals {
	revenue = types.Round(revenue)
	c := types.Round(a.cost)
	return Totals{
		Revenue:        revenue,
		Cost:           c,
		Profit:         revenue.Sub(c),
		EstimatedUnits: a.estimated,
	}
}
