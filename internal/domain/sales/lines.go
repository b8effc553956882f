package sales

import (
	"context"
	"fmt"

	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
	"hivepos/internal/domain/catalog/product"
	"hivepos/internal/domain/cost"
	"hivepos/internal/domain/registers/stock"
)

// Allocator draws stock for sold lines.
type Allocator interface {
	Allocate(ctx context.Context, req stock.AllocateRequest) (stock.AllocationResult, error)
}

// LineOutcome is a sold line expanded into order items.
type LineOutcome struct {
	Items     []OrderItem
	Shortfall int
}

// SellLine allocates a matched line FEFO and expands it into one item per
// batch drawn, plus a batchless item for any shortfall. Line costs are added to acc.
func SellLine(ctx context.Context, alloc Allocator, orderID id.ID, p *product.Product, qty int, lineTotal types.Money, acc *cost.Accumulator) (LineOutcome, error) {
	if qty <= 0 {
		return LineOutcome{}, fmt.Errorf("sell %s: quantity must be positive", p.SKU)
	}

	result, err := alloc.Allocate(ctx, stock.AllocateRequest{
		ProductID:     p.ID,
		Quantity:      qty,
		MovementType:  stock.MovementSale,
		ReferenceType: stock.RefOrder,
		ReferenceID:   orderID,
	})
	if err != nil {
		return LineOutcome{}, fmt.Errorf("allocate %s: %w", p.SKU, err)
	}

	unitPrice := types.DivInt(lineTotal, qty)
	subtotals := splitTotal(lineTotal, qty, result.Allocations)
	productID := p.ID

	out := LineOutcome{Shortfall: result.Shortfall}
	for i, a := range result.Allocations {
		unitCost := cost.Resolve(a.CostPerUnit, p.CostPrice, unitPrice)
		acc.Add(a.Quantity, unitCost)

		out.Items = append(out.Items, OrderItem{
			ID:          id.New(),
			OrderID:     orderID,
			ProductID:   &productID,
			BatchID:     a.BatchID,
			ExternalSKU: p.SKU,
			ProductName: p.Name,
			Quantity:    a.Quantity,
			UnitPrice:   types.Round(unitPrice),
			Subtotal:    subtotals[i],
			UnitCost:    types.Round(unitCost.Amount),
			CostSource:  string(unitCost.Source),
		})
	}
	return out, nil
}

// UnmatchedLine records a line whose product could not be resolved. It keeps
// the revenue, touches no stock, and is costed by estimate.
func UnmatchedLine(orderID id.ID, sku, name string, qty int, lineTotal types.Money, acc *cost.Accumulator) OrderItem {
	unitPrice := types.DivInt(lineTotal, qty)
	unitCost := cost.Resolve(types.NullMoney{}, types.NullMoney{}, unitPrice)
	acc.Add(qty, unitCost)

	return OrderItem{
		ID:          id.New(),
		OrderID:     orderID,
		ExternalSKU: sku,
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   types.Round(unitPrice),
		Subtotal:    types.Round(lineTotal),
		UnitCost:    types.Round(unitCost.Amount),
		CostSource:  string(unitCost.Source),
	}
}

// splitTotal apportions lineTotal over allocations by quantity, rounding to
// cents and giving the rounding remainder to the last slice.
func splitTotal(lineTotal types.Money, qty int, allocs []stock.Allocation) []types.Money {
	total := types.Round(lineTotal)
	out := make([]types.Money, len(allocs))
	assigned := types.Zero()
	for i, a := range allocs {
		if i == len(allocs)-1 {
			out[i] = total.Sub(assigned)
			break
		}
		share := types.Round(types.DivInt(types.MulInt(total, a.Quantity), qty))
		out[i] = share
		assigned = assigned.Add(share)
	}
	return out
}
