package stock

import (
	"sort"
	"strings"

	"hivepos/internal/core/id"
	"hivepos/internal/core/types"
)

// Allocation is one draw against a batch. BatchID is nil for the part of a
// request no batch could cover.
type Allocation struct {
	BatchID     *id.ID          `json:"batchId,omitempty"`
	Quantity    int             `json:"quantity"`
	CostPerUnit types.NullMoney `json:"costPerUnit"`
}

// Shortfall reports whether this allocation is the unbacked remainder.
func (a Allocation) Shortfall() bool {
	return a.BatchID == nil
}

// AllocationResult is the outcome of allocating one requested line.
type AllocationResult struct {
	ProductID   id.ID        `json:"productId"`
	Requested   int          `json:"requested"`
	Allocations []Allocation `json:"allocations"`
	Shortfall   int          `json:"shortfall"`
}

// SortFEFO orders batches first-expiry-first-out: expiry ascending, batches
// without expiry last, ties by receipt time then id.
func SortFEFO(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		return compareFEFO(batches[i], batches[j]) < 0
	})
}

func compareFEFO(a, b Batch) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return 1
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate != nil && b.ExpiryDate != nil:
		if a.ExpiryDate.Before(*b.ExpiryDate) {
			return -1
		}
		if a.ExpiryDate.After(*b.ExpiryDate) {
			return 1
		}
	}

	if a.CreatedAt.Before(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return 1
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}

// PlanAllocation greedily draws requested units from batches in FEFO order.
// Batches with no stock are ignored. When stock runs out the remainder is
// returned as a final allocation with a nil batch, and as shortfall.
func PlanAllocation(batches []Batch, requested int) ([]Allocation, int) {
	candidates := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity > 0 {
			candidates = append(candidates, b)
		}
	}
	SortFEFO(candidates)

	var allocations []Allocation
	remaining := requested
	for _, b := range candidates {
		if remaining <= 0 {
			break
		}
		take := min(remaining, b.Quantity)
		batchID := b.ID
		allocations = append(allocations, Allocation{
			BatchID:     &batchID,
			Quantity:    take,
			CostPerUnit: b.CostPerUnit,
		})
		remaining -= take
	}

	if remaining > 0 {
		allocations = append(allocations, Allocation{Quantity: remaining})
		return allocations, remaining
	}
	return allocations, 0
}
