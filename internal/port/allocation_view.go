package port

import "context"

// Allocation is one row of the allocations read model.
type Allocation struct {
	OrderID        string `json:"orderId"`
	SKU            string `json:"sku"`
	BatchReference string `json:"batchReference"`
}

// AllocationView is the denormalized read side, kept current by event
// handlers and never consulted by the write side.
type AllocationView interface {
	Add(ctx context.Context, a Allocation) error
	Remove(ctx context.Context, orderID, sku string) error
	ForOrder(ctx context.Context, orderID string) ([]Allocation, error)
}
