package domain

import (
	"fmt"
	"slices"
	"time"
)

// OrderLine is identified by (OrderID, SKU).
type OrderLine struct {
	OrderID  string
	SKU      string
	Quantity int
}

func (l OrderLine) sameAs(other OrderLine) bool {
	return l.OrderID == other.OrderID && l.SKU == other.SKU
}

// Batch is a purchase of stock for one SKU. A nil ETA means the stock is
// already in the warehouse.
type Batch struct {
	Reference         string
	SKU               string
	PurchasedQuantity int
	ETA               *time.Time

	// allocations are kept in the order they were made.
	allocations []OrderLine
}

func NewBatch(reference, sku string, purchasedQuantity int, eta *time.Time) (*Batch, error) {
	if reference == "" {
		return nil, invalid("batch reference is required")
	}
	if sku == "" {
		return nil, invalid("batch sku is required")
	}
	if purchasedQuantity < 0 {
		return nil, invalid(fmt.Sprintf("invalid purchased quantity %d", purchasedQuantity))
	}
	return &Batch{Reference: reference, SKU: sku, PurchasedQuantity: purchasedQuantity, ETA: eta}, nil
}

// RestoreBatch rebuilds a batch from storage, allocations in allocation order.
func RestoreBatch(reference, sku string, purchasedQuantity int, eta *time.Time, allocations []OrderLine) *Batch {
	return &Batch{
		Reference:         reference,
		SKU:               sku,
		PurchasedQuantity: purchasedQuantity,
		ETA:               eta,
		allocations:       slices.Clone(allocations),
	}
}

// Allocations returns the allocated lines, oldest first.
func (b *Batch) Allocations() []OrderLine {
	return slices.Clone(b.allocations)
}

func (b *Batch) AllocatedQuantity() int {
	total := 0
	for _, l := range b.allocations {
		total += l.Quantity
	}
	return total
}

func (b *Batch) AvailableQuantity() int {
	return b.PurchasedQuantity - b.AllocatedQuantity()
}

func (b *Batch) IsAllocated(line OrderLine) bool {
	return slices.ContainsFunc(b.allocations, line.sameAs)
}

// Allocate assigns line to the batch. It returns ErrCannotAllocate when the
// remaining capacity is too small.
func (b *Batch) Allocate(line OrderLine) error {
	if line.SKU != b.SKU {
		return invalid(fmt.Sprintf("Invalid SKU %s", line.SKU))
	}
	if b.IsAllocated(line) {
		return invalid(fmt.Sprintf("order line %s/%s is already allocated to batch %s", line.OrderID, line.SKU, b.Reference))
	}
	if b.AvailableQuantity() < line.Quantity {
		return fmt.Errorf("%w: batch %s has %d available, %d requested", ErrCannotAllocate, b.Reference, b.AvailableQuantity(), line.Quantity)
	}
	b.allocations = append(b.allocations, line)
	return nil
}

// deallocateSurplus drops the most recent allocations until the batch fits
// its purchased quantity and returns the removed lines, most recent first.
func (b *Batch) deallocateSurplus() []OrderLine {
	var removed []OrderLine
	for len(b.allocations) > 0 && b.AllocatedQuantity() > b.PurchasedQuantity {
		last := b.allocations[len(b.allocations)-1]
		b.allocations = b.allocations[:len(b.allocations)-1]
		removed = append(removed, last)
	}
	return removed
}

// arrivesBefore orders dated batches by ETA and puts undated ones last.
func (b *Batch) arrivesBefore(other *Batch) bool {
	switch {
	case b.ETA == nil:
		return false
	case other.ETA == nil:
		return true
	default:
		return b.ETA.Before(*other.ETA)
	}
}

func (b *Batch) clone() *Batch {
	c := *b
	if b.ETA != nil {
		eta := *b.ETA
		c.ETA = &eta
	}
	c.allocations = slices.Clone(b.allocations)
	return &c
}
