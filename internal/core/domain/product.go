package domain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rl1809/allocation/internal/core/message"
)

// Product is the aggregate that owns every batch of one SKU. Version grows by
// exactly one per successful mutation and is what the unit of work compares
// at commit time.
type Product struct {
	SKU     string
	Version int

	batches []*Batch
	events  []*message.Message
}

// NewProduct sorts batches by ETA, undated last, keeping the given order on ties.
func NewProduct(sku string, version int, batches []*Batch) *Product {
	p := &Product{SKU: sku, Version: version, batches: slices.Clone(batches)}
	slices.SortStableFunc(p.batches, compareArrival)
	return p
}

// Batches returns the batches in allocation preference order.
func (p *Product) Batches() []*Batch {
	return slices.Clone(p.batches)
}

// Batch looks a batch up by reference.
func (p *Product) Batch(reference string) (*Batch, bool) {
	i := slices.IndexFunc(p.batches, func(b *Batch) bool { return b.Reference == reference })
	if i < 0 {
		return nil, false
	}
	return p.batches[i], true
}

// Events returns the messages recorded since the product was loaded.
func (p *Product) Events() []*message.Message {
	return slices.Clone(p.events)
}

// Allocate places line on the earliest batch that can hold it and returns that
// batch's reference. When no batch can, an OutOfStockEvent is recorded and an
// empty reference is returned without error.
func (p *Product) Allocate(line OrderLine) (string, error) {
	if line.SKU != p.SKU {
		return "", invalid(fmt.Sprintf("Invalid SKU %s", line.SKU))
	}
	if line.Quantity <= 0 {
		return "", invalid(fmt.Sprintf("invalid quantity %d for order %s", line.Quantity, line.OrderID))
	}
	for _, b := range p.batches {
		if b.IsAllocated(line) {
			return "", invalid(fmt.Sprintf("order line %s/%s is already allocated to batch %s", line.OrderID, line.SKU, b.Reference))
		}
	}

	for _, b := range p.batches {
		err := b.Allocate(line)
		if err == nil {
			p.Version++
			p.record(AllocatedEvent{
				OrderID:        line.OrderID,
				SKU:            line.SKU,
				Quantity:       line.Quantity,
				BatchReference: b.Reference,
			}.Message())
			return b.Reference, nil
		}
		if !errors.Is(err, ErrCannotAllocate) {
			return "", fmt.Errorf("allocate to batch %s: %w", b.Reference, err)
		}
	}

	p.record(OutOfStockEvent{SKU: line.SKU}.Message())
	return "", nil
}

// AddBatch inserts batch at its ETA position.
func (p *Product) AddBatch(batch *Batch) error {
	if batch.SKU != p.SKU {
		return invalid("All product's batches must have the same sku as the product")
	}
	if _, exists := p.Batch(batch.Reference); exists {
		return invalid(fmt.Sprintf("batch %s already exists", batch.Reference))
	}

	i := len(p.batches)
	for j, b := range p.batches {
		if batch.arrivesBefore(b) {
			i = j
			break
		}
	}
	p.batches = slices.Insert(p.batches, i, batch)
	p.Version++
	return nil
}

// ChangeBatchQuantity resizes a batch. Lines that no longer fit are
// deallocated newest first, each recorded as a DeallocatedEvent.
func (p *Product) ChangeBatchQuantity(reference string, quantity int) error {
	if quantity < 0 {
		return invalid(fmt.Sprintf("invalid quantity %d for batch %s", quantity, reference))
	}
	b, ok := p.Batch(reference)
	if !ok {
		return invalid(fmt.Sprintf("Invalid batch reference %s", reference))
	}

	b.PurchasedQuantity = quantity
	for _, line := range b.deallocateSurplus() {
		p.record(DeallocatedEvent{OrderID: line.OrderID, SKU: line.SKU, Quantity: line.Quantity}.Message())
	}
	p.Version++
	return nil
}

// PullEvents returns the recorded messages and forgets them.
func (p *Product) PullEvents() []*message.Message {
	events := p.events
	p.events = nil
	return events
}

// Clone deep-copies the product state. Recorded events are not copied.
func (p *Product) Clone() *Product {
	c := &Product{SKU: p.SKU, Version: p.Version, batches: make([]*Batch, len(p.batches))}
	for i, b := range p.batches {
		c.batches[i] = b.clone()
	}
	return c
}

func (p *Product) record(msg *message.Message) {
	p.events = append(p.events, msg)
}

func compareArrival(a, b *Batch) int {
	switch {
	case a.arrivesBefore(b):
		return -1
	case b.arrivesBefore(a):
		return 1
	default:
		return 0
	}
}
