package service

import (
	"context"
	"fmt"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

// AnnotationPromoted marks a message already republished on the external bus.
const AnnotationPromoted = "promoted"

// OutOfStockNotifier tells a fixed recipient when a SKU runs dry.
type OutOfStockNotifier struct {
	notifier  port.Notifier
	recipient string
}

func NewOutOfStockNotifier(notifier port.Notifier, recipient string) *OutOfStockNotifier {
	return &OutOfStockNotifier{notifier: notifier, recipient: recipient}
}

func (n *OutOfStockNotifier) Handle(ctx context.Context, msg *message.Message) error {
	event, err := domain.ParseOutOfStockEvent(msg)
	if err != nil {
		return err
	}
	if err := n.notifier.SendNotification(ctx, n.recipient, "Out of stock: "+event.SKU); err != nil {
		return fmt.Errorf("notify out of stock %s: %w", event.SKU, err)
	}
	return nil
}

// ReadModelUpdater keeps the allocations view in step with the write side.
type ReadModelUpdater struct {
	view port.AllocationView
}

func NewReadModelUpdater(view port.AllocationView) *ReadModelUpdater {
	return &ReadModelUpdater{view: view}
}

func (u *ReadModelUpdater) AddAllocation(ctx context.Context, msg *message.Message) error {
	event, err := domain.ParseAllocatedEvent(msg)
	if err != nil {
		return err
	}
	return u.view.Add(ctx, port.Allocation{
		OrderID:        event.OrderID,
		SKU:            event.SKU,
		BatchReference: event.BatchReference,
	})
}

func (u *ReadModelUpdater) RemoveAllocation(ctx context.Context, msg *message.Message) error {
	event, err := domain.ParseDeallocatedEvent(msg)
	if err != nil {
		return err
	}
	return u.view.Remove(ctx, event.OrderID, event.SKU)
}

// Translate publishes the message produced by fn on bus.
func Translate(bus port.EventBus, fn func(*message.Message) (*message.Message, error)) message.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		translated, err := fn(msg)
		if err != nil {
			return fmt.Errorf("translate %s: %w", msg.Type(), err)
		}
		return bus.Publish(ctx, translated)
	}
}

// ReallocateDeallocated turns a DeallocatedEvent into the AllocateCommand
// for the freed line.
func ReallocateDeallocated(msg *message.Message) (*message.Message, error) {
	event, err := domain.ParseDeallocatedEvent(msg)
	if err != nil {
		return nil, err
	}
	return domain.AllocateCommand{
		OrderID:  event.OrderID,
		SKU:      event.SKU,
		Quantity: event.Quantity,
	}.Message(), nil
}

// Promote republishes internal messages on the external bus. A message that
// was already promoted is not published again.
func Promote(external port.EventBus) message.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		if promoted, _ := msg.Annotation(AnnotationPromoted); promoted == true {
			return nil
		}
		msg.Annotate(AnnotationPromoted, true)
		return external.Publish(ctx, msg)
	}
}
