package domain

import (
	"time"

	"github.com/rl1809/allocation/internal/core/message"
)

// Type tags. They are also the channel names on the external bus, so renaming
// one breaks every consumer.
const (
	AddBatchCommandType            = "AddBatchCommand"
	AllocateCommandType            = "AllocateCommand"
	ChangeBatchQuantityCommandType = "ChangeBatchQuantityCommand"

	AllocatedEventType   = "AllocatedEvent"
	DeallocatedEventType = "DeallocatedEvent"
	OutOfStockEventType  = "OutOfStockEvent"
)

type AddBatchCommand struct {
	Reference         string
	SKU               string
	PurchasedQuantity int
	ETA               *time.Time
}

func (c AddBatchCommand) Message() *message.Message {
	p := message.Payload{
		"reference":         c.Reference,
		"sku":               c.SKU,
		"purchasedQuantity": c.PurchasedQuantity,
	}
	if c.ETA != nil {
		p["eta"] = c.ETA.UTC().Format(time.RFC3339)
	}
	return message.New(AddBatchCommandType, p)
}

func ParseAddBatchCommand(msg *message.Message) (AddBatchCommand, error) {
	p := msg.Payload()
	var (
		c   AddBatchCommand
		err error
	)
	if c.Reference, err = p.String("reference"); err != nil {
		return c, invalid(err.Error())
	}
	if c.SKU, err = p.String("sku"); err != nil {
		return c, invalid(err.Error())
	}
	if c.PurchasedQuantity, err = p.Int("purchasedQuantity"); err != nil {
		return c, invalid(err.Error())
	}
	if c.ETA, err = p.OptionalTime("eta"); err != nil {
		return c, invalid(err.Error())
	}
	return c, nil
}

type AllocateCommand struct {
	OrderID  string
	SKU      string
	Quantity int
}

func (c AllocateCommand) Message() *message.Message {
	return message.New(AllocateCommandType, message.Payload{
		"orderId":  c.OrderID,
		"sku":      c.SKU,
		"quantity": c.Quantity,
	})
}

func ParseAllocateCommand(msg *message.Message) (AllocateCommand, error) {
	orderID, sku, qty, err := parseLine(msg.Payload())
	return AllocateCommand{OrderID: orderID, SKU: sku, Quantity: qty}, err
}

type ChangeBatchQuantityCommand struct {
	BatchReference string
	Quantity       int
}

func (c ChangeBatchQuantityCommand) Message() *message.Message {
	return message.New(ChangeBatchQuantityCommandType, message.Payload{
		"batchReference": c.BatchReference,
		"quantity":       c.Quantity,
	})
}

func ParseChangeBatchQuantityCommand(msg *message.Message) (ChangeBatchQuantityCommand, error) {
	p := msg.Payload()
	var (
		c   ChangeBatchQuantityCommand
		err error
	)
	if c.BatchReference, err = p.String("batchReference"); err != nil {
		return c, invalid(err.Error())
	}
	if c.Quantity, err = p.Int("quantity"); err != nil {
		return c, invalid(err.Error())
	}
	return c, nil
}

type AllocatedEvent struct {
	OrderID        string
	SKU            string
	Quantity       int
	BatchReference string
}

func (e AllocatedEvent) Message() *message.Message {
	return message.New(AllocatedEventType, message.Payload{
		"orderId":        e.OrderID,
		"sku":            e.SKU,
		"quantity":       e.Quantity,
		"batchReference": e.BatchReference,
	})
}

func ParseAllocatedEvent(msg *message.Message) (AllocatedEvent, error) {
	p := msg.Payload()
	orderID, sku, qty, err := parseLine(p)
	if err != nil {
		return AllocatedEvent{}, err
	}
	ref, err := p.String("batchReference")
	if err != nil {
		return AllocatedEvent{}, invalid(err.Error())
	}
	return AllocatedEvent{OrderID: orderID, SKU: sku, Quantity: qty, BatchReference: ref}, nil
}

type DeallocatedEvent struct {
	OrderID  string
	SKU      string
	Quantity int
}

func (e DeallocatedEvent) Message() *message.Message {
	return message.New(DeallocatedEventType, message.Payload{
		"orderId":  e.OrderID,
		"sku":      e.SKU,
		"quantity": e.Quantity,
	})
}

func ParseDeallocatedEvent(msg *message.Message) (DeallocatedEvent, error) {
	orderID, sku, qty, err := parseLine(msg.Payload())
	return DeallocatedEvent{OrderID: orderID, SKU: sku, Quantity: qty}, err
}

type OutOfStockEvent struct {
	SKU string
}

func (e OutOfStockEvent) Message() *message.Message {
	return message.New(OutOfStockEventType, message.Payload{"sku": e.SKU})
}

func ParseOutOfStockEvent(msg *message.Message) (OutOfStockEvent, error) {
	sku, err := msg.Payload().String("sku")
	if err != nil {
		return OutOfStockEvent{}, invalid(err.Error())
	}
	return OutOfStockEvent{SKU: sku}, nil
}

func parseLine(p message.Payload) (orderID, sku string, qty int, err error) {
	if orderID, err = p.String("orderId"); err != nil {
		return "", "", 0, invalid(err.Error())
	}
	if sku, err = p.String("sku"); err != nil {
		return "", "", 0, invalid(err.Error())
	}
	if qty, err = p.Int("quantity"); err != nil {
		return "", "", 0, invalid(err.Error())
	}
	return orderID, sku, qty, nil
}
