package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

// AllocationService handles the allocation commands. Each handler opens its
// own unit of work and publishes the resulting events on the internal bus.
type AllocationService struct {
	newUnitOfWork port.UnitOfWorkFactory
	bus           port.EventBus
	logger        zerolog.Logger
}

func NewAllocationService(newUnitOfWork port.UnitOfWorkFactory, internalBus port.EventBus, logger zerolog.Logger) *AllocationService {
	return &AllocationService{
		newUnitOfWork: newUnitOfWork,
		bus:           internalBus,
		logger:        logger.With().Str("component", "allocation_service").Logger(),
	}
}

// AddBatch creates the product on its first batch. A batch reference names
// one batch across all products.
func (s *AllocationService) AddBatch(ctx context.Context, msg *message.Message) error {
	cmd, err := domain.ParseAddBatchCommand(msg)
	if err != nil {
		return err
	}
	batch, err := domain.NewBatch(cmd.Reference, cmd.SKU, cmd.PurchasedQuantity, cmd.ETA)
	if err != nil {
		return err
	}

	return inUnitOfWork(ctx, s.newUnitOfWork, s.bus, func(products port.ProductRepository) error {
		owner, err := products.GetByBatchReference(ctx, cmd.Reference)
		switch {
		case errors.Is(err, port.ErrProductNotFound):
		case err != nil:
			return err
		case owner.SKU != cmd.SKU:
			return &domain.ValidationError{Msg: fmt.Sprintf("Batch reference %s already belongs to SKU %s", cmd.Reference, owner.SKU)}
		}

		product, err := products.Find(ctx, cmd.SKU)
		if err != nil {
			return err
		}
		if product == nil {
			product = domain.NewProduct(cmd.SKU, 0, nil)
		}
		if err := product.AddBatch(batch); err != nil {
			return err
		}
		return products.Save(ctx, product)
	})
}

// Allocate places an order line. Running out of stock is reported through
// an OutOfStockEvent, not an error.
func (s *AllocationService) Allocate(ctx context.Context, msg *message.Message) error {
	cmd, err := domain.ParseAllocateCommand(msg)
	if err != nil {
		return err
	}
	line := domain.OrderLine{OrderID: cmd.OrderID, SKU: cmd.SKU, Quantity: cmd.Quantity}

	return inUnitOfWork(ctx, s.newUnitOfWork, s.bus, func(products port.ProductRepository) error {
		product, err := products.Get(ctx, line.SKU)
		if errors.Is(err, port.ErrProductNotFound) {
			return &domain.ValidationError{Msg: "Invalid SKU " + line.SKU}
		}
		if err != nil {
			return err
		}

		ref, err := product.Allocate(line)
		if err != nil {
			return err
		}
		if ref == "" {
			s.logger.Info().Str("order_id", line.OrderID).Str("sku", line.SKU).Msg("out of stock")
		}
		return products.Save(ctx, product)
	})
}

func (s *AllocationService) ChangeBatchQuantity(ctx context.Context, msg *message.Message) error {
	cmd, err := domain.ParseChangeBatchQuantityCommand(msg)
	if err != nil {
		return err
	}

	return inUnitOfWork(ctx, s.newUnitOfWork, s.bus, func(products port.ProductRepository) error {
		product, err := products.GetByBatchReference(ctx, cmd.BatchReference)
		if errors.Is(err, port.ErrProductNotFound) {
			return &domain.ValidationError{Msg: "Invalid batch reference " + cmd.BatchReference}
		}
		if err != nil {
			return err
		}

		if err := product.ChangeBatchQuantity(cmd.BatchReference, cmd.Quantity); err != nil {
			return err
		}
		return products.Save(ctx, product)
	})
}
