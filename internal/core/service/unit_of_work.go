package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

// inUnitOfWork runs fn against a fresh unit of work. A failing fn rolls the
// unit back and its error is returned; otherwise the unit is committed and
// the events it collected are published on bus.
func inUnitOfWork(ctx context.Context, newUnitOfWork port.UnitOfWorkFactory, bus port.EventBus, fn func(port.ProductRepository) error) error {
	uow, err := newUnitOfWork(ctx)
	if err != nil {
		return fmt.Errorf("open unit of work: %w", err)
	}

	if err := fn(uow.Products()); err != nil {
		if rbErr := uow.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		return err
	}

	return publishCollected(ctx, bus, uow.CollectNewEvents())
}

func publishCollected(ctx context.Context, bus port.EventBus, events []*message.Message) error {
	if len(events) == 0 {
		return nil
	}
	return bus.PublishMany(ctx, events)
}
