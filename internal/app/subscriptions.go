package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/allocation/internal/core/domain"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

// policies are the middleware stacks, outermost first.
type policies struct {
	externalCommand []message.Middleware
	internalCommand []message.Middleware
	importantEvent  []message.Middleware
	event           []message.Middleware
}

func newPolicies(logger zerolog.Logger, tracker *message.Tracker, retry message.RetryPolicy, tp trace.TracerProvider) policies {
	log := message.Log(logger)
	traced := message.Trace(tp)
	notFail := message.NotFail(logger)
	background := message.Background(tracker, logger)
	if retry.Retryable == nil {
		retry.Retryable = retryable
	}

	return policies{
		// Retry sits inside NotFail so failed attempts are still retried.
		externalCommand: []message.Middleware{log, background, notFail, message.Retry(logger, retry), traced},
		internalCommand: []message.Middleware{log, traced},
		importantEvent:  []message.Middleware{log, notFail, traced},
		event:           []message.Middleware{log, background, notFail, traced},
	}
}

// retryable keeps invalid commands from being attempted again.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrValidation)
}

type subscription struct {
	messageType string
	name        string
	handler     message.Handler
	middlewares []message.Middleware
}

type handlers struct {
	allocation *service.AllocationService
	readModel  *service.ReadModelUpdater
	outOfStock *service.OutOfStockNotifier
}

// externalSubscriptions are the commands other systems may send.
func externalSubscriptions(h handlers, p policies) []subscription {
	return []subscription{
		{domain.ChangeBatchQuantityCommandType, "change_batch_quantity", h.allocation.ChangeBatchQuantity, p.externalCommand},
	}
}

// internalSubscriptions are registered in order; handlers of the same type
// run in that order.
func internalSubscriptions(h handlers, p policies, internal, external port.EventBus) []subscription {
	return []subscription{
		{domain.AddBatchCommandType, "add_batch", h.allocation.AddBatch, p.internalCommand},
		{domain.AllocateCommandType, "allocate", h.allocation.Allocate, p.internalCommand},

		{domain.AllocatedEventType, "add_allocation_to_read_model", h.readModel.AddAllocation, p.importantEvent},
		{domain.DeallocatedEventType, "remove_allocation_from_read_model", h.readModel.RemoveAllocation, p.importantEvent},
		{domain.DeallocatedEventType, "reallocate", service.Translate(internal, service.ReallocateDeallocated), p.importantEvent},

		{domain.OutOfStockEventType, "send_out_of_stock_notification", h.outOfStock.Handle, p.event},
		{domain.AllocatedEventType, "promote_to_external", service.Promote(external), p.event},
	}
}

func subscribeAll(ctx context.Context, bus port.EventBus, subs []subscription) error {
	for _, s := range subs {
		if err := bus.Subscribe(ctx, s.messageType, message.Chain(s.name, s.handler, s.middlewares...)); err != nil {
			return fmt.Errorf("subscribe %s to %s: %w", s.name, s.messageType, err)
		}
	}
	return nil
}

// subscribe registers both tables. The buses are independent so they are
// wired concurrently; within one bus the table order is kept.
func subscribe(ctx context.Context, internal, external port.EventBus, h handlers, p policies) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return subscribeAll(ctx, internal, internalSubscriptions(h, p, internal, external))
	})
	g.Go(func() error {
		return subscribeAll(ctx, external, externalSubscriptions(h, p))
	})
	return g.Wait()
}
