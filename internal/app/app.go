package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/allocation/internal/adapter/bus"
	"github.com/rl1809/allocation/internal/adapter/handler"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/core/service"
	"github.com/rl1809/allocation/internal/port"
)

type Options struct {
	UnitOfWork            port.UnitOfWorkFactory
	View                  port.AllocationView
	Transport             port.Transport
	Notifier              port.Notifier
	NotificationRecipient string
	Retry                 message.RetryPolicy
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	Logger         zerolog.Logger
}

// App is the wired service: both buses with every subscription in place.
type App struct {
	InternalBus *bus.MemoryBus
	ExternalBus *bus.PubSubBus
	Service     *service.AllocationService
	Tracker     *message.Tracker
	HTTP        *handler.HTTPHandler

	transport port.Transport
	logger    zerolog.Logger
}

// New connects the transport and registers every subscription.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger.With().Str("component", "app").Logger()

	if err := opts.Transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect transport: %w", err)
	}

	internal := bus.NewMemoryBus(opts.Logger)
	external := bus.NewPubSubBus(opts.Transport, opts.Logger)
	tracker := message.NewTracker(opts.Logger)

	a := &App{
		InternalBus: internal,
		ExternalBus: external,
		Service:     service.NewAllocationService(opts.UnitOfWork, internal, opts.Logger),
		Tracker:     tracker,
		HTTP:        handler.NewHTTPHandler(internal, opts.View, opts.Logger),
		transport:   opts.Transport,
		logger:      logger,
	}

	h := handlers{
		allocation: a.Service,
		readModel:  service.NewReadModelUpdater(opts.View),
		outOfStock: service.NewOutOfStockNotifier(opts.Notifier, opts.NotificationRecipient),
	}
	p := newPolicies(opts.Logger, tracker, opts.Retry, opts.TracerProvider)

	if err := subscribe(ctx, internal, external, h, p); err != nil {
		return nil, errors.Join(err, opts.Transport.Disconnect(ctx))
	}
	logger.Info().Msg("subscriptions registered")
	return a, nil
}

// Shutdown waits for background handlers until ctx is done, then
// disconnects the transport.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Tracker.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background handlers: %w", err))
	}
	if err := a.transport.Disconnect(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, fmt.Errorf("disconnect transport: %w", err))
	}
	return errors.Join(errs...)
}
