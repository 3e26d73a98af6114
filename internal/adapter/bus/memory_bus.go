package bus

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rl1809/allocation/internal/core/message"
)

// MemoryBus dispatches in-process. Handlers run sequentially on the
// publisher's goroutine in subscription order.
type MemoryBus struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]message.Handler
}

func NewMemoryBus(logger zerolog.Logger) *MemoryBus {
	return &MemoryBus{
		logger:   logger.With().Str("component", "memory_bus").Logger(),
		handlers: make(map[string][]message.Handler),
	}
}

func (b *MemoryBus) Subscribe(_ context.Context, messageType string, handler message.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[messageType] = append(b.handlers[messageType], handler)
	return nil
}

// Publish runs every handler subscribed to msg's type, even after one fails,
// and returns their errors joined.
func (b *MemoryBus) Publish(ctx context.Context, msg *message.Message) error {
	b.mu.RLock()
	handlers := slices.Clone(b.handlers[msg.Type()])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug().Str("message_type", msg.Type()).Msg("no subscribers")
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishMany publishes msgs in order.
func (b *MemoryBus) PublishMany(ctx context.Context, msgs []*message.Message) error {
	var errs []error
	for _, msg := range msgs {
		if err := b.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
