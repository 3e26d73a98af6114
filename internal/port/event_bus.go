package port

import (
	"context"

	"github.com/rl1809/allocation/internal/core/message"
)

// EventBus fans a message out to every handler subscribed to its type.
// Publishing a type nobody subscribed to is a no-op.
type EventBus interface {
	Subscribe(ctx context.Context, messageType string, handler message.Handler) error
	Publish(ctx context.Context, msg *message.Message) error
	PublishMany(ctx context.Context, msgs []*message.Message) error
}
