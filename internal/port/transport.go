package port

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("transport not connected")

// Transport moves opaque payloads between processes, one channel per message
// type. Delivery is at most once.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe registers callback for channel. Callbacks run on the
	// transport's receive goroutine.
	Subscribe(ctx context.Context, channel string, callback func(ctx context.Context, payload []byte)) error
	Disconnect(ctx context.Context) error
}
