package bus

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/rl1809/allocation/internal/port"
)

// LoopbackTransport delivers in-process, synchronously, on the publisher's
// goroutine. It stands in for a broker in single-process deployments and tests.
type LoopbackTransport struct {
	mu          sync.RWMutex
	connected   bool
	subscribers map[string][]func(ctx context.Context, payload []byte)
}

func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{subscribers: make(map[string][]func(context.Context, []byte))}
}

func (t *LoopbackTransport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *LoopbackTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return port.ErrNotConnected
	}
	callbacks := slices.Clone(t.subscribers[channel])
	t.mu.RUnlock()

	for _, cb := range callbacks {
		cb(ctx, bytes.Clone(payload))
	}
	return nil
}

func (t *LoopbackTransport) Subscribe(_ context.Context, channel string, callback func(ctx context.Context, payload []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return port.ErrNotConnected
	}
	t.subscribers[channel] = append(t.subscribers[channel], callback)
	return nil
}

func (t *LoopbackTransport) Disconnect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	clear(t.subscribers)
	return nil
}
