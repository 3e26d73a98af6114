package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

func connectedLoopback(t *testing.T) *LoopbackTransport {
	t.Helper()
	tr := NewLoopbackTransport()
	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Disconnect(context.Background()) })
	return tr
}

func TestPubSubBus_OnlyPayloadCrosses(t *testing.T) {
	ctx := context.Background()
	b := NewPubSubBus(connectedLoopback(t), zerolog.Nop())

	var received *message.Message
	require.NoError(t, b.Subscribe(ctx, "AllocatedEvent", func(_ context.Context, msg *message.Message) error {
		received = msg
		return nil
	}))

	sent := message.New("AllocatedEvent", message.Payload{"orderId": "o1", "quantity": 3})
	sent.Annotate("promoted", true)
	require.NoError(t, b.Publish(ctx, sent))

	require.NotNil(t, received)
	assert.Equal(t, "AllocatedEvent", received.Type())
	assert.Empty(t, received.Annotations())
	assert.NotEqual(t, sent.ID(), received.ID())

	orderID, err := received.Payload().String("orderId")
	require.NoError(t, err)
	assert.Equal(t, "o1", orderID)
	qty, err := received.Payload().Int("quantity")
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
}

func TestPubSubBus_WireFormatIsFlatJSON(t *testing.T) {
	ctx := context.Background()
	tr := connectedLoopback(t)
	b := NewPubSubBus(tr, zerolog.Nop())

	var body []byte
	require.NoError(t, tr.Subscribe(ctx, "OutOfStockEvent", func(_ context.Context, payload []byte) {
		body = payload
	}))

	msg := message.New("OutOfStockEvent", message.Payload{"sku": "LAMP"})
	msg.Annotate("promoted", true)
	require.NoError(t, b.Publish(ctx, msg))

	assert.JSONEq(t, `{"sku":"LAMP"}`, string(body))
}

func TestPubSubBus_HandlerErrorIsLoggedNotPropagated(t *testing.T) {
	ctx := context.Background()
	b := NewPubSubBus(connectedLoopback(t), zerolog.Nop())

	calls := 0
	require.NoError(t, b.Subscribe(ctx, "Ping", func(context.Context, *message.Message) error {
		calls++
		return errors.New("boom")
	}))

	assert.NoError(t, b.Publish(ctx, message.New("Ping", message.Payload{})))
	assert.Equal(t, 1, calls)
}

func TestPubSubBus_UndecodablePayloadDropped(t *testing.T) {
	ctx := context.Background()
	tr := connectedLoopback(t)
	b := NewPubSubBus(tr, zerolog.Nop())

	calls := 0
	require.NoError(t, b.Subscribe(ctx, "Ping", func(context.Context, *message.Message) error {
		calls++
		return nil
	}))

	require.NoError(t, tr.Publish(ctx, "Ping", []byte("not json")))
	assert.Zero(t, calls)
}

func TestPubSubBus_PublishMany(t *testing.T) {
	ctx := context.Background()
	b := NewPubSubBus(connectedLoopback(t), zerolog.Nop())

	var (
		mu   sync.Mutex
		skus []string
	)
	require.NoError(t, b.Subscribe(ctx, "OutOfStockEvent", func(_ context.Context, msg *message.Message) error {
		sku, _ := msg.Payload().String("sku")
		mu.Lock()
		skus = append(skus, sku)
		mu.Unlock()
		return nil
	}))

	require.NoError(t, b.PublishMany(ctx, []*message.Message{
		message.New("OutOfStockEvent", message.Payload{"sku": "A"}),
		message.New("OutOfStockEvent", message.Payload{"sku": "B"}),
		message.New("OutOfStockEvent", message.Payload{"sku": "C"}),
	}))

	assert.ElementsMatch(t, []string{"A", "B", "C"}, skus)
}

var errRejected = errors.New("broker rejected")

// selectiveTransport rejects one channel and delivers the others slowly, so a
// rejection lands while the other publishes are still in flight.
type selectiveTransport struct {
	port.Transport
	reject string

	mu        sync.Mutex
	delivered []string
}

func (s *selectiveTransport) Publish(ctx context.Context, channel string, _ []byte) error {
	if channel == s.reject {
		return errRejected
	}
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.delivered = append(s.delivered, channel)
	s.mu.Unlock()
	return nil
}

func TestPubSubBus_PublishManyIsIndependentPerMessage(t *testing.T) {
	tr := &selectiveTransport{reject: "Bad"}
	b := NewPubSubBus(tr, zerolog.Nop())

	err := b.PublishMany(context.Background(), []*message.Message{
		message.New("First", nil),
		message.New("Bad", nil),
		message.New("Second", nil),
	})

	assert.ErrorIs(t, err, errRejected)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.ElementsMatch(t, []string{"First", "Second"}, tr.delivered)
}

func TestPubSubBus_TransportErrorSurfaced(t *testing.T) {
	b := NewPubSubBus(NewLoopbackTransport(), zerolog.Nop())

	err := b.Publish(context.Background(), message.New("Ping", nil))

	assert.ErrorIs(t, err, port.ErrNotConnected)
}

func TestLoopbackTransport_DisconnectDropsSubscribers(t *testing.T) {
	ctx := context.Background()
	tr := NewLoopbackTransport()
	require.NoError(t, tr.Connect(ctx))

	calls := 0
	require.NoError(t, tr.Subscribe(ctx, "Ping", func(context.Context, []byte) { calls++ }))
	require.NoError(t, tr.Disconnect(ctx))
	require.NoError(t, tr.Connect(ctx))
	require.NoError(t, tr.Publish(ctx, "Ping", []byte("{}")))

	assert.Zero(t, calls)
}
