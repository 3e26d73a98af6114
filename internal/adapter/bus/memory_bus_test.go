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
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string, err error) message.Handler {
	return func(_ context.Context, msg *message.Message) error {
		r.mu.Lock()
		r.calls = append(r.calls, name+":"+msg.Type())
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestMemoryBus_FanOutInSubscriptionOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(zerolog.Nop())
	rec := &recorder{}

	require.NoError(t, b.Subscribe(ctx, "Ping", rec.handler("first", nil)))
	require.NoError(t, b.Subscribe(ctx, "Ping", rec.handler("second", nil)))
	require.NoError(t, b.Subscribe(ctx, "Pong", rec.handler("other", nil)))

	require.NoError(t, b.Publish(ctx, message.New("Ping", nil)))

	assert.Equal(t, []string{"first:Ping", "second:Ping"}, rec.Calls())
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	b := NewMemoryBus(zerolog.Nop())

	assert.NoError(t, b.Publish(context.Background(), message.New("Nobody", nil)))
}

func TestMemoryBus_ErrorsJoinedAndAllHandlersRun(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(zerolog.Nop())
	rec := &recorder{}
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	require.NoError(t, b.Subscribe(ctx, "Ping", rec.handler("a", errA)))
	require.NoError(t, b.Subscribe(ctx, "Ping", rec.handler("ok", nil)))
	require.NoError(t, b.Subscribe(ctx, "Ping", rec.handler("b", errB)))

	err := b.Publish(ctx, message.New("Ping", nil))

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, []string{"a:Ping", "ok:Ping", "b:Ping"}, rec.Calls())
}

func TestMemoryBus_NotFailIsolatesSubscribers(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(zerolog.Nop())
	rec := &recorder{}

	failing := message.Chain("failing", rec.handler("failing", errors.New("boom")), message.NotFail(zerolog.Nop()))
	require.NoError(t, b.Subscribe(ctx, "Ping", failing))
	require.NoError(t, b.Subscribe(ctx, "Ping", rec.handler("healthy", nil)))

	assert.NoError(t, b.Publish(ctx, message.New("Ping", nil)))
	assert.Equal(t, []string{"failing:Ping", "healthy:Ping"}, rec.Calls())
}

func TestMemoryBus_BackgroundNotAwaited(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(zerolog.Nop())
	tracker := message.NewTracker(zerolog.Nop())
	release := make(chan struct{})
	done := make(chan struct{})

	slow := func(context.Context, *message.Message) error {
		<-release
		close(done)
		return nil
	}
	require.NoError(t, b.Subscribe(ctx, "Ping", message.Chain("slow", slow, message.Background(tracker, zerolog.Nop()))))

	require.NoError(t, b.Publish(ctx, message.New("Ping", nil)))
	assert.Equal(t, int64(1), tracker.InFlight())

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background handler did not finish")
	}
	require.NoError(t, tracker.Wait(ctx))
}

func TestMemoryBus_PublishManyInOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(zerolog.Nop())
	rec := &recorder{}
	require.NoError(t, b.Subscribe(ctx, "A", rec.handler("h", nil)))
	require.NoError(t, b.Subscribe(ctx, "B", rec.handler("h", nil)))

	require.NoError(t, b.PublishMany(ctx, []*message.Message{
		message.New("B", nil), message.New("A", nil), message.New("B", nil),
	}))

	assert.Equal(t, []string{"h:B", "h:A", "h:B"}, rec.Calls())
}

func TestMemoryBus_SubscribeDuringPublish(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(zerolog.Nop())
	rec := &recorder{}

	require.NoError(t, b.Subscribe(ctx, "Ping", func(ctx context.Context, msg *message.Message) error {
		return b.Subscribe(ctx, "Ping", rec.handler("late", nil))
	}))

	require.NoError(t, b.Publish(ctx, message.New("Ping", nil)))
	assert.Empty(t, rec.Calls())
}
