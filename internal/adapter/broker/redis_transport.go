package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisTransport carries payloads over Redis Pub/Sub. Messages published
// while nobody is subscribed are lost.
type RedisTransport struct {
	client *redis.Client
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*redis.PubSub
	wg   sync.WaitGroup
}

// NewRedisTransport does not take ownership of client.
func NewRedisTransport(client *redis.Client, logger zerolog.Logger) *RedisTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisTransport{
		client: client,
		logger: logger.With().Str("component", "redis_transport").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (t *RedisTransport) Connect(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string, callback func(ctx context.Context, payload []byte)) error {
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, ps)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for m := range ps.Channel() {
			callback(t.ctx, []byte(m.Payload))
		}
		t.logger.Debug().Str("channel", channel).Msg("subscription closed")
	}()
	return nil
}

// Disconnect closes every subscription and waits for in-progress callbacks.
func (t *RedisTransport) Disconnect(context.Context) error {
	t.cancel()

	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("redis unsubscribe: %w", err)
		}
	}
	t.wg.Wait()
	return firstErr
}
