package broker

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/allocation/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func getKafkaTransport(t *testing.T) *KafkaTransport {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}

	tr := NewKafkaTransport(KafkaConfig{
		Brokers: strings.Split(brokers, ","),
		GroupID: "allocation-test-" + uuid.NewString(),
	}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Skipf("Kafka not available: %v", err)
	}
	return tr
}

func roundTrip(t *testing.T, tr port.Transport, timeout time.Duration) {
	ctx := context.Background()
	channel := "transport-test-" + uuid.NewString()
	received := make(chan []byte, 1)

	require.NoError(t, tr.Subscribe(ctx, channel, func(_ context.Context, payload []byte) {
		select {
		case received <- payload:
		default:
		}
	}))

	deadline := time.After(timeout)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, tr.Publish(ctx, channel, []byte(`{"sku":"LAMP"}`)))
		select {
		case got := <-received:
			assert.JSONEq(t, `{"sku":"LAMP"}`, string(got))
			return
		case <-deadline:
			t.Fatal("no message received")
		case <-tick.C:
		}
	}
}

func TestRedisTransport_RoundTrip(t *testing.T) {
	tr := NewRedisTransport(getRedisClient(t), zerolog.Nop())
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Disconnect(context.Background())

	roundTrip(t, tr, 5*time.Second)
}

func TestRedisTransport_DisconnectStopsDelivery(t *testing.T) {
	client := getRedisClient(t)
	tr := NewRedisTransport(client, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))

	require.NoError(t, tr.Subscribe(ctx, "transport-test-closed", func(context.Context, []byte) {}))
	require.NoError(t, tr.Disconnect(ctx))

	n, err := client.Publish(ctx, "transport-test-closed", "{}").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKafkaTransport_RoundTrip(t *testing.T) {
	tr := getKafkaTransport(t)
	defer tr.Disconnect(context.Background())

	roundTrip(t, tr, 30*time.Second)
}

func TestKafkaTransport_PublishBeforeConnect(t *testing.T) {
	tr := NewKafkaTransport(KafkaConfig{Brokers: []string{"localhost:9092"}}, zerolog.Nop())

	err := tr.Publish(context.Background(), "x", []byte("{}"))

	assert.ErrorIs(t, err, port.ErrNotConnected)
}

func TestKafkaTransport_ConnectWithoutBrokers(t *testing.T) {
	tr := NewKafkaTransport(KafkaConfig{}, zerolog.Nop())

	assert.Error(t, tr.Connect(context.Background()))
}
