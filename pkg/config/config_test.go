package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "allocation", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, ":50051", cfg.GRPC.Addr())
	assert.Equal(t, uint64(3), cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialInterval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Bus.KafkaBrokers)
	assert.Equal(t, "admin@test.com", cfg.Notification.Recipient)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "/tmp/allocation.db")
	t.Setenv("BUS_BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("RETRY_INITIAL_INTERVAL", "250ms")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/allocation.db", cfg.DB.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Bus.KafkaBrokers)
	assert.Equal(t, uint64(5), cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownBroker(t *testing.T) {
	t.Setenv("BUS_BROKER", "nats")

	_, err := Load()
	assert.Error(t, err)
}
