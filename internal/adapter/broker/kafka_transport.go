package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/rl1809/allocation/internal/port"
)

// KafkaConfig selects the cluster and the consumer group shared by every
// instance of the service.
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// KafkaTransport maps each channel to a topic. Consumers commit offsets as
// they read, so a message whose callback fails is not redelivered. Trace
// context travels in message headers.
type KafkaTransport struct {
	cfg    KafkaConfig
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	writer  *kafka.Writer
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func NewKafkaTransport(cfg KafkaConfig, logger zerolog.Logger) *KafkaTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaTransport{
		cfg:    cfg,
		logger: logger.With().Str("component", "kafka_transport").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (t *KafkaTransport) Connect(ctx context.Context) error {
	if len(t.cfg.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", t.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	conn.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.writer = &kafka.Writer{
		Addr:                   kafka.TCP(t.cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return nil
}

func (t *KafkaTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	w := t.writer
	t.mu.Unlock()
	if w == nil {
		return port.ErrNotConnected
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := w.WriteMessages(ctx, kafka.Message{Topic: channel, Value: payload, Headers: headers})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", channel, err)
	}
	return nil
}

func (t *KafkaTransport) Subscribe(_ context.Context, channel string, callback func(ctx context.Context, payload []byte)) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.cfg.Brokers,
		GroupID:  t.cfg.GroupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	t.mu.Lock()
	t.readers = append(t.readers, reader)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			m, err := reader.ReadMessage(t.ctx)
			if err != nil {
				if t.ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				t.logger.Error().Err(err).Str("topic", channel).Msg("kafka read failed")
				select {
				case <-t.ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			carrier := propagation.MapCarrier{}
			for _, h := range m.Headers {
				carrier[h.Key] = string(h.Value)
			}
			callback(otel.GetTextMapPropagator().Extract(t.ctx, carrier), m.Value)
		}
	}()
	return nil
}

// Disconnect stops the consumers, waits for in-progress callbacks and
// flushes the writer.
func (t *KafkaTransport) Disconnect(context.Context) error {
	t.cancel()

	t.mu.Lock()
	readers := t.readers
	writer := t.writer
	t.readers = nil
	t.writer = nil
	t.mu.Unlock()

	t.wg.Wait()

	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka reader close: %w", err))
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka writer close: %w", err))
		}
	}
	return errors.Join(errs...)
}
