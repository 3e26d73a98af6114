package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/port"
)

// PubSubBus crosses process boundaries through a Transport. Only the payload
// travels, as JSON on the channel named after the message type; annotations
// and message IDs stay behind.
type PubSubBus struct {
	transport port.Transport
	logger    zerolog.Logger
}

func NewPubSubBus(transport port.Transport, logger zerolog.Logger) *PubSubBus {
	return &PubSubBus{
		transport: transport,
		logger:    logger.With().Str("component", "pubsub_bus").Logger(),
	}
}

// Subscribe runs handler for every payload received on messageType. Handler
// errors are logged; the transport does not redeliver.
func (b *PubSubBus) Subscribe(ctx context.Context, messageType string, handler message.Handler) error {
	err := b.transport.Subscribe(ctx, messageType, func(ctx context.Context, body []byte) {
		payload, err := decodePayload(body)
		if err != nil {
			b.logger.Error().Err(err).Str("message_type", messageType).Msg("dropping undecodable message")
			return
		}

		msg := message.New(messageType, payload)
		if err := handler(ctx, msg); err != nil {
			b.logger.Error().Err(err).
				Str("message_type", messageType).
				Str("message_id", msg.ID()).
				Msg("subscriber failed")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messageType, err)
	}
	return nil
}

func (b *PubSubBus) Publish(ctx context.Context, msg *message.Message) error {
	body, err := json.Marshal(msg.Payload())
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	if err := b.transport.Publish(ctx, msg.Type(), body); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type(), err)
	}
	return nil
}

// PublishMany publishes msgs concurrently. Ordering between them is not kept.
// A failed publish does not cancel the others; every failure is returned.
func (b *PubSubBus) PublishMany(ctx context.Context, msgs []*message.Message) error {
	var g errgroup.Group
	errs := make([]error, len(msgs))
	for i, msg := range msgs {
		g.Go(func() error {
			errs[i] = b.Publish(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func decodePayload(body []byte) (message.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload message.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
