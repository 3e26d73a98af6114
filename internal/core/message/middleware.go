package message

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryPolicy bounds the Retry middleware.
type RetryPolicy struct {
	// Retries is the number of attempts made after the first failure.
	Retries uint64
	// InitialInterval is the first backoff delay; later delays grow exponentially.
	InitialInterval time.Duration
	// Retryable reports whether err may succeed on another attempt. Nil
	// treats every error as retryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy allows three additional attempts.
var DefaultRetryPolicy = RetryPolicy{Retries: 3, InitialInterval: time.Second}

// Log records which handler is about to process which message, then delegates.
func Log(logger zerolog.Logger) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			event := logger.Info().
				Str("handler", name).
				Str("message_type", msg.Type()).
				Str("message_id", msg.ID()).
				Interface("payload", msg.Payload())
			if annotations := msg.Annotations(); len(annotations) > 0 {
				event = event.Interface("annotations", annotations)
			}
			event.Msg("handling message")

			return next(ctx, msg)
		}
	}
}

// Retry re-invokes the handler on failure. An error the policy does not
// consider retryable ends the attempts at once. It returns only after the
// last attempt has settled and never reports the final failure to its caller.
func Retry(logger zerolog.Logger, policy RetryPolicy) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			attempt := 0
			operation := func() error {
				attempt++
				err := next(ctx, msg)
				if err != nil && policy.Retryable != nil && !policy.Retryable(err) {
					return backoff.Permanent(err)
				}
				return err
			}

			expo := backoff.NewExponentialBackOff()
			expo.InitialInterval = policy.InitialInterval
			expo.MaxElapsedTime = 0
			b := backoff.WithContext(backoff.WithMaxRetries(expo, policy.Retries), ctx)

			notify := func(err error, wait time.Duration) {
				logger.Error().Err(err).
					Str("handler", name).
					Str("message_type", msg.Type()).
					Str("message_id", msg.ID()).
					Int("attempt", attempt).
					Uint64("retries_left", policy.Retries-uint64(attempt-1)).
					Dur("next_attempt_in", wait).
					Msg("attempt failed")
			}

			if err := backoff.RetryNotify(operation, b, notify); err != nil {
				logger.Error().Err(err).
					Str("handler", name).
					Str("message_type", msg.Type()).
					Str("message_id", msg.ID()).
					Int("attempts", attempt).
					Msg("giving up on message")
			}
			return nil
		}
	}
}

// NotFail logs a handler failure and swallows it so sibling subscribers and
// the publisher are unaffected.
func NotFail(logger zerolog.Logger) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			if err := next(ctx, msg); err != nil {
				logger.Error().Err(err).
					Str("handler", name).
					Str("message_type", msg.Type()).
					Str("message_id", msg.ID()).
					Interface("payload", msg.Payload()).
					Msg("could not handle message")
			}
			return nil
		}
	}
}

// Background detaches the handler through tracker and returns immediately.
// The detached run keeps ctx values but not its cancellation.
func Background(tracker *Tracker, logger zerolog.Logger) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			detached := context.WithoutCancel(ctx)
			err := tracker.Go(name, func() error {
				return next(detached, msg)
			})
			if err != nil {
				logger.Warn().Err(err).
					Str("handler", name).
					Str("message_type", msg.Type()).
					Str("message_id", msg.ID()).
					Msg("dropping message")
			}
			return nil
		}
	}
}

// Trace wraps each invocation in a span. A nil provider means the global one.
func Trace(provider trace.TracerProvider) Middleware {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer("github.com/rl1809/allocation/internal/core/message")

	return func(name string, next Handler) Handler {
		return func(ctx context.Context, msg *Message) error {
			ctx, span := tracer.Start(ctx, "handle "+msg.Type(),
				trace.WithAttributes(
					attribute.String("messaging.handler", name),
					attribute.String("messaging.message.type", msg.Type()),
					attribute.String("messaging.message.id", msg.ID()),
				),
			)
			defer span.End()

			err := next(ctx, msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}
