package message

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrTrackerClosed is returned by Tracker.Go once Shutdown has started.
var ErrTrackerClosed = errors.New("background tracker closed")

// Tracker keeps count of handlers detached by the Background middleware so a
// shutdown sequence can wait for them or deliberately abandon them.
type Tracker struct {
	logger zerolog.Logger

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{logger: logger.With().Str("component", "background").Logger()}
}

// Go runs fn on its own goroutine. Errors returned by fn are logged.
func (t *Tracker) Go(name string, fn func() error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	t.wg.Add(1)
	t.inFlight.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.inFlight.Add(-1)
		if err := fn(); err != nil {
			t.logger.Error().Err(err).Str("handler", name).Msg("background handler failed")
		}
	}()
	return nil
}

// InFlight reports how many detached handlers are still running.
func (t *Tracker) InFlight() int64 {
	return t.inFlight.Load()
}

// Wait blocks until every detached handler has returned or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for in-flight handlers until ctx is
// done, after which the remaining handlers are abandoned.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	if err := t.Wait(ctx); err != nil {
		t.logger.Warn().Int64("abandoned", t.InFlight()).Msg("abandoning background handlers")
		return err
	}
	return nil
}
