package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier delivers notifications as structured log lines. It stands in
// for an email gateway.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) SendNotification(_ context.Context, recipient, body string) error {
	n.logger.Info().Str("recipient", recipient).Str("body", body).Msg("notification sent")
	return nil
}
