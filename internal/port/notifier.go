package port

import "context"

type Notifier interface {
	SendNotification(ctx context.Context, recipient, body string) error
}
