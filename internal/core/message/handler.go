package message

import "context"

// Handler processes one message.
type Handler func(ctx context.Context, msg *Message) error

// Middleware wraps a handler with a cross-cutting policy. name identifies the
// wrapped handler in logs and spans.
type Middleware func(name string, next Handler) Handler

// Chain composes middlewares around h. The first middleware is the outermost.
func Chain(name string, h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](name, h)
	}
	return h
}
