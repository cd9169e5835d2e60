package queue

import (
	"context"
)

// Publisher sends a JSON event to a topic exchange. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, event any, reqID string) error
	Close() error
}

type NoopPub struct{}

func NewNoop() Publisher { return NoopPub{} }

func (NoopPub) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	return nil
}
func (NoopPub) Close() error { return nil }

type ctxKey struct{}

// WithRequestID stores the request id that ends up in the X-Request-ID header
// of every message published while handling that request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
