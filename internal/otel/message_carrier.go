package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MessageCarrier holds propagated trace context inside a queue message body so the
// scoring worker can link its spans to the request that enqueued the work.
type MessageCarrier map[string]string

// Ensure `MessageCarrier` implements [propagation.TextMapCarrier]
var _ propagation.TextMapCarrier = (MessageCarrier)(nil)

func (c MessageCarrier) Get(key string) string {
	return c[key]
}

func (c MessageCarrier) Set(key string, value string) {
	c[key] = value
}

func (c MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Inject captures the trace context of ctx using the global propagator.
func Inject(ctx context.Context) MessageCarrier {
	c := MessageCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, c)
	return c
}

// Extract returns a context carrying the remote span context held by c.
func Extract(ctx context.Context, c MessageCarrier) context.Context {
	if c == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, c)
}
