package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		var c propagation.TextMapCarrier = MessageCarrier{}

		c.Set("a", "b")

		assert.Equal(t, "b", c.Get("a"), "failed to retrieve set value")
		assert.Equal(t, []string{"a"}, c.Keys(), "failed to get set keys")
	})

	t.Run("Propagates", func(t *testing.T) {
		otel.SetTextMapPropagator(newPropagator())

		traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		require.NoError(t, err)
		spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
		require.NoError(t, err)

		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		carrier := Inject(ctx)
		assert.Contains(t, carrier, "traceparent", "trace context should be injected")

		extracted := trace.SpanContextFromContext(Extract(context.Background(), carrier))
		assert.Equal(t, traceID, extracted.TraceID(), "trace id should survive the trip")
		assert.True(t, extracted.IsRemote(), "extracted span should be remote")
	})

	t.Run("NilCarrier", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, ctx, Extract(ctx, nil))
	})
}
