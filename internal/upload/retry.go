package upload

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Store = (*RetryStore)(nil)

// RetryStore retries network operations of the wrapped store. Signing a read URL happens
// locally and is passed straight through.
type RetryStore struct {
	store   Store
	backoff func() retry.Backoff
}

// Transcripts are archived off the request path so a long backoff is acceptable
func NewRetryStore(store Store) *RetryStore {
	return NewRetryStoreBackoff(store, func() retry.Backoff {
		b := retry.NewExponential(500 * time.Millisecond)
		b = retry.WithJitterPercent(20, b)
		return retry.WithMaxDuration(time.Minute, b)
	})
}

func NewRetryStoreBackoff(store Store, backoff func() retry.Backoff) *RetryStore {
	return &RetryStore{store: store, backoff: backoff}
}

// A cancelled or timed out caller will not be helped by another attempt
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryStore) do(ctx context.Context, op string, object string, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "RetryStore."+op, trace.WithAttributes(
		attribute.String("object", object),
	))
	defer span.End()

	attempts := 0
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("attempt", attempts),
			attribute.String("error", err.Error()),
		))
		if !retryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gave up")
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (r *RetryStore) Location() string {
	return r.store.Location()
}

func (r *RetryStore) Prepare(ctx context.Context) error {
	return r.do(ctx, "Prepare", "", r.store.Prepare)
}

func (r *RetryStore) Put(ctx context.Context, object string, body []byte) error {
	return r.do(ctx, "Put", object, func(ctx context.Context) error {
		return r.store.Put(ctx, object, body)
	})
}

func (r *RetryStore) Exists(ctx context.Context, object string) (bool, error) {
	var exists bool
	err := r.do(ctx, "Exists", object, func(ctx context.Context) error {
		var err error
		exists, err = r.store.Exists(ctx, object)
		return err
	})
	return exists, err
}

func (r *RetryStore) ReadURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	return r.store.ReadURL(ctx, object, ttl)
}
