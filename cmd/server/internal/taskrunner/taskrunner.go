package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/internal/logger"
)

const name = "github.com/hirelens/assessment-api/server/taskrunner"

var tracer = otel.Tracer(name)

var ErrShutdownTimeout = errors.New("background tasks did not finish before shutdown deadline")

// Client runs work that outlives the request that started it, such as background scoring and
// the sweeper loop, and lets shutdown wait for it.
type Client struct {
	running  sync.WaitGroup
	inFlight atomic.Int64
}

func Create() *Client {
	return &Client{}
}

// InFlight is the number of tasks started and not yet returned
func (c *Client) InFlight() int64 {
	return c.inFlight.Load()
}

// Run starts task in its own goroutine. The task context keeps the caller's values and trace
// but is never cancelled by it. A panicking task is logged and does not take the process down.
func (c *Client) Run(ctx context.Context, task string, fn func(context.Context)) {
	c.running.Add(1)
	c.inFlight.Add(1)

	go func() {
		defer c.running.Done()
		defer c.inFlight.Add(-1)

		//nolint:govet // shadow: intentionally shadow ctx to avoid using the incorrect one.
		ctx, span := tracer.Start(context.WithoutCancel(ctx), "Run", trace.WithAttributes(
			attribute.String("task", task),
		))
		defer span.End()

		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("task %s panicked: %v", task, r)
				span.RecordError(err)
				span.SetStatus(codes.Error, "task panicked")
				logger.Logger.ErrorContext(ctx, "background task panicked", "task", task, "panic", r)
			}
		}()

		fn(ctx)

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "ran task")
	}()
}

// Shutdown waits for running tasks or for ctx to end, whichever comes first
func (c *Client) Shutdown(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Shutdown", trace.WithAttributes(
		attribute.Int64("in_flight", c.InFlight()),
	))
	defer span.End()

	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		logger.Logger.WarnContext(ctx, "abandoning background tasks", "in_flight", c.InFlight())
		span.RecordError(ErrShutdownTimeout)
		span.SetStatus(codes.Error, "error shutting down in time")
		return ErrShutdownTimeout
	case <-done:
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "finished shutting down")
		return nil
	}
}
