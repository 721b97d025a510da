package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hirelens/assessment-api/internal/config"
)

var tracer = otel.Tracer(
	"github.com/hirelens/assessment-api/internal/queue",
)

// Poll interval used when a backend has no messages waiting
const DefaultPollInterval = 5 * time.Second

//go:generate mockgen -destination ./mock/mock.go -package mock . Queuer,MessageHandler

// Generic tasking interface for enqueuing or dequeuing work
type Queuer interface {
	// May block while queuing data
	Enqueue(ctx context.Context, message any) error
	// May block while waiting for data to dequeue
	//
	// If handler returns poison error message should not be requeued, other errors are non fatal for a message.
	Dequeue(ctx context.Context, timeout time.Duration, handler MessageHandler) error
	// Releases any connection held by the queuer
	Close() error
}

type MessageHandler interface {
	Handle(ctx context.Context, message []byte) error
}

// Adapts a plain function to MessageHandler
type HandlerFunc func(ctx context.Context, message []byte) error

func (f HandlerFunc) Handle(ctx context.Context, message []byte) error {
	return f(ctx, message)
}

// Mark a message as unprocessable. It will not be requeued.
type PoisonError struct {
	Err error
}

func (p PoisonError) Error() string {
	return fmt.Sprintf("Poisoned message: %v", p.Err)
}

func (p PoisonError) Unwrap() error {
	return p.Err
}

func WrapPoisonError(err error) error {
	return &PoisonError{Err: err}
}

func IsPoison(err error) bool {
	var pe *PoisonError
	return errors.As(err, &pe)
}

// FromConfig connects to queue `name` on the backend selected by queue.backend, creating it when missing.
//
//nolint:ireturn // callers only depend on the interface
func FromConfig(ctx context.Context, cfg *config.Config, name string) (Queuer, error) {
	switch cfg.Queue.Backend {
	case config.QueueBackendRabbitMQ:
		q, err := NewRabbitQueuer(cfg.Queue.RabbitMQ.URL, name)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to rabbitmq queue %q: %w", name, err)
		}
		return q, nil
	case config.QueueBackendAzure:
		if cfg.Azure == nil || cfg.Azure.StorageAccount == nil {
			return nil, errors.New("azure storage account is not configured")
		}
		sa := cfg.Azure.StorageAccount
		q, err := NewAzureQueuer(sa.Name, sa.Key, sa.QueuesURL, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure queue %q: %w", name, err)
		}
		if err := q.Ensure(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure azure queue %q: %w", name, err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
