package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/cmd/server/internal/taskrunner"
	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/queue"
	"github.com/hirelens/assessment-api/internal/types"
)

//go:generate mockgen -destination ./mock/mock.go -package mock . Dispatcher

// Dispatcher starts scoring for a submitted instance
type Dispatcher interface {
	Dispatch(ctx context.Context, instanceID uuid.UUID) error
}

// Scores inside the caller's request
type AwaitDispatcher struct {
	scorer *Scorer
}

func NewAwaitDispatcher(scorer *Scorer) *AwaitDispatcher {
	return &AwaitDispatcher{scorer: scorer}
}

func (d *AwaitDispatcher) Dispatch(ctx context.Context, instanceID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "AwaitDispatcher.Dispatch", trace.WithAttributes(
		attribute.String("instance.id", instanceID.String()),
	))
	defer span.End()

	if err := d.scorer.ScoreInstance(ctx, instanceID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to score instance")
		return err
	}

	span.SetStatus(codes.Ok, "scored instance")
	return nil
}

// Scores on the task runner after the request returns
type BackgroundDispatcher struct {
	scorer *Scorer
	runner *taskrunner.Client
}

func NewBackgroundDispatcher(scorer *Scorer, runner *taskrunner.Client) *BackgroundDispatcher {
	return &BackgroundDispatcher{scorer: scorer, runner: runner}
}

func (d *BackgroundDispatcher) Dispatch(ctx context.Context, instanceID uuid.UUID) error {
	_, span := tracer.Start(ctx, "BackgroundDispatcher.Dispatch", trace.WithAttributes(
		attribute.String("instance.id", instanceID.String()),
	))
	defer span.End()

	d.runner.Run(ctx, "score-instance", func(ctx context.Context) {
		if err := d.scorer.ScoreInstance(ctx, instanceID); err != nil {
			logger.Logger.ErrorContext(ctx, "background scoring failed", "error", err, "instance_id", instanceID)
		}
	})

	span.SetStatus(codes.Ok, "scheduled scoring")
	return nil
}

// Hands the instance to a scoring worker over the requests queue
type QueueDispatcher struct {
	scorer *Scorer
	queuer queue.Queuer
}

func NewQueueDispatcher(scorer *Scorer, queuer queue.Queuer) *QueueDispatcher {
	return &QueueDispatcher{scorer: scorer, queuer: queuer}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, instanceID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "QueueDispatcher.Dispatch", trace.WithAttributes(
		attribute.String("instance.id", instanceID.String()),
	))
	defer span.End()

	questions, answers, err := d.scorer.Inputs(ctx, instanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load scoring inputs")
		return err
	}

	msg := types.NewScoringRequestMsg(instanceID.String(), questions, answers)
	msg.TraceContext = otel.Inject(ctx)

	span.AddEvent("enqueueing scoring request")
	if err := d.queuer.Enqueue(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue scoring request")
		return fmt.Errorf("failed to enqueue scoring request: %w", err)
	}

	span.SetStatus(codes.Ok, "enqueued scoring request")
	return nil
}

// NewDispatcher picks the dispatcher for the configured scoring mode. queuer is only
// used in queue mode.
//
//nolint:ireturn // callers only depend on the interface
func NewDispatcher(
	mode config.ScoringMode,
	scorer *Scorer,
	runner *taskrunner.Client,
	queuer queue.Queuer,
) (Dispatcher, error) {
	switch mode {
	case config.ScoringModeAwait, "":
		return NewAwaitDispatcher(scorer), nil
	case config.ScoringModeBackground:
		return NewBackgroundDispatcher(scorer, runner), nil
	case config.ScoringModeQueue:
		if queuer == nil {
			return nil, fmt.Errorf("scoring mode %q needs a requests queue", mode)
		}
		return NewQueueDispatcher(scorer, queuer), nil
	default:
		return nil, fmt.Errorf("unknown scoring mode %q", mode)
	}
}
