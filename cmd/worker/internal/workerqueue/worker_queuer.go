package workerqueue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelassessmentapi "github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/queue"
	"github.com/hirelens/assessment-api/internal/types"
)

var tracer = otel.Tracer(
	"github.com/hirelens/assessment-api/worker/internal/workerqueue",
)

// Publishes the progress of one scoring request on the results queue
type WorkerQueuer struct {
	queuer     queue.Queuer
	instanceID string
}

func NewWorkerQueue(instanceID string, queuer queue.Queuer) *WorkerQueuer {
	return &WorkerQueuer{
		instanceID: instanceID,
		queuer:     queuer,
	}
}

func (q *WorkerQueuer) Started(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "WorkerQueuer.Started", trace.WithAttributes(
		attribute.String("instance.id", q.instanceID),
	))
	defer span.End()

	msg := types.NewScoringMsgStarted(q.instanceID)
	msg.TraceContext = otelassessmentapi.Inject(ctx)

	if err := q.queuer.Enqueue(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "enqueued message")
	return nil
}

// Final reports the outcome. A non-nil scoringErr marks the instance as failed.
func (q *WorkerQueuer) Final(
	ctx context.Context,
	result *types.ScoringOutput,
	raw string,
	scoringErr error,
) error {
	ctx, span := tracer.Start(ctx, "WorkerQueuer.Final", trace.WithAttributes(
		attribute.String("instance.id", q.instanceID),
		attribute.Bool("failed", scoringErr != nil),
	))
	defer span.End()

	msg := types.NewScoringMsgFinal(q.instanceID, result, raw, scoringErr)
	msg.TraceContext = otelassessmentapi.Inject(ctx)

	if err := q.queuer.Enqueue(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue message")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "enqueued message")
	return nil
}
