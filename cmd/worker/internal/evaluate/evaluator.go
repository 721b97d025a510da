package evaluate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/cmd/worker/internal/workerqueue"
	"github.com/hirelens/assessment-api/internal/logger"
	otelassessmentapi "github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/queue"
	"github.com/hirelens/assessment-api/internal/scoring"
	"github.com/hirelens/assessment-api/internal/types"
)

var tracer = otel.Tracer(
	"github.com/hirelens/assessment-api/worker/internal/evaluate",
)

// Evaluator scores requests taken off the requests queue and reports on the results queue
type Evaluator struct {
	engine  *scoring.Engine
	results queue.Queuer
}

// Ensure `Evaluator` implements [queue.MessageHandler]
var _ queue.MessageHandler = (*Evaluator)(nil)

func NewEvaluator(
	engine *scoring.Engine, //nolint:revive // import-shadowing: no better variable name to use here
	results queue.Queuer,
) *Evaluator {
	return &Evaluator{engine: engine, results: results}
}

// Handle scores one request. Malformed messages are poison. Failing to publish is
// returned so the request is delivered again.
func (e *Evaluator) Handle(ctx context.Context, message []byte) error {
	var msg types.ScoringRequestMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		_, span := tracer.Start(ctx, "Evaluator.Handle", trace.WithNewRoot())
		defer span.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal scoring request")
		return queue.WrapPoisonError(err)
	}

	ctx = otelassessmentapi.Extract(ctx, msg.TraceContext)
	ctx, span := tracer.Start(ctx, "Evaluator.Handle", trace.WithAttributes(
		attribute.String("msg.type", string(msg.MsgType)),
		attribute.String("msg.instance.id", msg.InstanceID),
		attribute.Int("questions", len(msg.Questions)),
		attribute.Int("answers", len(msg.Answers)),
	))
	defer span.End()

	if msg.MsgType != types.MsgTypeScoringRequest {
		err := fmt.Errorf("unexpected message type %q", msg.MsgType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return queue.WrapPoisonError(err)
	}

	if _, err := uuid.Parse(msg.InstanceID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse instance ID as UUID")
		return queue.WrapPoisonError(fmt.Errorf("failed to parse instance ID as UUID: %w", err))
	}

	wq := workerqueue.NewWorkerQueue(msg.InstanceID, e.results)
	if err := wq.Started(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to report start")
		return err
	}

	result, err := e.engine.Score(ctx, msg.Questions, msg.Answers)
	if err != nil {
		span.RecordError(err)
		logger.Logger.WarnContext(ctx, "scoring failed", "error", err, "instance_id", msg.InstanceID)

		if err := wq.Final(ctx, nil, scoring.RawOutput(err), err); err != nil {
			span.SetStatus(codes.Error, "failed to report scoring failure")
			return err
		}

		span.SetStatus(codes.Ok, "reported scoring failure")
		return nil
	}

	if err := wq.Final(ctx, &result.Output, result.Raw, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to report result")
		return err
	}

	span.SetAttributes(
		attribute.Float64("overall_score", result.Output.OverallScore),
		attribute.String("recommendation", string(result.Output.Recommendation)),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "scored")
	return nil
}
