package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/queue"
	"github.com/hirelens/assessment-api/internal/types"
)

// Applies scoring worker messages from the results queue. Every message is a compare
// and swap on scoring_status so duplicates and late arrivals are no-ops.
type ResultsHandler struct {
	scorer *Scorer
}

var _ queue.MessageHandler = (*ResultsHandler)(nil)

func NewResultsHandler(scorer *Scorer) *ResultsHandler {
	return &ResultsHandler{scorer: scorer}
}

func (h *ResultsHandler) HandleStartedMessage(
	ctx context.Context,
	instanceID uuid.UUID,
	_ *types.ScoringMsgStarted,
) error {
	ctx, span := tracer.Start(ctx, "HandleStartedMessage")
	defer span.End()

	claimed, err := models.ClaimScoring(ctx, h.scorer.db, instanceID, h.scorer.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim instance")
		return err
	}

	span.SetAttributes(attribute.Bool("claimed", claimed))
	span.SetStatus(codes.Ok, "handled started message")
	return nil
}

func (h *ResultsHandler) HandleFinalMessage(
	ctx context.Context,
	instanceID uuid.UUID,
	msg *types.ScoringMsgFinal,
) error {
	ctx, span := tracer.Start(ctx, "HandleFinalMessage", trace.WithAttributes(
		attribute.Bool("msg.failed", msg.Error != ""),
	))
	defer span.End()

	// the started message may have been lost, claim so the instance still passes through scoring
	_, err := models.ClaimScoring(ctx, h.scorer.db, instanceID, h.scorer.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim instance")
		return err
	}

	var failure error
	if msg.Error != "" {
		failure = errors.New(msg.Error)
	}

	applied, err := h.scorer.Finish(ctx, instanceID, msg.Result, msg.Raw, failure)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply scoring result")
		return err
	}

	span.SetAttributes(attribute.Bool("applied", applied))
	span.SetStatus(codes.Ok, "handled final message")
	return nil
}

func (h *ResultsHandler) Handle(
	ctx context.Context,
	message []byte,
) error {
	var baseMsg types.WorkerMsg
	if err := json.Unmarshal(message, &baseMsg); err != nil {
		_, span := tracer.Start(ctx, "ResultsHandler.Handle", trace.WithNewRoot())
		defer span.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal queue message into generic type")
		return queue.WrapPoisonError(err)
	}

	ctx = otel.Extract(ctx, baseMsg.TraceContext)
	ctx, span := tracer.Start(ctx, "ResultsHandler.Handle")
	defer span.End()

	span.SetAttributes(
		attribute.String("msg.type", string(baseMsg.MsgType)),
		attribute.String("msg.instance.id", baseMsg.InstanceID),
	)

	instanceID, err := uuid.Parse(baseMsg.InstanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse instance ID as UUID")
		return queue.WrapPoisonError(fmt.Errorf("failed to parse instance ID as UUID: %w", err))
	}

	switch baseMsg.MsgType {
	case types.MsgTypeScoringStarted:
		specMsg := types.ScoringMsgStarted{}
		if err := json.Unmarshal(message, &specMsg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to unmarshal queue message into specific type")
			return queue.WrapPoisonError(err)
		}

		if err := h.HandleStartedMessage(ctx, instanceID, &specMsg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to handle")
			return err
		}
	case types.MsgTypeScoringFinal:
		specMsg := types.ScoringMsgFinal{}
		if err := json.Unmarshal(message, &specMsg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to unmarshal queue message into specific type")
			return queue.WrapPoisonError(err)
		}

		if err := h.HandleFinalMessage(ctx, instanceID, &specMsg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to handle")
			return err
		}
	default:
		err := errors.New("queue message type not found")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return queue.WrapPoisonError(err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "handled")
	return nil
}

// Monitors queue results and handles them until `ctx` is cancelled
func MonitorResultsQueue(
	ctx context.Context,
	qr queue.Queuer,
	scorer *Scorer,
) {
	ctx, span := tracer.Start(ctx, "MonitorResultsQueue")
	defer span.End()
	handler := NewResultsHandler(scorer)
OUTER:
	for {
		func() {
			//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
			ctx, span := tracer.Start(ctx, "MonitorResultsQueue.Loop")
			defer span.End()

			if err := qr.Dequeue(ctx, 10*time.Minute, handler); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to dequeue and handle message")
				return
			}
		}()

		select {
		case <-ctx.Done():
			break OUTER
		default:
			continue
		}
	}
}
