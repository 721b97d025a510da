package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/scoring"
	"github.com/hirelens/assessment-api/internal/types"
	"github.com/hirelens/assessment-api/internal/upload"
)

// Scorer owns the scoring_status column of test instances. It claims pending
// instances, runs the scoring engine and persists the outcome.
type Scorer struct {
	db       *gorm.DB
	engine   *scoring.Engine
	archiver *upload.Archiver
	recorder *audit.Recorder
	now      func() time.Time
}

func NewScorer(
	db *gorm.DB,
	engine *scoring.Engine,
	archiver *upload.Archiver,
	recorder *audit.Recorder,
) *Scorer {
	return &Scorer{
		db:       db,
		engine:   engine,
		archiver: archiver,
		recorder: recorder,
		now:      time.Now,
	}
}

// WithDB returns a copy of the scorer bound to db, e.g. a request transaction
func (s *Scorer) WithDB(db *gorm.DB) *Scorer {
	c := *s
	c.db = db
	return &c
}

// Loads the questions and answers an instance is scored against
func (s *Scorer) Inputs(
	ctx context.Context,
	instanceID uuid.UUID,
) ([]types.ScoringQuestion, []types.ScoringAnswer, error) {
	ctx, span := tracer.Start(ctx, "Scorer.Inputs", trace.WithAttributes(
		attribute.String("instance.id", instanceID.String()),
	))
	defer span.End()

	instance, err := models.ByID[models.TestInstance](ctx, s.db, instanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get instance")
		return nil, nil, err
	}

	questions, err := models.QuestionsForAssessment(ctx, s.db, instance.AssessmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get questions")
		return nil, nil, err
	}

	answers, err := models.AnswersForInstance(ctx, s.db, instanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get answers")
		return nil, nil, err
	}

	span.SetStatus(codes.Ok, "loaded scoring inputs")
	return models.ScoringQuestions(questions), models.ScoringAnswers(answers), nil
}

// ScoreInstance claims a pending instance and scores it in place. An instance that
// is not pending is left alone. A scoring failure is persisted as the error state
// and is not returned.
func (s *Scorer) ScoreInstance(ctx context.Context, instanceID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Scorer.ScoreInstance", trace.WithAttributes(
		attribute.String("instance.id", instanceID.String()),
	))
	defer span.End()

	claimed, err := models.ClaimScoring(ctx, s.db, instanceID, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim instance")
		return err
	}
	if !claimed {
		span.AddEvent("instance not pending")
		span.SetStatus(codes.Ok, "nothing to score")
		return nil
	}

	questions, answers, err := s.Inputs(ctx, instanceID)
	if err != nil {
		span.RecordError(err)
		_, ferr := s.Finish(ctx, instanceID, nil, "", fmt.Errorf("failed to load answers: %w", err))
		if ferr != nil {
			span.SetStatus(codes.Error, "failed to record scoring failure")
			return ferr
		}
		span.SetStatus(codes.Error, "failed to load scoring inputs")
		return nil
	}

	result, err := s.engine.Score(ctx, questions, answers)
	if err != nil {
		span.RecordError(err)
		_, err = s.Finish(ctx, instanceID, nil, scoring.RawOutput(err), err)
		if err != nil {
			span.SetStatus(codes.Error, "failed to record scoring failure")
			return err
		}
		span.SetStatus(codes.Ok, "scoring failed and was recorded")
		return nil
	}

	_, err = s.Finish(ctx, instanceID, &result.Output, result.Raw, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record scoring result")
		return err
	}

	span.SetStatus(codes.Ok, "scored instance")
	return nil
}

// Finish moves a claimed instance to scored, or to error when failure is set.
// Returns false when the instance was not in the scoring state.
func (s *Scorer) Finish(
	ctx context.Context,
	instanceID uuid.UUID,
	output *types.ScoringOutput,
	raw string,
	failure error,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "Scorer.Finish", trace.WithAttributes(
		attribute.String("instance.id", instanceID.String()),
		attribute.Bool("failed", failure != nil),
	))
	defer span.End()

	var (
		ok     bool
		err    error
		action audit.Action
	)
	payload := map[string]any{"instance_id": instanceID.String()}

	switch {
	case failure != nil:
		ok, err = models.FailScoring(
			ctx,
			s.db,
			instanceID,
			[]types.ScoringStatus{types.ScoringStatusScoring},
			raw,
			failure.Error(),
		)
		action = audit.ActScoringFailed
		payload["error"] = failure.Error()
	case output == nil:
		failure = fmt.Errorf("scoring finished without a result")
		ok, err = models.FailScoring(
			ctx,
			s.db,
			instanceID,
			[]types.ScoringStatus{types.ScoringStatusScoring},
			raw,
			failure.Error(),
		)
		action = audit.ActScoringFailed
		payload["error"] = failure.Error()
	default:
		ok, err = models.CompleteScoring(ctx, s.db, instanceID, output, raw)
		action = audit.ActScoringCompleted
		payload["overall_score"] = output.OverallScore
		payload["recommendation"] = output.Recommendation
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist scoring outcome")
		return false, err
	}
	if !ok {
		span.AddEvent("instance no longer scoring")
		span.SetStatus(codes.Ok, "stale scoring outcome ignored")
		return false, nil
	}

	archived, err := s.archiver.Archive(ctx, upload.TranscriptScoring, instanceID, raw, output, failure)
	if err != nil {
		span.RecordError(err)
		logger.Logger.WarnContext(
			ctx,
			"failed to archive scoring transcript",
			"error", err,
			"instance_id", instanceID,
		)
	} else if archived != nil {
		payload["transcript"] = archived.Object
		payload["transcript_sha256"] = archived.SHA256
	}

	s.recorder.Record(ctx, nil, action, payload)

	if failure != nil {
		otel.Scoring().Failed(ctx)
	} else {
		otel.Scoring().Scored(ctx, output.OverallScore, string(output.Recommendation))
	}

	span.SetStatus(codes.Ok, "persisted scoring outcome")
	return true, nil
}
