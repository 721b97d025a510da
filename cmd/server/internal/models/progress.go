package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirelens/assessment-api/internal/stage"
	"github.com/hirelens/assessment-api/internal/types"
)

// UpsertAnswers upserts answers keyed by (instance, question). A write older than the stored
// one loses. Callers hold the instance row lock so nothing lands after submission.
func UpsertAnswers(ctx context.Context, db *gorm.DB, answers []Answer) error {
	ctx, span := tracer.Start(ctx, "UpsertAnswers")
	defer span.End()

	span.SetAttributes(attribute.Int("answers", len(answers)))

	if len(answers) == 0 {
		span.SetStatus(codes.Ok, "nothing to upsert")
		return nil
	}

	db = db.WithContext(ctx)

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instance_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{"answer_text", "selected_option_id", "submitted_at"},
		),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "answers.submitted_at <= EXCLUDED.submitted_at"},
			// an identical resave leaves the row alone
			clause.Expr{SQL: "(answers.answer_text, answers.selected_option_id) IS DISTINCT FROM " +
				"(EXCLUDED.answer_text, EXCLUDED.selected_option_id)"},
		}},
	}).Create(&answers).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert answers")
		return fmt.Errorf("failed to upsert answers: %w", err)
	}

	span.SetStatus(codes.Ok, "upserted answers")
	return nil
}

func AnswersForInstance(ctx context.Context, db *gorm.DB, instanceID uuid.UUID) ([]Answer, error) {
	ctx, span := tracer.Start(ctx, "AnswersForInstance")
	defer span.End()

	db = db.WithContext(ctx)

	var answers []Answer
	err := db.Where("instance_id = ?", instanceID).Order("submitted_at").Find(&answers).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch answers")
		return nil, fmt.Errorf("failed to fetch answers: %w", err)
	}

	span.SetAttributes(attribute.Int("answers", len(answers)))
	span.SetStatus(codes.Ok, "fetched answers")
	return answers, nil
}

// AdvanceStage moves an in progress instance from one stage to the next. Returns false
// when another request already moved it.
func AdvanceStage(ctx context.Context, db *gorm.DB, instanceID uuid.UUID, from int, to int) (bool, error) {
	ctx, span := tracer.Start(ctx, "AdvanceStage")
	defer span.End()

	span.SetAttributes(
		attribute.String("instance.id", instanceID.String()),
		attribute.Int("from", from),
		attribute.Int("to", to),
	)

	db = db.WithContext(ctx)

	result := db.Model(&TestInstance{}).
		Where("id = ?", instanceID).
		Where("status = ?", types.InstanceStatusInProgress).
		Where("current_stage = ?", from).
		Update("current_stage", to)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to advance stage")
		return false, fmt.Errorf("failed to advance stage: %w", result.Error)
	}

	span.SetStatus(codes.Ok, "attempted stage advance")
	return result.RowsAffected == 1, nil
}

// SubmitInstance moves an in progress instance to submitted with scoring pending and
// records the dashboard submission. The stage is left where it is. Returns false when
// the instance was already submitted.
func SubmitInstance(
	ctx context.Context,
	db *gorm.DB,
	instance *TestInstance,
	jobID uuid.UUID,
	now time.Time,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "SubmitInstance")
	defer span.End()

	span.SetAttributes(
		attribute.String("instance.id", instance.ID.String()),
		attribute.Int("current_stage", instance.CurrentStage),
	)

	submitted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// waits out in flight answer writes
		locked, err := LockByID[TestInstance](ctx, tx, instance.ID)
		if err != nil {
			return err
		}
		if locked.Status != types.InstanceStatusInProgress {
			return nil
		}

		timeTaken := stage.TimeTaken(instance.StartedAt, now)

		result := tx.Model(&TestInstance{}).
			Where("id = ?", instance.ID).
			Where("status = ?", types.InstanceStatusInProgress).
			Updates(map[string]any{
				"status":             types.InstanceStatusSubmitted,
				"completed_at":       now,
				"time_taken_seconds": timeTaken,
				"scoring_status":     types.ScoringStatusPending,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		err = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&CandidateSubmission{JobID: jobID, InstanceID: instance.ID}).
			Error
		if err != nil {
			return err
		}

		err = tx.Model(&Job{}).Where("id = ?", jobID).Update("last_activity_at", now).Error
		if err != nil {
			return err
		}

		instance.Status = types.InstanceStatusSubmitted
		instance.CompletedAt = NewNullFromData(now)
		instance.TimeTakenSeconds = NewNullFromData(timeTaken)
		instance.ScoringStatus = NewNullFromData(types.ScoringStatusPending)
		submitted = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit instance")
		return false, fmt.Errorf("failed to submit instance: %w", err)
	}

	span.SetAttributes(attribute.Bool("submitted", submitted))
	span.SetStatus(codes.Ok, "attempted submission")
	return submitted, nil
}

// TransitionScoring is a compare and swap on scoring_status. Every scoring state change
// goes through here so an instance only ever moves pending -> scoring -> scored|error.
func TransitionScoring(
	ctx context.Context,
	db *gorm.DB,
	instanceID uuid.UUID,
	from []types.ScoringStatus,
	updates map[string]any,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "TransitionScoring")
	defer span.End()

	span.SetAttributes(
		attribute.String("instance.id", instanceID.String()),
		attribute.String("to", fmt.Sprint(updates["scoring_status"])),
	)

	db = db.WithContext(ctx)

	result := db.Model(&TestInstance{}).
		Where("id = ?", instanceID).
		Where("scoring_status IN ?", from).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to transition scoring status")
		return false, fmt.Errorf("failed to transition scoring status: %w", result.Error)
	}

	span.SetAttributes(attribute.Int64("rows", result.RowsAffected))
	span.SetStatus(codes.Ok, "attempted scoring transition")
	return result.RowsAffected == 1, nil
}

func ClaimScoring(ctx context.Context, db *gorm.DB, instanceID uuid.UUID, now time.Time) (bool, error) {
	return TransitionScoring(
		ctx,
		db,
		instanceID,
		[]types.ScoringStatus{types.ScoringStatusPending},
		map[string]any{
			"scoring_status":     types.ScoringStatusScoring,
			"scoring_started_at": now,
		},
	)
}

func CompleteScoring(
	ctx context.Context,
	db *gorm.DB,
	instanceID uuid.UUID,
	output *types.ScoringOutput,
	raw string,
) (bool, error) {
	breakdown, err := jsonColumn(output.Stages)
	if err != nil {
		return false, err
	}

	return TransitionScoring(
		ctx,
		db,
		instanceID,
		[]types.ScoringStatus{types.ScoringStatusScoring},
		map[string]any{
			"scoring_status":      types.ScoringStatusScored,
			"recommendation":      output.Recommendation,
			"overall_score":       output.OverallScore,
			"scoring_breakdown":   breakdown,
			"scoring_explanation": output.Explanation,
			"raw_scoring_output":  raw,
			"scoring_error":       "",
		},
	)
}

// FailScoring marks scoring failed, keeping whatever raw output the scorer produced
func FailScoring(
	ctx context.Context,
	db *gorm.DB,
	instanceID uuid.UUID,
	from []types.ScoringStatus,
	raw string,
	reason string,
) (bool, error) {
	return TransitionScoring(ctx, db, instanceID, from, map[string]any{
		"scoring_status":     types.ScoringStatusError,
		"raw_scoring_output": raw,
		"scoring_error":      reason,
	})
}

// ResetScoring puts a finished instance back in the queue for scoring
func ResetScoring(ctx context.Context, db *gorm.DB, instanceID uuid.UUID) (bool, error) {
	return TransitionScoring(
		ctx,
		db,
		instanceID,
		[]types.ScoringStatus{types.ScoringStatusError, types.ScoringStatusScored},
		map[string]any{
			"scoring_status":     types.ScoringStatusPending,
			"scoring_started_at": nil,
			"scoring_error":      "",
		},
	)
}
