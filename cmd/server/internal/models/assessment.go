package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/internal/invite"
	"github.com/hirelens/assessment-api/internal/lifecycle"
	"github.com/hirelens/assessment-api/internal/types"
)

type Assessment struct {
	Status              types.AssessmentStatus `gorm:"type:text;default:'draft'"`
	RawGenerationOutput string
	Model
	ActiveFrom      datatypes.Null[time.Time]
	ActiveUntil     datatypes.Null[time.Time]
	PublishedAt     datatypes.Null[time.Time]
	ClosedAt        datatypes.Null[time.Time]
	DurationSeconds int
	JobID           uuid.UUID
	SingleUseLinks  bool `gorm:"default:true"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (a Assessment) GetID() uuid.UUID {
	return a.ID
}

func (Assessment) OwnerScope(db *gorm.DB, ownerID uuid.UUID) *gorm.DB {
	return db.Joins("JOIN jobs ON jobs.id = assessments.job_id").
		Where("jobs.owner_id = ?", ownerID)
}

// Everything an invite needs from its assessment to be redeemed
func (a *Assessment) InviteState(inv *Invite) *invite.State {
	return &invite.State{
		UsedAt:           PtrFromNull(inv.UsedAt),
		ActiveFrom:       PtrFromNull(a.ActiveFrom),
		ActiveUntil:      PtrFromNull(a.ActiveUntil),
		ExpiresAt:        inv.ExpiresAt,
		AssessmentStatus: a.Status,
		SingleUse:        inv.SingleUse,
	}
}

// Stage index of every question in the assessment
func StageIndexes(ctx context.Context, db *gorm.DB, assessmentID uuid.UUID) ([]int, error) {
	ctx, span := tracer.Start(ctx, "StageIndexes")
	defer span.End()

	db = db.WithContext(ctx)

	indexes := []int{}
	err := db.Model(&Question{}).
		Where("assessment_id = ?", assessmentID).
		Pluck("stage_index", &indexes).
		Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch stage indexes")
		return nil, fmt.Errorf("failed to fetch stage indexes: %w", err)
	}

	span.SetAttributes(attribute.Int("questions", len(indexes)))
	span.SetStatus(codes.Ok, "fetched stage indexes")
	return indexes, nil
}

// Loads every assessment of a job in the shape the cascade plans with
func CascadeStates(
	ctx context.Context,
	db *gorm.DB,
	jobID uuid.UUID,
) ([]lifecycle.AssessmentState, error) {
	ctx, span := tracer.Start(ctx, "CascadeStates")
	defer span.End()

	db = db.WithContext(ctx)

	var assessments []Assessment
	err := db.Where("job_id = ?", jobID).Order("created_at").Find(&assessments).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch assessments for job")
		return nil, fmt.Errorf("failed to fetch assessments for job: %w", err)
	}

	states := make([]lifecycle.AssessmentState, 0, len(assessments))
	for _, a := range assessments {
		indexes, err := StageIndexes(ctx, db, a.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch stage indexes")
			return nil, err
		}

		states = append(states, lifecycle.AssessmentState{
			ClosedAt:     PtrFromNull(a.ClosedAt),
			ID:           a.ID,
			Status:       a.Status,
			StageIndexes: indexes,
			DurationSecs: a.DurationSeconds,
		})
	}

	span.SetAttributes(attribute.Int("assessments", len(states)))
	span.SetStatus(codes.Ok, "loaded cascade states")
	return states, nil
}

// Applies one cascade change with a compare and swap on the current status. Returns
// whether the row changed.
func ApplyAssessmentChange(
	ctx context.Context,
	db *gorm.DB,
	change lifecycle.AssessmentChange,
	now time.Time,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "ApplyAssessmentChange")
	defer span.End()

	span.SetAttributes(
		attribute.String("assessment.id", change.ID.String()),
		attribute.String("from", string(change.From)),
		attribute.String("to", string(change.To)),
	)

	db = db.WithContext(ctx)

	updates := map[string]any{"status": change.To}
	switch change.To {
	case types.AssessmentStatusClosed:
		updates["closed_at"] = now
	case types.AssessmentStatusActive:
		updates["closed_at"] = nil
		if change.From == types.AssessmentStatusDraft {
			updates["published_at"] = now
		}
	}

	result := db.Model(&Assessment{}).
		Where("id = ?", change.ID).
		Where("status = ?", change.From).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to apply assessment change")
		return false, fmt.Errorf("failed to apply assessment change: %w", result.Error)
	}

	span.SetStatus(codes.Ok, "applied assessment change")
	return result.RowsAffected == 1, nil
}
