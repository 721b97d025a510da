package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Invite struct {
	ExpiresAt time.Time
	Token     string
	Model
	UsedAt       datatypes.Null[time.Time]
	AssessmentID uuid.UUID
	CreatedBy    uuid.UUID
	SingleUse    bool
}

func (Invite) TableName() string {
	return "invites"
}

func (i Invite) GetID() uuid.UUID {
	return i.ID
}

// Looks up an invite and its assessment by token. Both are nil when the token is unknown.
func InviteByToken(ctx context.Context, db *gorm.DB, token string) (*Invite, *Assessment, error) {
	ctx, span := tracer.Start(ctx, "InviteByToken")
	defer span.End()

	db = db.WithContext(ctx)

	var inv Invite
	err := db.Where("token = ?", token).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "no such invite")
			return nil, nil, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query invite")
		return nil, nil, fmt.Errorf("failed to query invite: %w", err)
	}

	assessment, err := ByID[Assessment](ctx, db, inv.AssessmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query assessment for invite")
		return nil, nil, fmt.Errorf("failed to query assessment for invite: %w", err)
	}

	span.SetStatus(codes.Ok, "found invite")
	return &inv, assessment, nil
}

// Marks a single use invite consumed. Only one caller ever wins, the rest get false.
func ConsumeInvite(ctx context.Context, db *gorm.DB, inviteID uuid.UUID, now time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "ConsumeInvite")
	defer span.End()

	db = db.WithContext(ctx)

	result := db.Model(&Invite{}).
		Where("id = ?", inviteID).
		Where("used_at IS NULL").
		Update("used_at", now)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to consume invite")
		return false, fmt.Errorf("failed to consume invite: %w", result.Error)
	}

	span.SetStatus(codes.Ok, "attempted to consume invite")
	return result.RowsAffected == 1, nil
}
