package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// An HR account. Email is stored lowercased.
type User struct {
	Email        string
	PasswordHash string // argon2id hash
	Model
	LastLoginAt datatypes.Null[time.Time]
}

func (User) TableName() string {
	return "users"
}

func (u User) GetID() uuid.UUID {
	return u.ID
}

// Single use login token sent in place of a password
type MagicLinkToken struct {
	ExpiresAt time.Time
	Email     string
	Token     string
	Model
	UsedAt datatypes.Null[time.Time]
}

func (MagicLinkToken) TableName() string {
	return "magic_link_tokens"
}

func (m MagicLinkToken) GetID() uuid.UUID {
	return m.ID
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Looks up a user by email, returning nil when there is none
func UserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error) {
	ctx, span := tracer.Start(ctx, "UserByEmail")
	defer span.End()

	db = db.WithContext(ctx)

	var user User
	err := db.Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "no such user")
			return nil, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query user by email")
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "found user")
	return &user, nil
}

// Marks a magic link token used if it is still redeemable at now. Returns nil when the
// token is unknown, expired or already used.
func RedeemMagicLink(
	ctx context.Context,
	db *gorm.DB,
	token string,
	now time.Time,
) (*MagicLinkToken, error) {
	ctx, span := tracer.Start(ctx, "RedeemMagicLink")
	defer span.End()

	db = db.WithContext(ctx)

	var redeemed []MagicLinkToken
	result := db.Model(&redeemed).
		Clauses(clause.Returning{}).
		Where("token = ?", token).
		Where("used_at IS NULL").
		Where("expires_at > ?", now).
		Update("used_at", now)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to redeem magic link")
		return nil, fmt.Errorf("failed to redeem magic link: %w", result.Error)
	}

	if result.RowsAffected == 0 || len(redeemed) == 0 {
		span.SetStatus(codes.Ok, "magic link not redeemable")
		return nil, nil
	}

	span.SetStatus(codes.Ok, "redeemed magic link")
	return &redeemed[0], nil
}
