package models

import (
	"context"
	"reflect"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

// A model only reachable through the job its owner created
type OwnedModel interface {
	AssessmentAPIModel
	TableName() string
	OwnerScope(db *gorm.DB, ownerID uuid.UUID) *gorm.DB
}

// Gets an object by id when it belongs to ownerID. Anything else, including an object
// owned by someone else, is [gorm.ErrRecordNotFound].
func OwnedByID[T OwnedModel](
	ctx context.Context,
	db *gorm.DB,
	ownerID uuid.UUID,
	id uuid.UUID,
) (*T, error) {
	var data T

	ctx, span := tracer.Start(ctx, "OwnedByID")
	defer span.End()

	table := data.TableName()
	span.SetAttributes(
		attribute.String("id", id.String()),
		attribute.String("owner.id", ownerID.String()),
		attribute.String("type", reflect.TypeOf(data).String()),
	)

	db = db.WithContext(ctx)

	span.AddEvent("getting owned object by id")
	err := data.OwnerScope(db.Model(&data), ownerID).
		Select(table+".*").
		Where(table+".id = ?", id).
		First(&data).
		Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get owned object by id")
		return nil, err
	}

	span.SetStatus(codes.Ok, "found owned object")
	return &data, nil
}
