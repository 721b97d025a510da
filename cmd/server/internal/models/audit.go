package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/internal/audit"
)

// Append only, rows are never updated
type AuditLog struct {
	CreatedAt time.Time
	Action    string
	Payload   datatypes.JSON
	ActorID   datatypes.Null[uuid.UUID]
	ID        uuid.UUID `gorm:"primaryKey;default:uuid_generate_v7()"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a AuditLog) GetID() uuid.UUID {
	return a.ID
}

// Persists audit entries to the audit_logs table
type AuditStore struct {
	DB *gorm.DB
}

var _ audit.Sink = (*AuditStore)(nil)

func (s *AuditStore) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	ctx, span := tracer.Start(ctx, "AuditStore.AppendAudit")
	defer span.End()

	span.SetAttributes(attribute.String("action", string(entry.Action)))

	payload, err := jsonColumn(entry.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode audit payload")
		return err
	}

	row := AuditLog{
		CreatedAt: time.UnixMilli(int64(entry.Timestamp)).UTC(),
		Action:    string(entry.Action),
		Payload:   payload,
		ActorID:   NewNull(entry.ActorID),
	}

	err = s.DB.WithContext(ctx).Create(&row).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert audit log")
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	span.SetStatus(codes.Ok, "appended audit log")
	return nil
}

func jsonColumn(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	return datatypes.JSON(b), nil
}
