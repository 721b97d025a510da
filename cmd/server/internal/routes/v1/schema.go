package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/upload"
)

// Archives a model transcript. Failures are logged and never fail the request.
func (h *Handler) archiveTranscript(
	ctx context.Context,
	span trace.Span,
	actor *uuid.UUID,
	kind upload.TranscriptKind,
	id uuid.UUID,
	raw string,
	output any,
) {
	if !h.archiver.Enabled() {
		return
	}

	archived, err := h.archiver.Archive(ctx, kind, id, raw, output, nil)
	if err != nil {
		span.RecordError(err)
		logger.Logger.WarnContext(
			ctx,
			"failed to archive transcript",
			"error", err,
			"kind", kind,
			"id", id,
		)
		return
	}

	h.recorder.Record(ctx, actor, audit.ActTranscriptArchived, map[string]any{
		"kind":   kind,
		"id":     id.String(),
		"store":  archived.Store,
		"object": archived.Object,
		"sha256": archived.SHA256,
	})
}

func (h *Handler) touchJob(ctx context.Context, jobID uuid.UUID, now time.Time) {
	err := h.DB.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", jobID).
		Update("last_activity_at", now).
		Error
	if err != nil {
		logger.Logger.WarnContext(ctx, "failed to update job activity", "error", err, "job_id", jobID)
	}
}

// Dissects the job description into a hiring schema, replacing any earlier one
func (h *Handler) ParseJobDescription(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ParseJobDescription")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	job, err := fromContext[*models.Job](c, span, jobKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	span.AddEvent("dissecting job description")
	dissection, err := h.collaborator.DissectJobDescription(ctx, job.RawDescription)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to dissect job description")
		logger.Logger.ErrorContext(ctx, "failed to dissect job description", "error", err, "job_id", job.ID)
		return response.UpstreamError
	}

	schema := models.NewParsedSchema(job.ID, &dissection.Parsed, &dissection.Validation, dissection.Raw)
	err = db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("job_id = ?", job.ID).Delete(&models.ParsedSchema{}).Error
		if err != nil {
			return err
		}
		return tx.Create(&schema).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store schema")
		return response.InternalServerError
	}
	span.SetAttributes(
		attribute.String("schema.id", schema.ID.String()),
		attribute.Bool("schema.valid", schema.IsValid),
	)

	h.touchJob(ctx, job.ID, now)
	h.archiveTranscript(ctx, span, &user.ID, upload.TranscriptDissection, schema.ID, dissection.Raw, dissection.Parsed)

	h.recorder.Record(ctx, &user.ID, audit.ActSchemaParsed, map[string]any{
		"job_id":     job.ID.String(),
		"schema_id":  schema.ID.String(),
		"valid":      schema.IsValid,
		"errors":     schema.ValidationErrors,
		"confidence": schema.Confidence,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, schemaResponse(&schema))
}

func (h *Handler) GetSchema(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetSchema")
	defer span.End()

	db := h.DB.WithContext(ctx)

	job, err := fromContext[*models.Job](c, span, jobKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	var schema models.ParsedSchema
	err = db.Where("job_id = ?", job.ID).First(&schema).Error
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "job not parsed yet")
			return echo.NewHTTPError(http.StatusNotFound, errNotParsed)
		}
		span.SetStatus(codes.Error, "failed to fetch schema")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, schemaResponse(&schema))
}
