package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/lifecycle"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/types"
	"github.com/hirelens/assessment-api/internal/upload"
)

var (
	errNotParsed     = types.StringError("Job description has not been parsed")
	errInvalidSchema = types.NewDomainError(
		types.KindValidation,
		"Parsed schema is invalid, fix the job description and parse it again",
	)
	errGenerateClosedJob = types.NewDomainError(
		types.KindConflict,
		"Cannot generate an assessment for a closed job",
	)
	errWindowOrder = types.NewDomainError(
		types.KindValidation,
		"active_from must be before active_until",
	)
)

// Drafts an assessment from the job's schema. An existing draft is replaced, a live one
// blocks generation.
func (h *Handler) GenerateAssessment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GenerateAssessment")
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

	if job.Status == types.JobStatusClosed {
		return domainError(span, errGenerateClosedJob, "job closed")
	}

	var schema models.ParsedSchema
	err = db.Where("job_id = ?", job.ID).First(&schema).Error
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "job not parsed yet")
			return echo.NewHTTPError(http.StatusUnprocessableEntity, errNotParsed)
		}
		span.SetStatus(codes.Error, "failed to fetch schema")
		return response.InternalServerError
	}
	if !schema.IsValid {
		return domainError(span, errInvalidSchema, "schema invalid")
	}

	// skip the model call when the outcome is already known
	live, err := models.Exists[models.Assessment](
		ctx,
		db,
		"job_id = ? AND status = ?",
		job.ID,
		types.AssessmentStatusActive,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check for live assessment")
		return response.InternalServerError
	}
	if live {
		return domainError(span, lifecycle.ErrLiveAssessment, "job has a live assessment")
	}

	parsed := schema.ParsedJD()
	span.AddEvent("generating assessment")
	generation, err := h.collaborator.GenerateAssessment(ctx, &parsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate assessment")
		logger.Logger.ErrorContext(ctx, "failed to generate assessment", "error", err, "job_id", job.ID)
		return response.UpstreamError
	}

	if !generation.Validation.Valid {
		span.SetStatus(codes.Ok, "generated assessment failed validation")
		logger.Logger.WarnContext(
			ctx,
			"generated assessment failed validation",
			"job_id", job.ID,
			"errors", generation.Validation.Errors,
		)
		return echo.NewHTTPError(
			http.StatusUnprocessableEntity,
			types.StringError(
				"Generated assessment failed validation: "+strings.Join(generation.Validation.Errors, "; "),
			),
		)
	}

	duration := generation.Assessment.Meta.DurationSeconds
	if duration <= 0 {
		duration = h.config.Assessment.DefaultDurationSecs
	}

	assessment := &models.Assessment{
		JobID:               job.ID,
		Status:              types.AssessmentStatusDraft,
		DurationSeconds:     duration,
		RawGenerationOutput: generation.Raw,
		SingleUseLinks:      true,
	}
	var questions []models.Question
	var replaced []string

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.LockByID[models.Job](ctx, tx, job.ID); err != nil {
			return err
		}

		var open []models.Assessment
		err := tx.Where("job_id = ? AND status <> ?", job.ID, types.AssessmentStatusClosed).
			Find(&open).
			Error
		if err != nil {
			return err
		}
		for _, a := range open {
			if a.Status == types.AssessmentStatusActive {
				return lifecycle.ErrLiveAssessment
			}
			replaced = append(replaced, a.ID.String())
			if err := tx.Delete(&models.Assessment{}, "id = ?", a.ID).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(assessment).Error; err != nil {
			return err
		}

		questions = models.QuestionsFromGenerated(assessment.ID, &generation.Assessment)
		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Job{}).Where("id = ?", job.ID).Update("last_activity_at", now).Error
	})
	if err != nil {
		return domainError(span, err, "failed to store assessment")
	}
	span.SetAttributes(
		attribute.String("assessment.id", assessment.ID.String()),
		attribute.Int("questions", len(questions)),
	)

	h.archiveTranscript(
		ctx,
		span,
		&user.ID,
		upload.TranscriptGeneration,
		assessment.ID,
		generation.Raw,
		generation.Assessment,
	)

	h.recorder.Record(ctx, &user.ID, audit.ActAssessmentGenerated, map[string]any{
		"job_id":           job.ID.String(),
		"assessment_id":    assessment.ID.String(),
		"questions":        len(questions),
		"duration_seconds": duration,
		"replaced":         replaced,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusCreated, types.GenerateResponse{
		Validation: generation.Validation,
		Assessment: assessmentResponse(assessment, questions),
	})
}

func (h *Handler) GetAssessment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetAssessment")
	defer span.End()

	db := h.DB.WithContext(ctx)

	assessment, err := fromContext[*models.Assessment](c, span, assessmentKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("assessment.id", assessment.ID.String()))

	questions, err := models.QuestionsForAssessment(ctx, db, assessment.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, assessmentResponse(assessment, questions))
}

func (h *Handler) UpdateAssessment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UpdateAssessment")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	assessment, err := fromContext[*models.Assessment](c, span, assessmentKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("assessment.id", assessment.ID.String()))

	var rdata types.AssessmentUpdateRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	if err := lifecycle.CheckUpdate(assessment.Status); err != nil {
		return domainError(span, err, "assessment closed")
	}

	updates := map[string]any{}

	activeFrom, touched := rdata.ActiveFrom.Merge(models.PtrFromNull(assessment.ActiveFrom))
	if touched {
		updates["active_from"] = models.NewNull(activeFrom)
	}
	activeUntil, touched := rdata.ActiveUntil.Merge(models.PtrFromNull(assessment.ActiveUntil))
	if touched {
		updates["active_until"] = models.NewNull(activeUntil)
	}
	if rdata.DurationSeconds != nil {
		if *rdata.DurationSeconds < h.config.Assessment.MinDurationSecs {
			return domainError(span, types.DomainErrorf(
				types.KindValidation,
				"Assessment duration must be at least %d seconds",
				h.config.Assessment.MinDurationSecs,
			), "duration too short")
		}
		updates["duration_seconds"] = *rdata.DurationSeconds
	}
	if rdata.SingleUseLinks != nil {
		updates["single_use_links"] = *rdata.SingleUseLinks
	}

	if len(updates) == 0 {
		return domainError(span, lifecycle.ErrNoFieldsToUpdate, "empty update")
	}
	if activeFrom != nil && activeUntil != nil && !activeFrom.Before(*activeUntil) {
		return domainError(span, errWindowOrder, "window out of order")
	}

	span.AddEvent("updating assessment")
	result := db.Model(&models.Assessment{}).
		Where("id = ?", assessment.ID).
		Where("status <> ?", types.AssessmentStatusClosed).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to update assessment")
		return response.InternalServerError
	}
	if result.RowsAffected == 0 {
		return domainError(span, lifecycle.ErrUpdateClosed, "closed concurrently")
	}

	updated, err := models.ByID[models.Assessment](ctx, db, assessment.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reload assessment")
		return response.InternalServerError
	}

	questions, err := models.QuestionsForAssessment(ctx, db, assessment.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return response.InternalServerError
	}

	fields := make([]string, 0, len(updates))
	for k := range updates {
		fields = append(fields, k)
	}
	h.recorder.Record(ctx, &user.ID, audit.ActAssessmentUpdated, map[string]any{
		"assessment_id": assessment.ID.String(),
		"fields":        fields,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, assessmentResponse(updated, questions))
}

// Publishes a draft. The owning job is made active along with it.
func (h *Handler) PublishAssessment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "PublishAssessment")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	assessment, err := fromContext[*models.Assessment](c, span, assessmentKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("assessment.id", assessment.ID.String()))

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	var rdata types.PublishRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	duration := assessment.DurationSeconds
	if rdata.DurationSeconds != nil {
		duration = *rdata.DurationSeconds
	}

	var jobFrom types.JobStatus
	err = db.Transaction(func(tx *gorm.DB) error {
		job, err := models.LockByID[models.Job](ctx, tx, assessment.JobID)
		if err != nil {
			return err
		}
		jobFrom = job.Status

		locked, err := models.LockByID[models.Assessment](ctx, tx, assessment.ID)
		if err != nil {
			return err
		}

		indexes, err := models.StageIndexes(ctx, tx, assessment.ID)
		if err != nil {
			return err
		}

		err = lifecycle.CheckPublish(locked.Status, indexes, duration, h.config.Assessment.MinDurationSecs)
		if err != nil {
			return err
		}

		live, err := models.Exists[models.Assessment](
			ctx,
			tx,
			"job_id = ? AND status = ? AND id <> ?",
			assessment.JobID,
			types.AssessmentStatusActive,
			assessment.ID,
		)
		if err != nil {
			return err
		}
		if live {
			return lifecycle.ErrLiveAssessment
		}

		err = tx.Model(&models.Assessment{}).
			Where("id = ?", assessment.ID).
			Updates(map[string]any{
				"status":           types.AssessmentStatusActive,
				"published_at":     now,
				"closed_at":        nil,
				"duration_seconds": duration,
			}).
			Error
		if err != nil {
			return err
		}

		jobUpdates := map[string]any{"last_activity_at": now}
		if job.Status != types.JobStatusActive {
			jobUpdates["status"] = types.JobStatusActive
		}
		return tx.Model(&models.Job{}).Where("id = ?", job.ID).Updates(jobUpdates).Error
	})
	if err != nil {
		return domainError(span, err, "failed to publish assessment")
	}

	h.recorder.Record(ctx, &user.ID, audit.ActAssessmentPublished, map[string]any{
		"assessment_id":    assessment.ID.String(),
		"job_id":           assessment.JobID.String(),
		"duration_seconds": duration,
	})
	if jobFrom != types.JobStatusActive {
		h.recorder.Record(ctx, &user.ID, audit.ActJobStatusChanged, map[string]any{
			"job_id": assessment.JobID.String(),
			"from":   jobFrom,
			"to":     types.JobStatusActive,
			"reason": "assessment_published",
		})
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.LifecycleResponse{
		Status:      types.AssessmentStatusActive,
		PublishedAt: &now,
	})
}

func (h *Handler) CloseAssessment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CloseAssessment")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	assessment, err := fromContext[*models.Assessment](c, span, assessmentKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("assessment.id", assessment.ID.String()))

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	if err := lifecycle.CheckClose(assessment.Status); err != nil {
		return domainError(span, err, "assessment not closable")
	}

	ok, err := models.ApplyAssessmentChange(ctx, db, lifecycle.AssessmentChange{
		ID:   assessment.ID,
		From: types.AssessmentStatusActive,
		To:   types.AssessmentStatusClosed,
	}, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to close assessment")
		return response.InternalServerError
	}
	if !ok {
		return domainError(span, lifecycle.ErrAlreadyClosed, "closed concurrently")
	}

	h.touchJob(ctx, assessment.JobID, now)
	h.recorder.Record(ctx, &user.ID, audit.ActAssessmentClosed, map[string]any{
		"assessment_id": assessment.ID.String(),
		"job_id":        assessment.JobID.String(),
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.LifecycleResponse{
		Status:      types.AssessmentStatusClosed,
		PublishedAt: models.PtrFromNull(assessment.PublishedAt),
		ClosedAt:    &now,
	})
}
