package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/types"
	"github.com/hirelens/assessment-api/internal/upload"
)

const transcriptURLTTL = 15 * time.Minute

var (
	errNotSubmitted = types.NewDomainError(
		types.KindConflict,
		"Test has not been submitted yet",
	)
	errNotRescorable = types.NewDomainError(
		types.KindConflict,
		"Scoring is still pending or in progress",
	)
)

// Submitted instances across every assessment of the job, newest first
func (h *Handler) JobResults(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "JobResults")
	defer span.End()

	db := h.DB.WithContext(ctx)

	job, err := fromContext[*models.Job](c, span, jobKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	var instances []models.TestInstance
	err = db.Joins("JOIN assessments ON assessments.id = test_instances.assessment_id").
		Where("assessments.job_id = ?", job.ID).
		Where("test_instances.status = ?", types.InstanceStatusSubmitted).
		Order("test_instances.completed_at DESC").
		Find(&instances).
		Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch submissions")
		return response.InternalServerError
	}

	out := make([]types.SubmissionSummary, len(instances))
	for i := range instances {
		out[i] = submissionSummary(&instances[i])
	}

	span.SetAttributes(attribute.Int("submissions", len(out)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetSubmission(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetSubmission")
	defer span.End()

	db := h.DB.WithContext(ctx)

	instance, err := fromContext[*models.TestInstance](c, span, instanceKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("instance.id", instance.ID.String()))

	questions, err := models.QuestionsForAssessment(ctx, db, instance.AssessmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return response.InternalServerError
	}

	answers, err := models.AnswersForInstance(ctx, db, instance.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch answers")
		return response.InternalServerError
	}

	answerFor := make(map[uuid.UUID]*models.Answer, len(answers))
	for i := range answers {
		answerFor[answers[i].QuestionID] = &answers[i]
	}

	stages := []types.SubmissionStage{}
	for i := range questions {
		q := &questions[i]
		if len(stages) == 0 || stages[len(stages)-1].StageIndex != q.StageIndex {
			stages = append(stages, types.SubmissionStage{
				StageIndex: q.StageIndex,
				Questions:  []types.AnsweredQuestion{},
			})
		}

		entry := types.AnsweredQuestion{Question: questionView(q)}
		if a, ok := answerFor[q.ID]; ok {
			view := answerView(a)
			entry.Answer = &view
		}

		last := &stages[len(stages)-1]
		last.Questions = append(last.Questions, entry)
	}

	transcriptURL, err := h.archiver.PresignedURL(ctx, upload.TranscriptScoring, instance.ID, transcriptURLTTL)
	if err != nil {
		span.RecordError(err)
		logger.Logger.WarnContext(
			ctx,
			"failed to presign scoring transcript",
			"error", err,
			"instance_id", instance.ID,
		)
		transcriptURL = ""
	}

	breakdown := instance.ScoringBreakdown
	if breakdown == nil {
		breakdown = []types.StageScore{}
	}
	meta := instance.SessionMeta
	if meta == nil {
		meta = map[string]string{}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.SubmissionDetail{
		SubmissionSummary:  submissionSummary(instance),
		SessionMeta:        meta,
		ScoringExplanation: instance.ScoringExplanation,
		RawScoringOutput:   instance.RawScoringOutput,
		ScoringError:       instance.ScoringError,
		TranscriptURL:      transcriptURL,
		ScoringBreakdown:   breakdown,
		Stages:             stages,
	})
}

// Records the HR decision. The computed recommendation is left untouched.
func (h *Handler) OverrideRecommendation(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "OverrideRecommendation")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	instance, err := fromContext[*models.TestInstance](c, span, instanceKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("instance.id", instance.ID.String()))

	var rdata types.OverrideRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	result := db.Model(&models.TestInstance{}).
		Where("id = ?", instance.ID).
		Where("status = ?", types.InstanceStatusSubmitted).
		Update("hr_override", rdata.Recommendation)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to store override")
		return response.InternalServerError
	}
	if result.RowsAffected == 0 {
		return domainError(span, errNotSubmitted, "not submitted")
	}

	previous := models.PtrFromNull(instance.HROverride)
	instance.HROverride = models.NewNullFromData(rdata.Recommendation)

	h.recorder.Record(ctx, &user.ID, audit.ActSubmissionOverride, map[string]any{
		"instance_id":    instance.ID.String(),
		"previous":       previous,
		"recommendation": rdata.Recommendation,
		"computed":       models.PtrFromNull(instance.Recommendation),
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, submissionSummary(instance))
}

// Puts a scored or failed submission back through scoring
func (h *Handler) Rescore(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Rescore")
	defer span.End()

	db := h.DB.WithContext(ctx)

	user, err := currentUser(c, span)
	if err != nil {
		return err
	}

	instance, err := fromContext[*models.TestInstance](c, span, instanceKey)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("instance.id", instance.ID.String()))

	if instance.Status != types.InstanceStatusSubmitted {
		return domainError(span, errNotSubmitted, "not submitted")
	}

	reset, err := models.ResetScoring(ctx, db, instance.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reset scoring")
		return response.InternalServerError
	}
	if !reset {
		return domainError(span, errNotRescorable, "scoring in flight")
	}

	h.recorder.Record(ctx, &user.ID, audit.ActSubmissionRescore, map[string]any{
		"instance_id": instance.ID.String(),
		"previous":    models.PtrFromNull(instance.ScoringStatus),
	})

	if err := h.dispatcher.Dispatch(ctx, instance.ID); err != nil {
		span.RecordError(err)
		logger.Logger.WarnContext(ctx, "failed to dispatch rescore", "error", err, "instance_id", instance.ID)
	}

	reloaded, err := models.ByID[models.TestInstance](ctx, db, instance.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reload instance")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusAccepted, submissionSummary(reloaded))
}
