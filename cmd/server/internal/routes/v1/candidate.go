package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/jobs"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/stage"
	"github.com/hirelens/assessment-api/internal/types"
)

const (
	reasonCompleted  = "completed"
	reasonEndedEarly = "ended_early"
	reasonExpired    = "expired"
)

var (
	errTimeUp = types.NewDomainError(
		types.KindConflict,
		"Time is up, the test has been submitted",
	)
	errStageMoved = types.NewDomainError(
		types.KindConflict,
		"Stage was already advanced, reload the test",
	)
)

// Loads what every candidate route needs: the instance, its assessment and the request time
func (h *Handler) candidateState(
	ctx context.Context,
	c echo.Context,
	span trace.Span,
) (*models.TestInstance, *models.Assessment, time.Time, error) {
	instance, err := fromContext[*models.TestInstance](c, span, instanceKey)
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	span.SetAttributes(attribute.String("instance.id", instance.ID.String()))

	now, err := requestTime(c, span)
	if err != nil {
		return nil, nil, time.Time{}, err
	}

	assessment, err := models.ByID[models.Assessment](ctx, h.DB, instance.AssessmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch assessment")
		return nil, nil, time.Time{}, response.InternalServerError
	}

	return instance, assessment, now, nil
}

// Force submits an in progress instance whose time ran out. Returns whether it had.
func (h *Handler) submitIfExpired(
	ctx context.Context,
	span trace.Span,
	instance *models.TestInstance,
	assessment *models.Assessment,
	now time.Time,
) (bool, error) {
	if instance.Status != types.InstanceStatusInProgress {
		return false, nil
	}

	if !stage.Expired(instance.StartedAt, assessment.DurationSeconds, h.config.Assessment.DeadlineGrace(), now) {
		return false, nil
	}

	span.AddEvent("time ran out, submitting")
	_, err := jobs.Submit(
		ctx,
		h.DB,
		h.dispatcher,
		h.recorder,
		instance,
		assessment.JobID,
		now,
		reasonExpired,
	)
	return true, err
}

func (h *Handler) StageQuestions(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "StageQuestions")
	defer span.End()

	db := h.DB.WithContext(ctx)

	instance, assessment, now, err := h.candidateState(ctx, c, span)
	if err != nil {
		return err
	}

	var rdata types.StageQuery
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	if instance.Status != types.InstanceStatusInProgress {
		return domainError(span, stage.ErrSubmitted, "already submitted")
	}

	expired, err := h.submitIfExpired(ctx, span, instance, assessment, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit expired instance")
		return response.InternalServerError
	}
	if expired {
		return domainError(span, errTimeUp, "time up")
	}

	requested := instance.CurrentStage
	if rdata.Stage != nil {
		requested = *rdata.Stage
	}
	span.SetAttributes(attribute.Int("stage", requested))

	if err := stage.CheckRead(instance.CurrentStage, requested); err != nil {
		return domainError(span, err, "stage not readable")
	}

	questions, err := models.QuestionsForStage(ctx, db, assessment.ID, requested)
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

	inStage := make(map[uuid.UUID]bool, len(questions))
	for _, q := range questions {
		inStage[q.ID] = true
	}
	views := []types.AnswerView{}
	for i := range answers {
		if inStage[answers[i].QuestionID] {
			views = append(views, answerView(&answers[i]))
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.StageQuestionsResponse{
		Stage:        requested,
		CurrentStage: instance.CurrentStage,
		Deadline:     stage.Deadline(instance.StartedAt, assessment.DurationSeconds),
		Questions:    candidateQuestions(questions),
		Answers:      views,
	})
}

// Saves answers for the current stage and optionally moves on. Finishing the last stage
// submits the test.
func (h *Handler) SubmitAnswers(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SubmitAnswers")
	defer span.End()

	db := h.DB.WithContext(ctx)

	instance, assessment, now, err := h.candidateState(ctx, c, span)
	if err != nil {
		return err
	}

	var rdata types.AnswerSubmissionRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int("answers", len(rdata.Answers)),
		attribute.Bool("advance", rdata.Advance),
	)

	expired, err := h.submitIfExpired(ctx, span, instance, assessment, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit expired instance")
		return response.InternalServerError
	}
	if expired {
		return domainError(span, errTimeUp, "late answers rejected")
	}

	current, err := models.QuestionsForStage(ctx, db, assessment.ID, instance.CurrentStage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return response.InternalServerError
	}

	checked := make([]stage.Answer, len(rdata.Answers))
	rows := make([]models.Answer, len(rdata.Answers))
	for i, a := range rdata.Answers {
		checked[i] = stage.Answer{
			QuestionID:       a.QuestionID,
			AnswerText:       a.AnswerText,
			SelectedOptionID: a.SelectedOptionID,
		}
		rows[i] = models.Answer{
			InstanceID:       instance.ID,
			QuestionID:       a.QuestionID,
			AnswerText:       models.NewNull(a.AnswerText),
			SelectedOptionID: models.NewNull(a.SelectedOptionID),
			SubmittedAt:      now,
		}
	}

	if err := stage.CheckAnswers(instance.Status, models.StageQuestions(current), checked); err != nil {
		return domainError(span, err, "answers rejected")
	}

	step := stage.Advance(instance.CurrentStage)
	err = db.Transaction(func(tx *gorm.DB) error {
		// holds off submission and stage moves until the answers are in
		locked, err := models.LockByID[models.TestInstance](ctx, tx, instance.ID)
		if err != nil {
			return err
		}
		if locked.Status == types.InstanceStatusInProgress && locked.CurrentStage != instance.CurrentStage {
			return errStageMoved
		}
		if err := stage.CheckAnswers(locked.Status, models.StageQuestions(current), checked); err != nil {
			return err
		}

		if err := models.UpsertAnswers(ctx, tx, rows); err != nil {
			return err
		}

		if !rdata.Advance || step.Complete {
			return nil
		}

		moved, err := models.AdvanceStage(ctx, tx, instance.ID, instance.CurrentStage, step.NextStage)
		if err != nil {
			return err
		}
		if !moved {
			return errStageMoved
		}
		return nil
	})
	if err != nil {
		return domainError(span, err, "failed to save answers")
	}

	out := types.AnswerSubmissionResponse{
		Status:       instance.Status,
		CurrentStage: instance.CurrentStage,
	}

	switch {
	case rdata.Advance && step.Complete:
		submitted, err := jobs.Submit(
			ctx,
			h.DB,
			h.dispatcher,
			h.recorder,
			instance,
			assessment.JobID,
			now,
			reasonCompleted,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to submit instance")
			return response.InternalServerError
		}
		if !submitted {
			return domainError(span, stage.ErrSubmitted, "submitted concurrently")
		}

		// await mode has already scored it
		reloaded, err := models.ByID[models.TestInstance](ctx, db, instance.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reload instance")
			return response.InternalServerError
		}

		out.Complete = true
		out.Status = reloaded.Status
		out.ScoringStatus = models.PtrFromNull(reloaded.ScoringStatus)
	case rdata.Advance:
		next, err := models.QuestionsForStage(ctx, db, assessment.ID, step.NextStage)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch questions")
			return response.InternalServerError
		}

		out.CurrentStage = step.NextStage
		out.NextStage = candidateQuestions(next)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) EndTest(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "EndTest")
	defer span.End()

	instance, assessment, now, err := h.candidateState(ctx, c, span)
	if err != nil {
		return err
	}

	if instance.Status != types.InstanceStatusInProgress {
		return domainError(span, stage.ErrSubmitted, "already submitted")
	}

	reason := reasonEndedEarly
	if stage.Expired(instance.StartedAt, assessment.DurationSeconds, h.config.Assessment.DeadlineGrace(), now) {
		reason = reasonExpired
	}

	submitted, err := jobs.Submit(
		ctx,
		h.DB,
		h.dispatcher,
		h.recorder,
		instance,
		assessment.JobID,
		now,
		reason,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit instance")
		return response.InternalServerError
	}
	if !submitted {
		return domainError(span, stage.ErrSubmitted, "submitted concurrently")
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.EndResponse{
		Status:           instance.Status,
		TimeTakenSeconds: instance.TimeTakenSeconds.V,
	})
}
