package v1

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/lifecycle"
	"github.com/hirelens/assessment-api/internal/types"
)

var errUnknownQuestionType = types.NewDomainError(types.KindValidation, "Unknown question type")

// Checks that a question of type qt can carry the given options
func checkOptions(qt types.QuestionType, options []types.Option) error {
	if !qt.HasOptions() {
		return nil
	}

	if len(options) < 2 {
		return types.DomainErrorf(types.KindValidation, "%s questions need at least two options", qt)
	}

	seen := make(map[string]bool, len(options))
	for _, o := range options {
		if seen[o.ID] {
			return types.DomainErrorf(types.KindValidation, "Option id %q appears more than once", o.ID)
		}
		seen[o.ID] = true
	}

	if qt == types.QuestionTypeMCQ {
		if _, ok := types.CorrectOptionID(options); !ok {
			return types.NewDomainError(types.KindValidation, "mcq questions need an option marked correct")
		}
	}

	return nil
}

func (h *Handler) EditQuestion(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "EditQuestion")
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

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "bad question id")
		return response.NotFoundError
	}
	span.SetAttributes(
		attribute.String("assessment.id", assessment.ID.String()),
		attribute.String("question.id", questionID.String()),
	)

	var rdata types.QuestionEditRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	var question models.Question
	err = db.Where("id = ? AND assessment_id = ?", questionID, assessment.ID).First(&question).Error
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "no such question")
			return response.NotFoundError
		}
		span.SetStatus(codes.Error, "failed to fetch question")
		return response.InternalServerError
	}

	updates := map[string]any{}
	if rdata.QuestionType != nil {
		if !rdata.QuestionType.Valid() {
			return domainError(span, errUnknownQuestionType, "bad question type")
		}
		question.QuestionType = *rdata.QuestionType
		updates["question_type"] = question.QuestionType
	}
	if rdata.PromptText != nil {
		question.PromptText = *rdata.PromptText
		updates["prompt_text"] = question.PromptText
	}
	if rdata.ScoringHint != nil {
		question.ScoringHint = *rdata.ScoringHint
		updates["scoring_hint"] = question.ScoringHint
	}
	if rdata.Options != nil {
		question.Options = *rdata.Options
	}
	if limit, touched := rdata.CharLimit.Merge(models.PtrFromNull(question.CharLimit)); touched {
		if limit != nil && *limit <= 0 {
			return domainError(span, types.NewDomainError(
				types.KindValidation,
				"char_limit must be positive",
			), "bad char limit")
		}
		question.CharLimit = models.NewNull(limit)
		updates["char_limit"] = question.CharLimit
	}

	if len(updates) == 0 && rdata.Options == nil {
		return domainError(span, lifecycle.ErrNoFieldsToUpdate, "empty update")
	}

	if !question.QuestionType.HasOptions() {
		question.Options = []types.Option{}
	}
	if err := checkOptions(question.QuestionType, question.Options); err != nil {
		return domainError(span, err, "bad options")
	}

	span.AddEvent("updating question")
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockByID[models.Assessment](ctx, tx, assessment.ID)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckEdit(locked.Status); err != nil {
			return err
		}

		return tx.Model(&question).
			Select("question_type", "prompt_text", "scoring_hint", "options", "char_limit").
			Updates(&question).
			Error
	})
	if err != nil {
		return domainError(span, err, "failed to update question")
	}

	fields := make([]string, 0, len(updates)+1)
	for k := range updates {
		fields = append(fields, k)
	}
	if rdata.Options != nil {
		fields = append(fields, "options")
	}
	h.recorder.Record(ctx, &user.ID, audit.ActQuestionEdited, map[string]any{
		"assessment_id": assessment.ID.String(),
		"question_id":   question.ID.String(),
		"fields":        fields,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, questionView(&question))
}

// Rewrites the positions of one stage of a draft in the requested order
func (h *Handler) ReorderStage(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ReorderStage")
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

	var rdata types.ReorderRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("assessment.id", assessment.ID.String()),
		attribute.Int("stage", rdata.StageIndex),
	)

	var questions []models.Question
	err = db.Transaction(func(tx *gorm.DB) error {
		locked, err := models.LockByID[models.Assessment](ctx, tx, assessment.ID)
		if err != nil {
			return err
		}

		current, err := models.QuestionsForStage(ctx, tx, assessment.ID, rdata.StageIndex)
		if err != nil {
			return err
		}

		existing := make([]uuid.UUID, len(current))
		for i, q := range current {
			existing[i] = q.ID
		}

		if err := lifecycle.CheckReorder(locked.Status, rdata.StageIndex, existing, rdata.NewOrder); err != nil {
			return err
		}

		// the position constraint is deferred until commit
		for i, id := range rdata.NewOrder {
			err := tx.Model(&models.Question{}).
				Where("id = ?", id).
				Update("position_in_stage", i+1).
				Error
			if err != nil {
				return err
			}
		}

		questions, err = models.QuestionsForStage(ctx, tx, assessment.ID, rdata.StageIndex)
		return err
	})
	if err != nil {
		return domainError(span, err, "failed to reorder stage")
	}

	h.recorder.Record(ctx, &user.ID, audit.ActAssessmentReordered, map[string]any{
		"assessment_id": assessment.ID.String(),
		"stage_index":   rdata.StageIndex,
		"new_order":     rdata.NewOrder,
	})

	view := types.StageView{StageIndex: rdata.StageIndex, Questions: make([]types.QuestionView, len(questions))}
	for i := range questions {
		view.Questions[i] = questionView(&questions[i])
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, view)
}
