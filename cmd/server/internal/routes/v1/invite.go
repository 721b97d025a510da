package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/invite"
	"github.com/hirelens/assessment-api/internal/stage"
	"github.com/hirelens/assessment-api/internal/types"
)

const maxUserAgentLength = 200

var errInviteClosedAssessment = types.NewDomainError(
	types.KindConflict,
	"Cannot issue invites for a closed assessment",
)

func (h *Handler) IssueInvite(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "IssueInvite")
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

	var rdata types.InviteRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	if assessment.Status == types.AssessmentStatusClosed {
		return domainError(span, errInviteClosedAssessment, "assessment closed")
	}

	hours := h.config.Invite.DefaultExpiryHours
	if rdata.ExpiryHours != nil {
		hours = *rdata.ExpiryHours
	}

	singleUse := assessment.SingleUseLinks
	if rdata.SingleUse != nil {
		singleUse = *rdata.SingleUse
	}

	token, err := invite.NewToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate token")
		return response.InternalServerError
	}

	inv := &models.Invite{
		AssessmentID: assessment.ID,
		CreatedBy:    user.ID,
		Token:        token,
		ExpiresAt:    invite.ExpiresAt(now, hours),
		SingleUse:    singleUse,
	}

	span.AddEvent("inserting into database")
	if err := db.Create(inv).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert invite")
		return response.InternalServerError
	}
	span.SetAttributes(attribute.String("invite.id", inv.ID.String()))

	h.recorder.Record(ctx, &user.ID, audit.ActInviteGenerated, map[string]any{
		"assessment_id": assessment.ID.String(),
		"invite_id":     inv.ID.String(),
		"expires_at":    inv.ExpiresAt,
		"single_use":    inv.SingleUse,
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusCreated, types.InviteResponse{
		ID:        inv.ID,
		Token:     token,
		URL:       invite.URL(h.config.PublicBaseURL, token),
		ExpiresAt: inv.ExpiresAt,
		SingleUse: inv.SingleUse,
	})
}

// Malformed tokens are reported exactly like unknown ones
func validInviteToken(c echo.Context, token string) bool {
	return c.Validate(&types.InviteToken{Token: token}) == nil
}

func (h *Handler) VerifyInvite(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "VerifyInvite")
	defer span.End()

	db := h.DB.WithContext(ctx)

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	token := c.QueryParam("token")
	if !validInviteToken(c, token) {
		return domainError(span, invite.ErrInvalid, "malformed token")
	}

	inv, assessment, err := models.InviteByToken(ctx, db, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch invite")
		return response.InternalServerError
	}

	var state *invite.State
	if inv != nil {
		state = assessment.InviteState(inv)
		span.SetAttributes(attribute.String("invite.id", inv.ID.String()))
	}
	if err := invite.Check(state, now); err != nil {
		return domainError(span, err, "invite not redeemable")
	}

	job, err := models.ByID[models.Job](ctx, db, assessment.JobID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch job")
		return response.InternalServerError
	}

	indexes, err := models.StageIndexes(ctx, db, assessment.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch stage indexes")
		return response.InternalServerError
	}
	stages := map[int]bool{}
	for _, i := range indexes {
		stages[i] = true
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.InviteVerifyResponse{
		Valid: true,
		Assessment: types.InviteAssessmentSummary{
			ID:              assessment.ID,
			JobTitle:        job.Title,
			DurationSeconds: assessment.DurationSeconds,
			ActiveUntil:     models.PtrFromNull(assessment.ActiveUntil),
			StageCount:      len(stages),
			QuestionCount:   len(indexes),
		},
	})
}

// Redeems an invite and opens a test instance on stage 1
func (h *Handler) StartTest(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "StartTest")
	defer span.End()

	db := h.DB.WithContext(ctx)

	now, err := requestTime(c, span)
	if err != nil {
		return err
	}

	token := c.Param("token")
	if !validInviteToken(c, token) {
		return domainError(span, invite.ErrInvalid, "malformed token")
	}

	var rdata types.StartRequest
	if err := bindAndValidate(c, span, &rdata); err != nil {
		return err
	}

	userAgent := c.Request().UserAgent()
	if len([]rune(userAgent)) > maxUserAgentLength {
		userAgent = string([]rune(userAgent)[:maxUserAgentLength])
	}

	var name, email *string
	if rdata.CandidateName != nil && strings.TrimSpace(*rdata.CandidateName) != "" {
		n := strings.TrimSpace(*rdata.CandidateName)
		name = &n
	}
	if rdata.CandidateEmail != nil && strings.TrimSpace(*rdata.CandidateEmail) != "" {
		e := models.NormalizeEmail(*rdata.CandidateEmail)
		email = &e
	}

	var instance models.TestInstance
	var assessment *models.Assessment
	err = db.Transaction(func(tx *gorm.DB) error {
		inv, a, err := models.InviteByToken(ctx, tx, token)
		if err != nil {
			return err
		}

		var state *invite.State
		if inv != nil {
			state = a.InviteState(inv)
		}
		if err := invite.Check(state, now); err != nil {
			return err
		}
		assessment = a

		if inv.SingleUse {
			consumed, err := models.ConsumeInvite(ctx, tx, inv.ID, now)
			if err != nil {
				return err
			}
			if !consumed {
				return invite.ErrAlreadyUsed
			}
		}

		instance = models.TestInstance{
			AssessmentID:   a.ID,
			InviteID:       models.NewNullFromData(inv.ID),
			CandidateName:  models.NewNull(name),
			CandidateEmail: models.NewNull(email),
			StartedAt:      now,
			Status:         types.InstanceStatusInProgress,
			CurrentStage:   1,
			SessionMeta:    map[string]string{"user_agent": userAgent},
		}
		return tx.Create(&instance).Error
	})
	if err != nil {
		return domainError(span, err, "failed to start test")
	}
	span.SetAttributes(attribute.String("instance.id", instance.ID.String()))

	questions, err := models.QuestionsForStage(ctx, db, assessment.ID, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return response.InternalServerError
	}

	h.recorder.Record(ctx, nil, audit.ActTestStarted, map[string]any{
		"instance_id":   instance.ID.String(),
		"assessment_id": assessment.ID.String(),
		"invite_id":     instance.InviteID.V.String(),
	})

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusCreated, types.StartResponse{
		InstanceID:      instance.ID,
		CurrentStage:    instance.CurrentStage,
		DurationSeconds: assessment.DurationSeconds,
		Deadline:        stage.Deadline(instance.StartedAt, assessment.DurationSeconds),
		Questions:       candidateQuestions(questions),
	})
}
