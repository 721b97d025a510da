package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	srverr "github.com/hirelens/assessment-api/cmd/server/internal/error"
	servermiddleware "github.com/hirelens/assessment-api/cmd/server/internal/middleware"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/response"
	"github.com/hirelens/assessment-api/internal/types"
)

// Reads a value the middleware stored under key. A missing or mistyped value is a
// wiring bug and becomes a 500.
func fromContext[T any](c echo.Context, span trace.Span, key string) (T, error) {
	v, ok := c.Get(key).(T)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("%s: %s", key, srverr.ErrTypeAssertMismatch))
		var zero T
		return zero, response.InternalServerError
	}
	return v, nil
}

func currentUser(c echo.Context, span trace.Span) (*models.User, error) {
	return fromContext[*models.User](c, span, servermiddleware.UserKey)
}

func requestTime(c echo.Context, span trace.Span) (time.Time, error) {
	return fromContext[time.Time](c, span, timeKey)
}

// Binds and validates the request body into dst
func bindAndValidate(c echo.Context, span trace.Span, dst any) error {
	span.AddEvent("parsing request body")
	if err := c.Bind(dst); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	span.AddEvent("validating request body")
	if err := c.Validate(dst); err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	return nil
}

// Converts a domain error for the response, recording it on the span
func domainError(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	if _, ok := types.KindOf(err); ok {
		span.SetStatus(codes.Ok, msg)
	} else {
		span.SetStatus(codes.Error, msg)
	}
	return response.DomainError(err)
}

func jobResponse(j *models.Job) types.JobResponse {
	return types.JobResponse{
		ID:             j.ID,
		Title:          j.Title,
		RawDescription: j.RawDescription,
		Status:         j.Status,
		CreatedAt:      j.CreatedAt,
		LastActivityAt: j.LastActivityAt,
	}
}

func schemaResponse(s *models.ParsedSchema) types.SchemaResponse {
	return types.SchemaResponse{
		ID:         s.ID,
		Schema:     s.ParsedJD(),
		Validation: s.Validation(),
		CreatedAt:  s.CreatedAt,
	}
}

func questionView(q *models.Question) types.QuestionView {
	return types.QuestionView{
		ID:              q.ID,
		StageIndex:      q.StageIndex,
		PositionInStage: q.PositionInStage,
		QuestionType:    q.QuestionType,
		PromptText:      q.PromptText,
		ScoringHint:     q.ScoringHint,
		InternalIntent:  q.InternalIntent,
		Options:         q.Options,
		CharLimit:       models.PtrFromNull(q.CharLimit),
	}
}

func candidateQuestion(q *models.Question) types.CandidateQuestion {
	return types.CandidateQuestion{
		ID:              q.ID,
		StageIndex:      q.StageIndex,
		PositionInStage: q.PositionInStage,
		QuestionType:    q.QuestionType,
		PromptText:      q.PromptText,
		Options:         types.StripCorrect(q.Options),
		CharLimit:       models.PtrFromNull(q.CharLimit),
	}
}

func candidateQuestions(questions []models.Question) []types.CandidateQuestion {
	out := make([]types.CandidateQuestion, len(questions))
	for i := range questions {
		out[i] = candidateQuestion(&questions[i])
	}
	return out
}

// Groups questions by stage. Every stage up to [types.MaxStageIndex] is listed, empty or not.
func stageViews(questions []models.Question) []types.StageView {
	stages := make([]types.StageView, types.MaxStageIndex)
	for i := range stages {
		stages[i] = types.StageView{StageIndex: i + 1, Questions: []types.QuestionView{}}
	}
	for i := range questions {
		q := &questions[i]
		if q.StageIndex < 1 || q.StageIndex > types.MaxStageIndex {
			continue
		}
		stages[q.StageIndex-1].Questions = append(stages[q.StageIndex-1].Questions, questionView(q))
	}
	return stages
}

func assessmentResponse(a *models.Assessment, questions []models.Question) types.AssessmentResponse {
	return types.AssessmentResponse{
		ID:              a.ID,
		JobID:           a.JobID,
		Status:          a.Status,
		DurationSeconds: a.DurationSeconds,
		SingleUseLinks:  a.SingleUseLinks,
		ActiveFrom:      models.PtrFromNull(a.ActiveFrom),
		ActiveUntil:     models.PtrFromNull(a.ActiveUntil),
		PublishedAt:     models.PtrFromNull(a.PublishedAt),
		ClosedAt:        models.PtrFromNull(a.ClosedAt),
		CreatedAt:       a.CreatedAt,
		Stages:          stageViews(questions),
	}
}

func answerView(a *models.Answer) types.AnswerView {
	return types.AnswerView{
		QuestionID:       a.QuestionID,
		AnswerText:       models.PtrFromNull(a.AnswerText),
		SelectedOptionID: models.PtrFromNull(a.SelectedOptionID),
		SubmittedAt:      a.SubmittedAt,
	}
}

func submissionSummary(t *models.TestInstance) types.SubmissionSummary {
	return types.SubmissionSummary{
		InstanceID:              t.ID,
		AssessmentID:            t.AssessmentID,
		CandidateName:           models.PtrFromNull(t.CandidateName),
		CandidateEmail:          models.PtrFromNull(t.CandidateEmail),
		StartedAt:               t.StartedAt,
		CompletedAt:             models.PtrFromNull(t.CompletedAt),
		TimeTakenSeconds:        models.PtrFromNull(t.TimeTakenSeconds),
		Status:                  t.Status,
		CurrentStage:            t.CurrentStage,
		ScoringStatus:           models.PtrFromNull(t.ScoringStatus),
		Recommendation:          models.PtrFromNull(t.Recommendation),
		HROverride:              models.PtrFromNull(t.HROverride),
		EffectiveRecommendation: t.EffectiveRecommendation(),
		OverallScore:            models.PtrFromNull(t.OverallScore),
	}
}
