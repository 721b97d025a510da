package main

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"github.com/hirelens/assessment-api/internal/types"
)

func (s *ServerTestSuite) TestUnauthenticated() {
	for _, path := range []string{"/v1/me/", "/v1/dashboard/", "/v1/jobs/" + uuid.NewString() + "/"} {
		r := s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusUnauthorized, r.code, path)
		s.Contains(r.message(s.T()), "Unauthorized")

		r = s.do(http.MethodGet, path, "not-a-session", nil)
		s.Equal(http.StatusUnauthorized, r.code, path)
	}
}

func (s *ServerTestSuite) TestRegisterAndLogin() {
	session := s.register("Owner@Example.com")

	r := s.do(http.MethodGet, "/v1/me/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var me types.MeResponse
	r.decode(s.T(), &me)
	s.Equal(session.UserID, me.ID)
	s.Equal("owner@example.com", me.Email)

	r = s.do(http.MethodPost, "/v1/auth/login/", "", types.Credentials{
		Email:    "owner@example.com",
		Password: "correct horse battery staple",
	})
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	r = s.do(http.MethodPost, "/v1/auth/login/", "", types.Credentials{
		Email:    "owner@example.com",
		Password: "wrong password entirely",
	})
	s.Equal(http.StatusUnauthorized, r.code)
	s.Equal("Invalid email or password", r.message(s.T()))
}

func (s *ServerTestSuite) TestCreateJobDefaultsTitle() {
	session := s.register("titles@example.com")

	job := s.createJob(session.Token, "\n  Data Analyst  \nWork with dashboards.")
	s.Equal("Data Analyst", job.Title)
	s.Equal(types.JobStatusDraft, job.Status)

	r := s.do(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code)

	r = s.do(http.MethodPost, "/v1/jobs/", session.Token, map[string]any{"description": ""})
	s.Equal(http.StatusBadRequest, r.code)
}

func (s *ServerTestSuite) TestJobsAreScopedToOwner() {
	owner := s.register("owner@example.com")
	other := s.register("other@example.com")

	job := s.createJob(owner.Token, "Designer\nMake things pretty.")

	r := s.do(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/", other.Token, nil)
	s.Equal(http.StatusNotFound, r.code)

	r = s.do(http.MethodDelete, "/v1/jobs/"+job.ID.String()+"/", other.Token, nil)
	s.Equal(http.StatusNotFound, r.code)

	r = s.do(http.MethodGet, "/v1/dashboard/", other.Token, nil)
	s.Require().Equal(http.StatusOK, r.code)
	var dashboard []types.DashboardJob
	r.decode(s.T(), &dashboard)
	s.Empty(dashboard)
}

func (s *ServerTestSuite) TestParseAndDashboard() {
	session := s.register("parse@example.com")
	job := s.createJob(session.Token, "Go Engineer\nShip APIs.")

	r := s.do(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/schema/", session.Token, nil)
	s.Equal(http.StatusNotFound, r.code)

	s.expectDissection()
	r = s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/parse/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var schema types.SchemaResponse
	r.decode(s.T(), &schema)
	s.True(schema.Validation.Valid)
	s.Equal(types.FunctionEngineering, schema.Schema.Function)

	r = s.do(http.MethodGet, "/v1/dashboard/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code)
	var dashboard []types.DashboardJob
	r.decode(s.T(), &dashboard)
	s.Require().Len(dashboard, 1)
	s.Require().NotNil(dashboard[0].Schema)
	s.Equal("Backend Engineering", dashboard[0].Schema.RoleFamily)
	s.Nil(dashboard[0].LatestAssessmentID)
	s.Zero(dashboard[0].SubmissionCount)
}

func (s *ServerTestSuite) TestParseUpstreamFailure() {
	session := s.register("upstream@example.com")
	job := s.createJob(session.Token, "Go Engineer\nShip APIs.")

	s.llm.EXPECT().DissectJobDescription(gomock.Any(), gomock.Any()).Return(nil, errModelDown).Times(1)
	r := s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/parse/", session.Token, nil)
	s.Equal(http.StatusBadGateway, r.code)
}

func (s *ServerTestSuite) TestGenerateNeedsSchema() {
	session := s.register("noschema@example.com")
	job := s.createJob(session.Token, "Go Engineer\nShip APIs.")

	r := s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/assessments/generate/", session.Token, nil)
	s.Equal(http.StatusUnprocessableEntity, r.code)
}

func (s *ServerTestSuite) TestGenerateReplacesDraft() {
	session := s.register("drafts@example.com")
	job, first := s.draftAssessment(session.Token)

	s.Equal(types.AssessmentStatusDraft, first.Status)
	s.Equal(1200, first.DurationSeconds)
	s.Len(first.Stages, types.StageCount)

	s.expectGeneration()
	r := s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/assessments/generate/", session.Token, nil)
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))
	var second types.GenerateResponse
	r.decode(s.T(), &second)
	s.NotEqual(first.ID, second.Assessment.ID)

	r = s.do(http.MethodGet, "/v1/assessments/"+first.ID.String()+"/", session.Token, nil)
	s.Equal(http.StatusNotFound, r.code)
}

func (s *ServerTestSuite) TestPublishBlocksGeneration() {
	session := s.register("live@example.com")
	job, assessment := s.draftAssessment(session.Token)

	r := s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/publish/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var published types.LifecycleResponse
	r.decode(s.T(), &published)
	s.Equal(types.AssessmentStatusActive, published.Status)
	s.NotNil(published.PublishedAt)

	r = s.do(http.MethodGet, "/v1/jobs/"+job.ID.String()+"/", session.Token, nil)
	var reloaded types.JobResponse
	r.decode(s.T(), &reloaded)
	s.Equal(types.JobStatusActive, reloaded.Status)

	r = s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/publish/", session.Token, nil)
	s.Equal(http.StatusConflict, r.code)

	r = s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/assessments/generate/", session.Token, nil)
	s.Equal(http.StatusConflict, r.code)
	s.Equal("Job already has a published assessment", r.message(s.T()))
}

func (s *ServerTestSuite) TestEditAndReorderDraft() {
	session := s.register("editor@example.com")
	_, assessment := s.draftAssessment(session.Token)
	base := "/v1/assessments/" + assessment.ID.String()

	stage := assessment.Stages[0]
	q := stage.Questions[0]

	prompt := "Which index suits range scans?"
	r := s.do(http.MethodPatch, base+"/questions/"+q.ID.String()+"/", session.Token, types.QuestionEditRequest{
		PromptText: &prompt,
	})
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var edited types.QuestionView
	r.decode(s.T(), &edited)
	s.Equal(prompt, edited.PromptText)

	r = s.do(http.MethodPatch, base+"/questions/"+q.ID.String()+"/", session.Token, map[string]any{
		"options": []types.Option{{ID: "a", Label: "only"}},
	})
	s.Equal(http.StatusUnprocessableEntity, r.code)

	r = s.do(http.MethodPatch, base+"/questions/"+uuid.NewString()+"/", session.Token, types.QuestionEditRequest{
		PromptText: &prompt,
	})
	s.Equal(http.StatusNotFound, r.code)

	reversed := make([]uuid.UUID, len(stage.Questions))
	for i, sq := range stage.Questions {
		reversed[len(stage.Questions)-1-i] = sq.ID
	}
	r = s.do(http.MethodPost, base+"/reorder/", session.Token, types.ReorderRequest{
		StageIndex: stage.StageIndex,
		NewOrder:   reversed,
	})
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var view types.StageView
	r.decode(s.T(), &view)
	s.Require().Len(view.Questions, len(reversed))
	for i, id := range reversed {
		s.Equal(id, view.Questions[i].ID)
		s.Equal(i+1, view.Questions[i].PositionInStage)
	}

	r = s.do(http.MethodPost, base+"/reorder/", session.Token, types.ReorderRequest{
		StageIndex: stage.StageIndex,
		NewOrder:   reversed[1:],
	})
	s.Equal(http.StatusUnprocessableEntity, r.code)
}

func (s *ServerTestSuite) TestUpdateAssessmentWindow() {
	session := s.register("window@example.com")
	_, assessment := s.draftAssessment(session.Token)
	base := "/v1/assessments/" + assessment.ID.String() + "/"

	r := s.do(http.MethodPatch, base, session.Token, map[string]any{})
	s.Equal(http.StatusUnprocessableEntity, r.code)

	r = s.do(http.MethodPatch, base, session.Token, map[string]any{"duration_seconds": 60})
	s.Equal(http.StatusUnprocessableEntity, r.code)

	r = s.do(http.MethodPatch, base, session.Token, map[string]any{
		"active_from":  "2031-01-02T00:00:00Z",
		"active_until": "2031-01-01T00:00:00Z",
	})
	s.Equal(http.StatusUnprocessableEntity, r.code)

	r = s.do(http.MethodPatch, base, session.Token, map[string]any{
		"duration_seconds": 900,
		"single_use_links": false,
	})
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var updated types.AssessmentResponse
	r.decode(s.T(), &updated)
	s.Equal(900, updated.DurationSeconds)
	s.False(updated.SingleUseLinks)
}

func (s *ServerTestSuite) TestCloseJobCascades() {
	session := s.register("cascade@example.com")
	job, assessment := s.draftAssessment(session.Token)

	r := s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/publish/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	r = s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/status/", session.Token, types.JobStatusRequest{
		Status: types.JobStatusClosed,
	})
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var status types.JobStatusResponse
	r.decode(s.T(), &status)
	s.Equal(types.JobStatusClosed, status.Status)
	s.Contains(status.Cascaded, assessment.ID)

	r = s.do(http.MethodGet, "/v1/assessments/"+assessment.ID.String()+"/", session.Token, nil)
	var closed types.AssessmentResponse
	r.decode(s.T(), &closed)
	s.Equal(types.AssessmentStatusClosed, closed.Status)

	r = s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/assessments/generate/", session.Token, nil)
	s.Equal(http.StatusConflict, r.code)
}
