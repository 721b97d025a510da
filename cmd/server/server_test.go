package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/mock/gomock"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/cmd/server/internal/jobs"
	"github.com/hirelens/assessment-api/cmd/server/internal/middleware"
	"github.com/hirelens/assessment-api/cmd/server/internal/migrations"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/routes"
	routesv1 "github.com/hirelens/assessment-api/cmd/server/internal/routes/v1"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/llm"
	mockllm "github.com/hirelens/assessment-api/internal/llm/mock"
	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/otel"
	"github.com/hirelens/assessment-api/internal/scoring"
	"github.com/hirelens/assessment-api/internal/types"
	"github.com/hirelens/assessment-api/internal/upload"
)

const jwtSecret = "i am a very secure secret"

func testConfig() *config.Config {
	return &config.Config{
		Logging: &config.LoggingConfig{},
		Auth: &config.AuthConfig{
			JWTSecret:    jwtSecret,
			SessionTTL:   time.Hour,
			MagicLinkTTL: 15 * time.Minute,
		},
		Invite: &config.InviteConfig{DefaultExpiryHours: 168},
		Assessment: &config.AssessmentConfig{
			DefaultDurationSecs: 1800,
			MinDurationSecs:     600,
			DeadlineGraceSecs:   30,
		},
		Scoring: &config.ScoringConfig{
			Mode:          config.ScoringModeAwait,
			StaleAfter:    15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Archive:       &config.ArchiveConfig{Backend: config.ArchiveBackendNone},
		PublicBaseURL: "https://hire.example.com",
	}
}

type ServerTestSuite struct {
	suite.Suite

	config       *config.Config
	postgres     *postgres.PostgresContainer
	db           *gorm.DB
	tx           *gorm.DB
	llm          *mockllm.MockCollaborator
	otelShutdown func(context.Context) error
	server       *httptest.Server
}

func (s *ServerTestSuite) SetupSuite() {
	logger.InitSlog()

	s.config = testConfig()

	postgresContainer, err := postgres.Run(
		s.T().Context(),
		"postgres:16.4-alpine",
		postgres.WithDatabase("assessmentapi"),
		postgres.WithUsername("assessmentapi"),
		postgres.WithPassword("assessmentapi"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	s.Require().NoError(err, "failed to start postgres container")
	s.postgres = postgresContainer

	dsn, err := s.postgres.ConnectionString(s.T().Context())
	s.Require().NoError(err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{TranslateError: true})
	s.Require().NoError(err, "failed to connect to the database")
	s.db = db

	err = migrations.Up(s.T().Context(), db)
	s.Require().NoError(err, "failed to run up migrations")

	shutdownOTel, err := otel.SetupOTelSDK(s.T().Context(), "assessment-api-test", false)
	s.Require().NoError(err, "could not setup otel")
	s.otelShutdown = shutdownOTel
}

func (s *ServerTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.llm = mockllm.NewMockCollaborator(ctrl)

	s.tx = s.db.Begin()
	s.server = s.newServer(s.tx)
}

// Serves the api on db. Tests run against the per test transaction unless they need
// requests on separate connections.
func (s *ServerTestSuite) newServer(db *gorm.DB) *httptest.Server {
	archiver := upload.NewArchiver(nil)
	recorder := audit.NewRecorder(&models.AuditStore{DB: db})
	scorer := jobs.NewScorer(db, scoring.NewEngine(s.llm), archiver, recorder)

	v1Handler := routesv1.NewHandler(
		db,
		s.config,
		llm.Collaborator(s.llm),
		jobs.NewAwaitDispatcher(scorer),
		archiver,
		recorder,
	)
	middlewareHandler := middleware.Handler{DB: db, JWTSecret: []byte(jwtSecret)}

	e, err := routes.BuildEcho(logger.Logger)
	s.Require().NoError(err, "failed to construct router")

	v1Handler.AddRoutes(e, &middlewareHandler)

	return httptest.NewServer(e)
}

func (s *ServerTestSuite) TearDownTest() {
	s.Require().NoError(s.tx.Rollback().Error)
	s.server.Close()
}

func (s *ServerTestSuite) TearDownSuite() {
	s.Require().NoError(testcontainers.TerminateContainer(s.postgres))
	s.Require().NoError(s.otelShutdown(s.T().Context()))
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

type resp struct {
	body []byte
	code int
}

func (r *resp) decode(t *testing.T, dst any) {
	require.NoError(t, json.Unmarshal(r.body, dst), "failed to decode body: %s", string(r.body))
}

func (r *resp) message(t *testing.T) string {
	var body map[string]any
	r.decode(t, &body)
	msg, _ := body["message"].(string)
	return msg
}

// Sends body as JSON and authenticates with token when it is set
func (s *ServerTestSuite) do(method, path, token string, body any) *resp {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err, "failed to marshal request")
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(s.T().Context(), method, s.server.URL+path, reader)
	s.Require().NoError(err, "failed to build request")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "server-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	s.Require().NoError(err, "failed to send http request")
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	s.Require().NoError(err, "failed to read body")

	return &resp{body: b, code: res.StatusCode}
}

func (s *ServerTestSuite) register(email string) types.SessionResponse {
	r := s.do(http.MethodPost, "/v1/auth/register/", "", types.Credentials{
		Email:    email,
		Password: "correct horse battery staple",
	})
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))

	var session types.SessionResponse
	r.decode(s.T(), &session)
	return session
}

func (s *ServerTestSuite) createJob(token, description string) types.JobResponse {
	r := s.do(http.MethodPost, "/v1/jobs/", token, types.JobCreateRequest{Description: description})
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))

	var job types.JobResponse
	r.decode(s.T(), &job)
	return job
}

func parsedJD() types.ParsedJD {
	return types.ParsedJD{
		Function:        types.FunctionEngineering,
		RoleFamily:      "Backend Engineering",
		Seniority:       types.SeniorityMid,
		DecisionContext: "Owns services end to end",
		CoreCompetencies: []types.Competency{
			{Name: "API design", Weight: 0.4},
			{Name: "Databases", Weight: 0.3},
			{Name: "Operations", Weight: 0.3},
		},
		Tools:           []string{"Go", "Postgres"},
		Constraints:     []string{"On call rotation"},
		ConfidenceScore: 0.9,
	}
}

func correctMarker() *bool {
	b := true
	return &b
}

// Stages 1 and 2 are multiple choice with "a" correct, stage 3 is free text
func generatedAssessment() types.GeneratedAssessment {
	stages := []types.GeneratedStage{}
	for s := 1; s <= types.StageCount; s++ {
		stage := types.GeneratedStage{StageIndex: s}
		for i := range types.QuestionsPerStage {
			q := types.GeneratedQuestion{
				QuestionType:   types.QuestionTypeMCQ,
				PromptText:     fmt.Sprintf("Stage %d question %d", s, i+1),
				ScoringHint:    "pick a",
				InternalIntent: "knowledge",
				Options: []types.Option{
					{ID: "a", Label: "Right", IsCorrect: correctMarker()},
					{ID: "b", Label: "Wrong"},
				},
			}
			if s == types.StageCount {
				limit := 500
				q.QuestionType = types.QuestionTypeShortStructured
				q.Options = nil
				q.CharLimit = &limit
				q.ScoringHint = "looks for tradeoffs"
			}
			stage.Questions = append(stage.Questions, q)
		}
		stages = append(stages, stage)
	}

	return types.GeneratedAssessment{
		Stages: stages,
		Meta:   types.GeneratedAssessmentMeta{DurationSeconds: 1200},
	}
}

func (s *ServerTestSuite) expectDissection() {
	s.llm.EXPECT().DissectJobDescription(gomock.Any(), gomock.Any()).Return(&llm.Dissection{
		Raw:        `{"function":"Engineering"}`,
		Parsed:     parsedJD(),
		Validation: types.SchemaValidation{Valid: true, Errors: []string{}, Warnings: []string{}},
	}, nil).Times(1)
}

func (s *ServerTestSuite) expectGeneration() {
	s.llm.EXPECT().GenerateAssessment(gomock.Any(), gomock.Any()).Return(&llm.Generation{
		Raw:        `{"stages":[]}`,
		Assessment: generatedAssessment(),
		Validation: types.AssessmentValidation{Valid: true, Errors: []string{}},
	}, nil).Times(1)
}

// Creates, parses and generates a draft assessment for a new job
func (s *ServerTestSuite) draftAssessment(token string) (types.JobResponse, types.AssessmentResponse) {
	job := s.createJob(token, "Senior Go Engineer\nBuild and run our APIs.")

	s.expectDissection()
	r := s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/parse/", token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	s.expectGeneration()
	r = s.do(http.MethodPost, "/v1/jobs/"+job.ID.String()+"/assessments/generate/", token, nil)
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))

	var generated types.GenerateResponse
	r.decode(s.T(), &generated)
	return job, generated.Assessment
}

// Publishes a fresh assessment and issues an invite for it
func (s *ServerTestSuite) liveInvite(token string) (types.AssessmentResponse, types.InviteResponse) {
	_, assessment := s.draftAssessment(token)

	r := s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/publish/", token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	r = s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/invites/", token, types.InviteRequest{})
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))

	var inv types.InviteResponse
	r.decode(s.T(), &inv)
	return assessment, inv
}

func (s *ServerTestSuite) startTest(token string) types.StartResponse {
	name := "Ada"
	r := s.do(http.MethodPost, "/v1/invites/"+token+"/start/", "", types.StartRequest{CandidateName: &name})
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))

	var started types.StartResponse
	r.decode(s.T(), &started)
	return started
}
