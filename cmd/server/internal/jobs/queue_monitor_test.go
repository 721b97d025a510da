package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	sloggorm "github.com/orandin/slog-gorm"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/mock/gomock"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"

	mockdispatcher "github.com/hirelens/assessment-api/cmd/server/internal/jobs/mock"
	"github.com/hirelens/assessment-api/cmd/server/internal/migrations"
	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/cmd/server/internal/taskrunner"
	"github.com/hirelens/assessment-api/internal/audit"
	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/queue"
	mockqueue "github.com/hirelens/assessment-api/internal/queue/mock"
	"github.com/hirelens/assessment-api/internal/scoring"
	mockscorer "github.com/hirelens/assessment-api/internal/scoring/mock"
	"github.com/hirelens/assessment-api/internal/types"
	"github.com/hirelens/assessment-api/internal/upload"
	mockupload "github.com/hirelens/assessment-api/internal/upload/mock"
)

type ScoringTestSuite struct {
	suite.Suite

	pgContainer *postgres.PostgresContainer
	db          *gorm.DB
	tx          *gorm.DB
	subjective  *mockscorer.MockSubjectiveScorer
	store       *mockupload.MockStore
	dispatcher  *mockdispatcher.MockDispatcher
	recorder    *audit.Recorder
	scorer      *Scorer
	handler     *ResultsHandler

	now time.Time
}

func (s *ScoringTestSuite) SetupSuite() {
	ct, err := postgres.Run(s.T().Context(),
		"postgres:16.4-alpine",
		postgres.WithDatabase("assessmentapi"),
		postgres.WithUsername("assessmentapi"),
		postgres.WithPassword("assessmentapi"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	s.Require().NoError(err)
	s.pgContainer = ct

	connStr, err := s.pgContainer.ConnectionString(s.T().Context())
	s.Require().NoError(err)

	db, err := gorm.Open(gormpg.Open(connStr), &gorm.Config{
		Logger:         sloggorm.New(),
		TranslateError: true,
	})
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(migrations.Up(s.T().Context(), s.db))
}

func (s *ScoringTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.subjective = mockscorer.NewMockSubjectiveScorer(ctrl)
	s.store = mockupload.NewMockStore(ctrl)
	s.dispatcher = mockdispatcher.NewMockDispatcher(ctrl)
	s.tx = s.db.Begin()
	s.now = time.Now().UTC().Truncate(time.Millisecond)

	s.recorder = audit.NewRecorder(&models.AuditStore{DB: s.tx})
	s.scorer = NewScorer(s.tx, scoring.NewEngine(s.subjective), upload.NewArchiver(nil), s.recorder)
	s.scorer.now = func() time.Time { return s.now }
	s.handler = NewResultsHandler(s.scorer)
}

func (s *ScoringTestSuite) TearDownTest() {
	s.tx.Rollback()
}

func (s *ScoringTestSuite) TearDownSuite() {
	s.Require().NoError(testcontainers.TerminateContainer(s.pgContainer))
}

func TestScoringTestSuite(t *testing.T) {
	suite.Run(t, new(ScoringTestSuite))
}

// Seeds a job, an assessment with a full set of questions and one instance on it.
// Stages listed in subjective get short structured questions, the rest are mcq with
// option "a" marked correct.
func (s *ScoringTestSuite) seed(
	durationSecs int,
	subjective ...int,
) (*models.Job, *models.TestInstance, []models.Question) {
	user := &models.User{Email: fmt.Sprintf("%s@example.com", uuid.NewString()), PasswordHash: "x"}
	s.Require().NoError(s.tx.Create(user).Error)

	job := &models.Job{
		OwnerID:        user.ID,
		Title:          "Analyst",
		RawDescription: "Analyst wanted",
		LastActivityAt: s.now,
	}
	s.Require().NoError(s.tx.Create(job).Error)

	assessment := &models.Assessment{JobID: job.ID, DurationSeconds: durationSecs, SingleUseLinks: true}
	s.Require().NoError(s.tx.Create(assessment).Error)

	correct := true
	questions := []models.Question{}
	for st := 1; st <= types.StageCount; st++ {
		for pos := 1; pos <= types.QuestionsPerStage; pos++ {
			q := models.Question{
				AssessmentID:    assessment.ID,
				StageIndex:      st,
				PositionInStage: pos,
				QuestionType:    types.QuestionTypeMCQ,
				PromptText:      fmt.Sprintf("stage %d question %d", st, pos),
				InternalIntent:  types.IntentBaseline,
				Options: []types.Option{
					{ID: "a", Label: "right", IsCorrect: &correct},
					{ID: "b", Label: "wrong"},
				},
			}
			for _, sub := range subjective {
				if sub == st {
					q.QuestionType = types.QuestionTypeShortStructured
					q.Options = []types.Option{}
				}
			}
			questions = append(questions, q)
		}
	}
	s.Require().NoError(s.tx.Create(&questions).Error)

	instance := &models.TestInstance{AssessmentID: assessment.ID, StartedAt: s.now.Add(-10 * time.Minute)}
	s.Require().NoError(s.tx.Create(instance).Error)

	return job, instance, questions
}

// Answers every mcq with option id and every other question with text
func (s *ScoringTestSuite) answerAll(instance *models.TestInstance, questions []models.Question, option string) {
	answers := []models.Answer{}
	for _, q := range questions {
		a := models.Answer{InstanceID: instance.ID, QuestionID: q.ID, SubmittedAt: s.now}
		if q.QuestionType == types.QuestionTypeMCQ {
			a.SelectedOptionID = models.NewNullFromData(option)
		} else {
			a.AnswerText = models.NewNullFromData("because")
		}
		answers = append(answers, a)
	}
	s.Require().NoError(models.UpsertAnswers(s.T().Context(), s.tx, answers))
}

func (s *ScoringTestSuite) submit(job *models.Job, instance *models.TestInstance) {
	ok, err := models.SubmitInstance(s.T().Context(), s.tx, instance, job.ID, s.now)
	s.Require().NoError(err)
	s.Require().True(ok)
}

func (s *ScoringTestSuite) reload(id uuid.UUID) *models.TestInstance {
	got, err := models.ByID[models.TestInstance](s.T().Context(), s.tx, id)
	s.Require().NoError(err)
	return got
}

func (s *ScoringTestSuite) Test_ScoreInstance_Deterministic() {
	job, instance, questions := s.seed(1800)
	s.answerAll(instance, questions, "a")
	s.submit(job, instance)

	s.Require().NoError(s.scorer.ScoreInstance(s.T().Context(), instance.ID))

	got := s.reload(instance.ID)
	s.Equal(types.ScoringStatusScored, got.ScoringStatus.V)
	s.Equal(types.RecommendationAdvance, got.Recommendation.V)
	s.InDelta(10.0, got.OverallScore.V, 0.001)
	s.Len(got.ScoringBreakdown, types.StageCount)
	s.Equal(scoring.DeterministicRaw, got.RawScoringOutput)
	s.Equal(scoring.DeterministicExplanation, got.ScoringExplanation)
	s.True(got.ScoringStartedAt.Valid)

	exists, err := models.Exists[models.AuditLog](
		s.T().Context(), s.tx, "action = ?", string(audit.ActScoringCompleted),
	)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *ScoringTestSuite) Test_ScoreInstance_NotPending() {
	_, instance, _ := s.seed(1800)

	s.Require().NoError(s.scorer.ScoreInstance(s.T().Context(), instance.ID))

	got := s.reload(instance.ID)
	s.False(got.ScoringStatus.Valid)
	s.Equal(types.InstanceStatusInProgress, got.Status)
}

func (s *ScoringTestSuite) Test_ScoreInstance_Subjective() {
	job, instance, questions := s.seed(1800, 3)
	s.answerAll(instance, questions, "b")
	s.submit(job, instance)

	s.subjective.EXPECT().
		ScoreSubjectiveAnswers(gomock.Any(), []int{3}, gomock.Len(4), gomock.Len(4)).
		Return(&types.SubjectiveScores{
			Stages:      []types.StageScore{{StageIndex: 3, Score: 6, Feedback: "ok"}},
			Explanation: "mixed",
			Raw:         `{"stages":[]}`,
		}, nil)

	s.Require().NoError(s.scorer.ScoreInstance(s.T().Context(), instance.ID))

	got := s.reload(instance.ID)
	s.Equal(types.ScoringStatusScored, got.ScoringStatus.V)
	s.InDelta(2.0, got.OverallScore.V, 0.001)
	s.Equal(types.RecommendationReject, got.Recommendation.V)
	s.Equal("mixed", got.ScoringExplanation)
	s.Equal(`{"stages":[]}`, got.RawScoringOutput)
}

func (s *ScoringTestSuite) Test_ScoreInstance_SubjectiveFailure() {
	job, instance, questions := s.seed(1800, 2)
	s.answerAll(instance, questions, "a")
	s.submit(job, instance)

	s.subjective.EXPECT().
		ScoreSubjectiveAnswers(gomock.Any(), []int{2}, gomock.Any(), gomock.Any()).
		Return(nil, &scoring.Error{Err: errors.New("model unavailable"), Raw: "partial output"})

	s.Require().NoError(s.scorer.ScoreInstance(s.T().Context(), instance.ID))

	got := s.reload(instance.ID)
	s.Equal(types.ScoringStatusError, got.ScoringStatus.V)
	s.Equal("partial output", got.RawScoringOutput)
	s.Contains(got.ScoringError, "model unavailable")
	s.False(got.Recommendation.Valid)
}

func (s *ScoringTestSuite) Test_ScoreInstance_ArchivesTranscript() {
	s.scorer.archiver = upload.NewArchiver(s.store)

	job, instance, questions := s.seed(1800)
	s.answerAll(instance, questions, "a")
	s.submit(job, instance)

	name := upload.ObjectName(upload.TranscriptScoring, instance.ID)
	s.store.EXPECT().Put(gomock.Any(), name, gomock.Any()).Return(nil)
	s.store.EXPECT().Location().Return("transcripts")

	s.Require().NoError(s.scorer.ScoreInstance(s.T().Context(), instance.ID))
	s.Equal(types.ScoringStatusScored, s.reload(instance.ID).ScoringStatus.V)
}

func (s *ScoringTestSuite) Test_ScoreInstance_ArchiveFailureIgnored() {
	s.scorer.archiver = upload.NewArchiver(s.store)

	job, instance, questions := s.seed(1800)
	s.answerAll(instance, questions, "a")
	s.submit(job, instance)

	s.store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("bucket gone"))

	s.Require().NoError(s.scorer.ScoreInstance(s.T().Context(), instance.ID))
	s.Equal(types.ScoringStatusScored, s.reload(instance.ID).ScoringStatus.V)
}

func (s *ScoringTestSuite) Test_Handle_Started() {
	job, instance, _ := s.seed(1800)
	s.submit(job, instance)

	body, err := json.Marshal(types.NewScoringMsgStarted(instance.ID.String()))
	s.Require().NoError(err)

	s.Require().NoError(s.handler.Handle(s.T().Context(), body))
	s.Equal(types.ScoringStatusScoring, s.reload(instance.ID).ScoringStatus.V)

	// duplicate is a no-op
	s.Require().NoError(s.handler.Handle(s.T().Context(), body))
	s.Equal(types.ScoringStatusScoring, s.reload(instance.ID).ScoringStatus.V)
}

func (s *ScoringTestSuite) Test_Handle_Final() {
	job, instance, _ := s.seed(1800)
	s.submit(job, instance)

	result := &types.ScoringOutput{
		Stages: []types.StageScore{
			{StageIndex: 1, Score: 5},
			{StageIndex: 2, Score: 5},
			{StageIndex: 3, Score: 5},
		},
		OverallScore:   5,
		Recommendation: types.RecommendationHold,
		Explanation:    "average",
	}
	body, err := json.Marshal(types.NewScoringMsgFinal(instance.ID.String(), result, "raw", nil))
	s.Require().NoError(err)

	// final without a started message still passes through scoring
	s.Require().NoError(s.handler.Handle(s.T().Context(), body))

	got := s.reload(instance.ID)
	s.Equal(types.ScoringStatusScored, got.ScoringStatus.V)
	s.True(got.ScoringStartedAt.Valid)
	s.Equal(types.RecommendationHold, got.Recommendation.V)
	s.Equal(result.Stages, got.ScoringBreakdown)

	late, err := json.Marshal(types.NewScoringMsgFinal(instance.ID.String(), nil, "late", errors.New("boom")))
	s.Require().NoError(err)
	s.Require().NoError(s.handler.Handle(s.T().Context(), late))

	got = s.reload(instance.ID)
	s.Equal(types.ScoringStatusScored, got.ScoringStatus.V)
	s.Equal("raw", got.RawScoringOutput)
}

func (s *ScoringTestSuite) Test_Handle_FinalFailure() {
	job, instance, _ := s.seed(1800)
	s.submit(job, instance)

	started, err := json.Marshal(types.NewScoringMsgStarted(instance.ID.String()))
	s.Require().NoError(err)
	s.Require().NoError(s.handler.Handle(s.T().Context(), started))

	body, err := json.Marshal(types.NewScoringMsgFinal(instance.ID.String(), nil, "garbled", errors.New("bad json")))
	s.Require().NoError(err)
	s.Require().NoError(s.handler.Handle(s.T().Context(), body))

	got := s.reload(instance.ID)
	s.Equal(types.ScoringStatusError, got.ScoringStatus.V)
	s.Equal("garbled", got.RawScoringOutput)
	s.Equal("bad json", got.ScoringError)
}

func (s *ScoringTestSuite) Test_Handle_Poison() {
	tt := []struct {
		name string
		body []byte
	}{
		{name: "not json", body: []byte("{")},
		{name: "bad id", body: []byte(`{"MsgType":"scoring_started","instance_id":"nope"}`)},
		{
			name: "unknown type",
			body: []byte(fmt.Sprintf(`{"MsgType":"mystery","instance_id":%q}`, uuid.NewString())),
		},
	}

	for _, tc := range tt {
		s.Run(tc.name, func() {
			err := s.handler.Handle(s.T().Context(), tc.body)
			s.Require().Error(err)
			s.True(queue.IsPoison(err))
		})
	}
}

func (s *ScoringTestSuite) Test_QueueDispatcher() {
	ctrl := gomock.NewController(s.T())
	queuer := mockqueue.NewMockQueuer(ctrl)

	job, instance, questions := s.seed(1800)
	s.answerAll(instance, questions, "a")
	s.submit(job, instance)

	queuer.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, message any) error {
			msg, ok := message.(types.ScoringRequestMsg)
			s.Require().True(ok)
			s.Equal(instance.ID.String(), msg.InstanceID)
			s.Equal(types.MsgType(types.MsgTypeScoringRequest), msg.MsgType)
			s.Len(msg.Questions, types.QuestionCount)
			s.Len(msg.Answers, types.QuestionCount)
			s.NotNil(msg.Questions[0].Options[0].IsCorrect)
			return nil
		},
	)

	d, err := NewDispatcher(config.ScoringModeQueue, s.scorer, nil, queuer)
	s.Require().NoError(err)
	s.Require().NoError(d.Dispatch(s.T().Context(), instance.ID))

	// nothing moves until the worker reports back
	s.Equal(types.ScoringStatusPending, s.reload(instance.ID).ScoringStatus.V)
}

func (s *ScoringTestSuite) Test_NewDispatcher() {
	d, err := NewDispatcher(config.ScoringModeAwait, s.scorer, nil, nil)
	s.Require().NoError(err)
	s.IsType(&AwaitDispatcher{}, d)

	d, err = NewDispatcher(config.ScoringModeBackground, s.scorer, taskrunner.Create(), nil)
	s.Require().NoError(err)
	s.IsType(&BackgroundDispatcher{}, d)

	_, err = NewDispatcher(config.ScoringModeQueue, s.scorer, nil, nil)
	s.Require().Error(err)

	_, err = NewDispatcher("carrier-pigeon", s.scorer, nil, nil)
	s.Require().Error(err)
}

func (s *ScoringTestSuite) Test_BackgroundDispatcher() {
	job, instance, questions := s.seed(1800)
	s.answerAll(instance, questions, "a")
	s.submit(job, instance)

	runner := taskrunner.Create()
	s.Require().NoError(NewBackgroundDispatcher(s.scorer, runner).Dispatch(s.T().Context(), instance.ID))
	s.Require().NoError(runner.Shutdown(s.T().Context()))

	s.Equal(types.ScoringStatusScored, s.reload(instance.ID).ScoringStatus.V)
}

func (s *ScoringTestSuite) newSweeper() *Sweeper {
	sw := NewSweeper(s.tx, s.scorer, s.dispatcher, s.recorder, 15*time.Minute, 30*time.Second)
	sw.now = func() time.Time { return s.now }
	return sw
}

func (s *ScoringTestSuite) Test_Sweep_TimesOutStaleScoring() {
	job, instance, _ := s.seed(1800)
	s.submit(job, instance)

	ok, err := models.ClaimScoring(s.T().Context(), s.tx, instance.ID, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.newSweeper().Sweep(s.T().Context()))

	got := s.reload(instance.ID)
	s.Equal(types.ScoringStatusError, got.ScoringStatus.V)
	s.Equal(ErrScoringTimedOut.Error(), got.ScoringError)
}

func (s *ScoringTestSuite) Test_Sweep_LeavesFreshScoring() {
	job, instance, _ := s.seed(1800)
	s.submit(job, instance)

	ok, err := models.ClaimScoring(s.T().Context(), s.tx, instance.ID, s.now.Add(-time.Minute))
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.newSweeper().Sweep(s.T().Context()))
	s.Equal(types.ScoringStatusScoring, s.reload(instance.ID).ScoringStatus.V)
}

func (s *ScoringTestSuite) Test_Sweep_RedispatchesStalePending() {
	job, instance, _ := s.seed(1800)
	ok, err := models.SubmitInstance(s.T().Context(), s.tx, instance, job.ID, s.now.Add(-time.Hour))
	s.Require().NoError(err)
	s.Require().True(ok)

	s.dispatcher.EXPECT().Dispatch(gomock.Any(), instance.ID).Return(nil)

	s.Require().NoError(s.newSweeper().Sweep(s.T().Context()))
}

func (s *ScoringTestSuite) Test_Sweep_SubmitsExpired() {
	job, instance, _ := s.seed(600)

	ok, err := models.AdvanceStage(s.T().Context(), s.tx, instance.ID, 1, 2)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(
		s.tx.Model(&models.TestInstance{}).
			Where("id = ?", instance.ID).
			Update("started_at", s.now.Add(-time.Hour)).
			Error,
	)

	s.dispatcher.EXPECT().Dispatch(gomock.Any(), instance.ID).Return(nil)

	s.Require().NoError(s.newSweeper().Sweep(s.T().Context()))

	got := s.reload(instance.ID)
	s.Equal(types.InstanceStatusSubmitted, got.Status)
	s.Equal(types.ScoringStatusPending, got.ScoringStatus.V)
	s.Equal(2, got.CurrentStage, "forced submission keeps the current stage")
	s.Equal(3600, got.TimeTakenSeconds.V)

	exists, err := models.Exists[models.CandidateSubmission](s.T().Context(), s.tx, "job_id = ?", job.ID)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *ScoringTestSuite) Test_Sweep_LeavesRunningInstances() {
	_, instance, _ := s.seed(1800)

	s.Require().NoError(s.newSweeper().Sweep(s.T().Context()))
	s.Equal(types.InstanceStatusInProgress, s.reload(instance.ID).Status)
}

func (s *ScoringTestSuite) Test_Submit_DispatchFailureKeepsPending() {
	job, instance, _ := s.seed(1800)

	s.dispatcher.EXPECT().Dispatch(gomock.Any(), instance.ID).Return(errors.New("queue down"))

	ok, err := Submit(s.T().Context(), s.tx, s.dispatcher, s.recorder, instance, job.ID, s.now, "completed")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(types.ScoringStatusPending, s.reload(instance.ID).ScoringStatus.V)

	ok, err = Submit(s.T().Context(), s.tx, s.dispatcher, s.recorder, instance, job.ID, s.now, "completed")
	s.Require().NoError(err)
	s.False(ok)
}
