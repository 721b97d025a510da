package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/internal/types"
)

const timeUpMessage = "Time is up, the test has been submitted"

var errModelDown = errors.New("model unavailable")

func (s *ServerTestSuite) expectSubjective(score float64) {
	s.llm.EXPECT().
		ScoreSubjectiveAnswers(gomock.Any(), []int{types.StageCount}, gomock.Any(), gomock.Any()).
		Return(&types.SubjectiveScores{
			Explanation: "Reasoned answers",
			Raw:         `{"stages":[]}`,
			Stages: []types.StageScore{
				{StageIndex: types.StageCount, Score: score, Feedback: "clear tradeoffs"},
			},
		}, nil).
		Times(1)
}

func answersFor(questions []types.CandidateQuestion) []types.AnswerInput {
	answers := make([]types.AnswerInput, len(questions))
	for i, q := range questions {
		answers[i] = types.AnswerInput{QuestionID: q.ID}
		if q.QuestionType.HasOptions() {
			selected := "a"
			answers[i].SelectedOptionID = &selected
		} else {
			text := fmt.Sprintf("answer %d", i+1)
			answers[i].AnswerText = &text
		}
	}
	return answers
}

func (s *ServerTestSuite) submit(instance string, answers []types.AnswerInput, advance bool) *resp {
	return s.do(http.MethodPost, "/v1/test/"+instance+"/answers/", "", types.AnswerSubmissionRequest{
		Answers: answers,
		Advance: advance,
	})
}

// Returns the candidate's saved answers for the current stage keyed by question
func (s *ServerTestSuite) savedAnswers(instance string) map[uuid.UUID]types.AnswerView {
	r := s.do(http.MethodGet, "/v1/test/"+instance+"/questions/", "", nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	var current types.StageQuestionsResponse
	r.decode(s.T(), &current)

	saved := make(map[uuid.UUID]types.AnswerView, len(current.Answers))
	for _, a := range current.Answers {
		saved[a.QuestionID] = a
	}
	return saved
}

// Returns what HR sees stored for one question of a submission, nil when unanswered
func (s *ServerTestSuite) storedAnswer(token, instance string, questionID uuid.UUID) *types.AnswerView {
	r := s.do(http.MethodGet, "/v1/submissions/"+instance+"/", token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	var detail types.SubmissionDetail
	r.decode(s.T(), &detail)
	for _, stage := range detail.Stages {
		for _, q := range stage.Questions {
			if q.Question.ID == questionID {
				return q.Answer
			}
		}
	}
	s.FailNow("question missing from submission", questionID.String())
	return nil
}

// Rewrites every answer so it differs from what answersFor produced
func changed(answers []types.AnswerInput) []types.AnswerInput {
	out := make([]types.AnswerInput, len(answers))
	for i, a := range answers {
		out[i] = types.AnswerInput{QuestionID: a.QuestionID}
		if a.AnswerText != nil {
			text := *a.AnswerText + " (edited)"
			out[i].AnswerText = &text
		} else {
			selected := "b"
			out[i].SelectedOptionID = &selected
		}
	}
	return out
}

func (s *ServerTestSuite) TestVerifyInvite() {
	session := s.register("verify@example.com")
	_, inv := s.liveInvite(session.Token)

	s.Equal("https://hire.example.com/test/invite?token="+inv.Token, inv.URL)
	s.True(inv.SingleUse)

	r := s.do(http.MethodGet, "/v1/invites/verify/?token="+url.QueryEscape(inv.Token), "", nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var verified types.InviteVerifyResponse
	r.decode(s.T(), &verified)
	s.True(verified.Valid)
	s.Equal("Senior Go Engineer", verified.Assessment.JobTitle)
	s.Equal(types.StageCount, verified.Assessment.StageCount)
	s.Equal(types.QuestionCount, verified.Assessment.QuestionCount)

	unknown := "0" + inv.Token[1:]
	if unknown == inv.Token {
		unknown = "1" + inv.Token[1:]
	}
	for _, token := range []string{"", "short", "zz" + inv.Token[2:], unknown} {
		r = s.do(http.MethodGet, "/v1/invites/verify/?token="+url.QueryEscape(token), "", nil)
		s.Equal(http.StatusNotFound, r.code, token)
		s.Equal("Invalid invite", r.message(s.T()))
	}
}

func (s *ServerTestSuite) TestInviteForDraftIsNotRedeemable() {
	session := s.register("draftinvite@example.com")
	_, assessment := s.draftAssessment(session.Token)

	r := s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/invites/", session.Token, nil)
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))
	var inv types.InviteResponse
	r.decode(s.T(), &inv)

	r = s.do(http.MethodPost, "/v1/invites/"+inv.Token+"/start/", "", types.StartRequest{})
	s.Equal(http.StatusForbidden, r.code)
	s.Equal("Assessment not active", r.message(s.T()))
}

func (s *ServerTestSuite) TestSingleUseInvite() {
	session := s.register("singleuse@example.com")
	_, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	s.Equal(1, started.CurrentStage)
	s.Len(started.Questions, types.QuestionsPerStage)
	for _, q := range started.Questions {
		for _, o := range q.Options {
			s.Nil(o.IsCorrect, "candidates must not see correct markers")
		}
	}

	r := s.do(http.MethodPost, "/v1/invites/"+inv.Token+"/start/", "", types.StartRequest{})
	s.Equal(http.StatusGone, r.code)
	s.Equal("Invite already used", r.message(s.T()))
}

func (s *ServerTestSuite) TestCandidateFlow() {
	session := s.register("flow@example.com")
	assessment, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	instance := started.InstanceID.String()

	r := s.do(http.MethodGet, "/v1/test/"+instance+"/questions/?stage=2", "", nil)
	s.Equal(http.StatusForbidden, r.code)

	// save without moving on, then resubmit the same stage
	r = s.submit(instance, answersFor(started.Questions)[:1], false)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	r = s.do(http.MethodGet, "/v1/test/"+instance+"/questions/", "", nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var current types.StageQuestionsResponse
	r.decode(s.T(), &current)
	s.Equal(1, current.Stage)
	s.Len(current.Answers, 1)

	questions := started.Questions
	for stage := 1; stage < types.StageCount; stage++ {
		r = s.submit(instance, answersFor(questions), true)
		s.Require().Equal(http.StatusOK, r.code, string(r.body))

		var moved types.AnswerSubmissionResponse
		r.decode(s.T(), &moved)
		s.Equal(stage+1, moved.CurrentStage)
		s.False(moved.Complete)
		s.Len(moved.NextStage, types.QuestionsPerStage)
		questions = moved.NextStage
	}

	s.expectSubjective(8)
	r = s.submit(instance, answersFor(questions), true)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var done types.AnswerSubmissionResponse
	r.decode(s.T(), &done)
	s.True(done.Complete)
	s.Equal(types.InstanceStatusSubmitted, done.Status)
	s.Require().NotNil(done.ScoringStatus)
	s.Equal(types.ScoringStatusScored, *done.ScoringStatus)

	r = s.submit(instance, answersFor(questions), false)
	s.Equal(http.StatusConflict, r.code)

	r = s.do(http.MethodPost, "/v1/test/"+instance+"/end/", "", nil)
	s.Equal(http.StatusConflict, r.code)

	r = s.do(http.MethodGet, "/v1/jobs/"+assessment.JobID.String()+"/results/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var results []types.SubmissionSummary
	r.decode(s.T(), &results)
	s.Require().Len(results, 1)
	summary := results[0]
	s.Equal(started.InstanceID, summary.InstanceID)
	s.Require().NotNil(summary.OverallScore)
	s.InDelta(9.3, *summary.OverallScore, 0.001)
	s.Require().NotNil(summary.Recommendation)
	s.Equal(types.RecommendationAdvance, *summary.Recommendation)
	s.Equal(types.RecommendationAdvance, *summary.EffectiveRecommendation)

	r = s.do(http.MethodGet, "/v1/submissions/"+instance+"/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var detail types.SubmissionDetail
	r.decode(s.T(), &detail)
	s.Len(detail.Stages, types.StageCount)
	s.Len(detail.ScoringBreakdown, types.StageCount)
	s.Equal("Reasoned answers", detail.ScoringExplanation)
	s.Equal("server-test", detail.SessionMeta["user_agent"])
	s.Empty(detail.TranscriptURL)
	for _, stage := range detail.Stages {
		for _, q := range stage.Questions {
			s.NotNil(q.Answer, "question %s should be answered", q.Question.ID)
		}
	}

	r = s.do(http.MethodPost, "/v1/submissions/"+instance+"/override/", session.Token, types.OverrideRequest{
		Recommendation: types.RecommendationReject,
	})
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var overridden types.SubmissionSummary
	r.decode(s.T(), &overridden)
	s.Equal(types.RecommendationAdvance, *overridden.Recommendation)
	s.Equal(types.RecommendationReject, *overridden.HROverride)
	s.Equal(types.RecommendationReject, *overridden.EffectiveRecommendation)

	s.expectSubjective(6)
	r = s.do(http.MethodPost, "/v1/submissions/"+instance+"/rescore/", session.Token, nil)
	s.Require().Equal(http.StatusAccepted, r.code, string(r.body))
	var rescored types.SubmissionSummary
	r.decode(s.T(), &rescored)
	s.Equal(types.ScoringStatusScored, *rescored.ScoringStatus)
	s.InDelta(8.7, *rescored.OverallScore, 0.001)
	s.Equal(types.RecommendationReject, *rescored.HROverride)

	other := s.register("snoop@example.com")
	r = s.do(http.MethodGet, "/v1/submissions/"+instance+"/", other.Token, nil)
	s.Equal(http.StatusNotFound, r.code)
}

func (s *ServerTestSuite) TestEndEarly() {
	session := s.register("early@example.com")
	_, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	instance := started.InstanceID.String()

	s.expectSubjective(2)
	r := s.do(http.MethodPost, "/v1/test/"+instance+"/end/", "", nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var ended types.EndResponse
	r.decode(s.T(), &ended)
	s.Equal(types.InstanceStatusSubmitted, ended.Status)

	r = s.do(http.MethodGet, "/v1/submissions/"+instance+"/", session.Token, nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	var detail types.SubmissionDetail
	r.decode(s.T(), &detail)
	s.InDelta(0.7, *detail.OverallScore, 0.001)
	s.Equal(types.RecommendationReject, *detail.Recommendation)

	r = s.do(http.MethodGet, "/v1/test/"+instance+"/questions/", "", nil)
	s.Equal(http.StatusConflict, r.code)
}

func (s *ServerTestSuite) TestScoringFailureCanBeRescored() {
	session := s.register("failing@example.com")
	_, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	instance := started.InstanceID.String()

	s.llm.EXPECT().
		ScoreSubjectiveAnswers(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errModelDown).
		Times(1)
	r := s.do(http.MethodPost, "/v1/test/"+instance+"/end/", "", nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	r = s.do(http.MethodGet, "/v1/submissions/"+instance+"/", session.Token, nil)
	var detail types.SubmissionDetail
	r.decode(s.T(), &detail)
	s.Equal(types.ScoringStatusError, *detail.ScoringStatus)
	s.Contains(detail.ScoringError, "model unavailable")
	s.Nil(detail.Recommendation)

	s.expectSubjective(5)
	r = s.do(http.MethodPost, "/v1/submissions/"+instance+"/rescore/", session.Token, nil)
	s.Require().Equal(http.StatusAccepted, r.code, string(r.body))
	var rescored types.SubmissionSummary
	r.decode(s.T(), &rescored)
	s.Equal(types.ScoringStatusScored, *rescored.ScoringStatus)
}

func (s *ServerTestSuite) TestIdenticalAutosaveIsIdempotent() {
	session := s.register("resave@example.com")
	_, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	instance := started.InstanceID.String()
	answers := answersFor(started.Questions)

	r := s.submit(instance, answers, false)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	first := s.savedAnswers(instance)
	s.Len(first, types.QuestionsPerStage)

	r = s.submit(instance, answers, false)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	s.Equal(first, s.savedAnswers(instance))
}

func (s *ServerTestSuite) TestAnswersRejectedAfterEnd() {
	session := s.register("afterend@example.com")
	_, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	instance := started.InstanceID.String()
	answers := answersFor(started.Questions)[:1]

	r := s.submit(instance, answers, false)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))
	before := s.storedAnswer(session.Token, instance, answers[0].QuestionID)
	s.Require().NotNil(before)

	s.expectSubjective(3)
	r = s.do(http.MethodPost, "/v1/test/"+instance+"/end/", "", nil)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	r = s.submit(instance, changed(answers), false)
	s.Equal(http.StatusConflict, r.code)
	s.Equal("Test already submitted", r.message(s.T()))

	s.Equal(before, s.storedAnswer(session.Token, instance, answers[0].QuestionID))
}

func (s *ServerTestSuite) TestTimeUp() {
	session := s.register("late@example.com")
	assessment, inv := s.liveInvite(session.Token)

	reading := s.startTest(inv.Token)

	r := s.do(http.MethodPost, "/v1/assessments/"+assessment.ID.String()+"/invites/", session.Token, types.InviteRequest{})
	s.Require().Equal(http.StatusCreated, r.code, string(r.body))
	var second types.InviteResponse
	r.decode(s.T(), &second)
	writing := s.startTest(second.Token)

	saved := answersFor(writing.Questions)[:1]
	r = s.submit(writing.InstanceID.String(), saved, false)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	// past duration plus grace
	err := s.tx.Model(&models.TestInstance{}).
		Where("id IN ?", []uuid.UUID{reading.InstanceID, writing.InstanceID}).
		Update("started_at", time.Now().Add(-time.Hour)).
		Error
	s.Require().NoError(err)

	s.expectSubjective(1)
	r = s.do(http.MethodGet, "/v1/test/"+reading.InstanceID.String()+"/questions/", "", nil)
	s.Equal(http.StatusConflict, r.code)
	s.Equal(timeUpMessage, r.message(s.T()))

	s.expectSubjective(1)
	r = s.submit(writing.InstanceID.String(), changed(saved), true)
	s.Equal(http.StatusConflict, r.code)
	s.Equal(timeUpMessage, r.message(s.T()))

	for _, id := range []uuid.UUID{reading.InstanceID, writing.InstanceID} {
		r = s.do(http.MethodGet, "/v1/submissions/"+id.String()+"/", session.Token, nil)
		s.Require().Equal(http.StatusOK, r.code, string(r.body))
		var detail types.SubmissionDetail
		r.decode(s.T(), &detail)
		s.Equal(types.InstanceStatusSubmitted, detail.Status)
		s.Equal(1, detail.CurrentStage)
	}

	stored := s.storedAnswer(session.Token, writing.InstanceID.String(), saved[0].QuestionID)
	s.Require().NotNil(stored)
	s.Equal(saved[0].AnswerText, stored.AnswerText)
	s.Equal(saved[0].SelectedOptionID, stored.SelectedOptionID)
}
