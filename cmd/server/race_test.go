package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hirelens/assessment-api/cmd/server/internal/models"
	"github.com/hirelens/assessment-api/internal/types"
)

type request struct {
	body   any
	method string
	path   string
	token  string
}

// Points the suite at a server on its own connections so requests really run side by
// side. The returned func restores the transactional server and deletes what email
// owns.
func (s *ServerTestSuite) committed(email string) func() {
	rolledBack := s.server
	s.server = s.newServer(s.db)

	return func() {
		s.server.Close()
		s.server = rolledBack
		s.NoError(s.db.Where("email = ?", email).Delete(&models.User{}).Error)
	}
}

// Sends one request without asserting, so it can run off the test goroutine
func (s *ServerTestSuite) send(rq request) (int, error) {
	var body []byte
	if rq.body != nil {
		b, err := json.Marshal(rq.body)
		if err != nil {
			return 0, err
		}
		body = b
	}

	req, err := http.NewRequestWithContext(s.T().Context(), rq.method, s.server.URL+rq.path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rq.token != "" {
		req.Header.Set("Authorization", "Bearer "+rq.token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	_, err = io.Copy(io.Discard, res.Body)
	return res.StatusCode, err
}

// Fires every request at once and returns the status codes in the same order
func (s *ServerTestSuite) concurrently(reqs ...request) []int {
	statuses := make([]int, len(reqs))
	errs := make([]error, len(reqs))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, rq := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			statuses[i], errs[i] = s.send(rq)
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err, "request failed")
	}
	return statuses
}

func (s *ServerTestSuite) TestInviteRedeemedOnceUnderLoad() {
	const email = "stampede@example.com"
	defer s.committed(email)()

	session := s.register(email)
	assessment, inv := s.liveInvite(session.Token)
	s.Require().True(inv.SingleUse)

	reqs := make([]request, 8)
	for i := range reqs {
		reqs[i] = request{
			method: http.MethodPost,
			path:   "/v1/invites/" + inv.Token + "/start/",
			body:   types.StartRequest{},
		}
	}

	created := 0
	for _, status := range s.concurrently(reqs...) {
		switch status {
		case http.StatusCreated:
			created++
		case http.StatusGone:
		default:
			s.Failf("unexpected status", "got %d", status)
		}
	}
	s.Equal(1, created)

	var instances int64
	err := s.db.Model(&models.TestInstance{}).
		Where("assessment_id = ?", assessment.ID).
		Count(&instances).
		Error
	s.Require().NoError(err)
	s.EqualValues(1, instances)
}

func (s *ServerTestSuite) TestAutosaveRacingEnd() {
	const email = "racer@example.com"
	defer s.committed(email)()

	session := s.register(email)
	_, inv := s.liveInvite(session.Token)

	started := s.startTest(inv.Token)
	instance := started.InstanceID.String()
	original := answersFor(started.Questions)

	r := s.submit(instance, original, false)
	s.Require().Equal(http.StatusOK, r.code, string(r.body))

	edited := changed(original)
	s.expectSubjective(4)
	statuses := s.concurrently(
		request{
			method: http.MethodPost,
			path:   "/v1/test/" + instance + "/answers/",
			body:   types.AnswerSubmissionRequest{Answers: edited},
		},
		request{method: http.MethodPost, path: "/v1/test/" + instance + "/end/"},
	)
	s.Equal(http.StatusOK, statuses[1], "end should always win or follow the save")

	// the save either landed before submission or changed nothing
	want := original
	switch statuses[0] {
	case http.StatusOK:
		want = edited
	case http.StatusConflict:
	default:
		s.Failf("unexpected autosave status", "got %d", statuses[0])
	}
	for _, a := range want {
		stored := s.storedAnswer(session.Token, instance, a.QuestionID)
		s.Require().NotNil(stored)
		s.Equal(a.SelectedOptionID, stored.SelectedOptionID)
	}

	r = s.submit(instance, original, false)
	s.Equal(http.StatusConflict, r.code)
	for _, a := range want {
		stored := s.storedAnswer(session.Token, instance, a.QuestionID)
		s.Require().NotNil(stored)
		s.Equal(a.SelectedOptionID, stored.SelectedOptionID)
	}
}

func (s *ServerTestSuite) TestEditRechecksAfterClose() {
	const email = "lockedit@example.com"
	defer s.committed(email)()

	session := s.register(email)
	_, assessment := s.draftAssessment(session.Token)
	q := assessment.Stages[0].Questions[0]

	holder := s.db.Begin()
	defer holder.Rollback()
	_, err := models.LockByID[models.Assessment](s.T().Context(), holder, assessment.ID)
	s.Require().NoError(err)

	type outcome struct {
		err    error
		status int
	}
	prompt := "Edited while closing"
	done := make(chan outcome, 1)
	go func() {
		status, err := s.send(request{
			method: http.MethodPatch,
			path:   "/v1/assessments/" + assessment.ID.String() + "/questions/" + q.ID.String() + "/",
			token:  session.Token,
			body:   types.QuestionEditRequest{PromptText: &prompt},
		})
		done <- outcome{status: status, err: err}
	}()

	select {
	case <-done:
		s.FailNow("edit went through while the assessment was locked")
	case <-time.After(200 * time.Millisecond):
	}

	err = holder.Model(&models.Assessment{}).
		Where("id = ?", assessment.ID).
		Updates(map[string]any{"status": types.AssessmentStatusClosed, "closed_at": time.Now()}).
		Error
	s.Require().NoError(err)
	s.Require().NoError(holder.Commit().Error)

	res := <-done
	s.Require().NoError(res.err)
	s.Equal(http.StatusConflict, res.status)

	var stored models.Question
	s.Require().NoError(s.db.First(&stored, "id = ?", q.ID).Error)
	s.Equal(q.PromptText, stored.PromptText)
}
