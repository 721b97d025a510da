// Package stage gates what a candidate may read and write while a test instance runs.
package stage

import (
	"math"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hirelens/assessment-api/internal/types"
)

var ErrSubmitted = types.NewDomainError(types.KindConflict, "Test already submitted")

type (
	Question struct {
		CharLimit  *int
		Type       types.QuestionType
		Options    []types.Option
		StageIndex int
		ID         uuid.UUID
	}

	Answer struct {
		AnswerText       *string
		SelectedOptionID *string
		QuestionID       uuid.UUID
	}

	// Step is what happens to an instance after an advancing submission
	Step struct {
		NextStage int
		Complete  bool
	}
)

// CheckRead enforces that a candidate can only see stages up to the current one.
func CheckRead(currentStage, requested int) error {
	if requested < 1 || requested > types.MaxStageIndex {
		return types.DomainErrorf(types.KindValidation, "stage must be 1-%d", types.MaxStageIndex)
	}

	if requested > currentStage {
		return types.DomainErrorf(
			types.KindForbidden,
			"You must complete stage %d before accessing stage %d",
			currentStage,
			requested,
		)
	}

	return nil
}

// CheckAnswers validates a batch of answers against the questions of the current stage.
func CheckAnswers(status types.InstanceStatus, current []Question, answers []Answer) error {
	if status != types.InstanceStatusInProgress {
		return ErrSubmitted
	}

	byID := make(map[uuid.UUID]*Question, len(current))
	for i := range current {
		byID[current[i].ID] = &current[i]
	}

	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return types.DomainErrorf(
				types.KindValidation,
				"Question %s not in current stage",
				a.QuestionID,
			)
		}

		if a.AnswerText != nil && q.CharLimit != nil &&
			utf8.RuneCountInString(*a.AnswerText) > *q.CharLimit {
			return types.DomainErrorf(
				types.KindValidation,
				"Answer for question %s exceeds %d character limit",
				a.QuestionID,
				*q.CharLimit,
			)
		}

		if a.SelectedOptionID != nil && *a.SelectedOptionID != "" {
			if !q.Type.HasOptions() {
				return types.DomainErrorf(
					types.KindValidation,
					"Question %s does not take a selected option",
					a.QuestionID,
				)
			}
			if !slices.ContainsFunc(q.Options, func(o types.Option) bool {
				return o.ID == *a.SelectedOptionID
			}) {
				return types.DomainErrorf(
					types.KindValidation,
					"Answer for question %s selects unknown option %q",
					a.QuestionID,
					*a.SelectedOptionID,
				)
			}
		}
	}

	return nil
}

// Advance returns the step taken when the candidate finishes currentStage.
func Advance(currentStage int) Step {
	if currentStage >= types.StageCount {
		return Step{Complete: true, NextStage: currentStage}
	}
	return Step{NextStage: currentStage + 1}
}

// TimeTaken is the elapsed time between start and completion in whole seconds.
func TimeTaken(startedAt, completedAt time.Time) int {
	secs := completedAt.Sub(startedAt).Seconds()
	if secs < 0 {
		return 0
	}
	return int(math.Round(secs))
}

func Deadline(startedAt time.Time, durationSecs int) time.Time {
	return startedAt.Add(time.Duration(durationSecs) * time.Second)
}

// Expired reports whether the time budget plus grace has run out at now.
func Expired(startedAt time.Time, durationSecs int, grace time.Duration, now time.Time) bool {
	if durationSecs <= 0 {
		return false
	}
	return now.After(Deadline(startedAt, durationSecs).Add(grace))
}
