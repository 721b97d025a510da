// Package lifecycle holds the status rules for jobs and assessments.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hirelens/assessment-api/internal/types"
)

var (
	ErrAlreadyPublished = types.NewDomainError(types.KindConflict, "Assessment is already published or closed")
	ErrAlreadyClosed    = types.NewDomainError(types.KindConflict, "Assessment is already closed")
	ErrCloseDraft       = types.NewDomainError(types.KindConflict, "Only an active assessment can be closed")
	ErrEditClosed       = types.NewDomainError(types.KindConflict, "Cannot edit questions on a closed assessment")
	ErrUpdateClosed     = types.NewDomainError(types.KindConflict, "Cannot update a closed assessment")
	ErrReorderNotDraft  = types.NewDomainError(types.KindConflict, "Cannot reorder on a published assessment")
	ErrLiveAssessment   = types.NewDomainError(types.KindConflict, "Job already has a published assessment")
	ErrNoFieldsToUpdate = types.NewDomainError(types.KindValidation, "No fields to update")
)

func durationTooShort(minSecs int) error {
	return types.DomainErrorf(
		types.KindValidation,
		"Assessment duration must be at least %d seconds (%d minutes)",
		minSecs,
		minSecs/60,
	)
}

// TransitionError is returned for a job status change the state machine does not allow.
type TransitionError struct {
	From types.JobStatus
	To   types.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Invalid transition: cannot move from %q to %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return types.NewDomainError(types.KindValidation, e.Error())
}

var jobTransitions = map[types.JobStatus][]types.JobStatus{
	types.JobStatusDraft:  {types.JobStatusActive},
	types.JobStatusActive: {types.JobStatusClosed},
	types.JobStatusClosed: {types.JobStatusActive},
}

func CheckJobTransition(from, to types.JobStatus) error {
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// CheckPublish verifies the publish preconditions for a draft assessment.
// stageIndexes holds the stage index of every question the assessment owns.
func CheckPublish(
	status types.AssessmentStatus,
	stageIndexes []int,
	durationSecs int,
	minDurationSecs int,
) error {
	if status != types.AssessmentStatusDraft {
		return ErrAlreadyPublished
	}

	return checkPublishable(stageIndexes, durationSecs, minDurationSecs)
}

func checkPublishable(stageIndexes []int, durationSecs int, minDurationSecs int) error {
	if len(stageIndexes) != types.QuestionCount {
		return types.DomainErrorf(
			types.KindValidation,
			"Assessment requires exactly %d questions, has %d",
			types.QuestionCount,
			len(stageIndexes),
		)
	}

	counts := map[int]int{}
	for _, s := range stageIndexes {
		counts[s]++
	}
	for s := 1; s <= types.StageCount; s++ {
		if counts[s] != types.QuestionsPerStage {
			return types.DomainErrorf(
				types.KindValidation,
				"Stage %d has %d questions, needs exactly %d",
				s,
				counts[s],
				types.QuestionsPerStage,
			)
		}
	}

	if durationSecs < minDurationSecs {
		return durationTooShort(minDurationSecs)
	}

	return nil
}

func CheckClose(status types.AssessmentStatus) error {
	switch status {
	case types.AssessmentStatusActive:
		return nil
	case types.AssessmentStatusClosed:
		return ErrAlreadyClosed
	default:
		return ErrCloseDraft
	}
}

func CheckEdit(status types.AssessmentStatus) error {
	if status == types.AssessmentStatusClosed {
		return ErrEditClosed
	}
	return nil
}

func CheckUpdate(status types.AssessmentStatus) error {
	if status == types.AssessmentStatusClosed {
		return ErrUpdateClosed
	}
	return nil
}

// CheckReorder verifies that newOrder is a permutation of the ids currently in the stage.
func CheckReorder(
	status types.AssessmentStatus,
	stageIndex int,
	existing []uuid.UUID,
	newOrder []uuid.UUID,
) error {
	if status != types.AssessmentStatusDraft {
		return ErrReorderNotDraft
	}

	if stageIndex < 1 || stageIndex > types.MaxStageIndex {
		return types.DomainErrorf(
			types.KindValidation,
			"stage must be 1-%d",
			types.MaxStageIndex,
		)
	}

	if len(newOrder) != len(existing) {
		return types.DomainErrorf(
			types.KindValidation,
			"new_order must contain exactly %d question IDs",
			len(existing),
		)
	}

	inStage := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		inStage[id] = true
	}

	seen := make(map[uuid.UUID]bool, len(newOrder))
	for _, id := range newOrder {
		if !inStage[id] {
			return types.DomainErrorf(
				types.KindValidation,
				"Question %s does not belong to stage %d",
				id,
				stageIndex,
			)
		}
		if seen[id] {
			return types.DomainErrorf(types.KindValidation, "Question %s appears more than once", id)
		}
		seen[id] = true
	}

	return nil
}

// AssessmentState is the slice of an assessment the job cascade needs to plan with.
type AssessmentState struct {
	ClosedAt     *time.Time
	ID           uuid.UUID
	Status       types.AssessmentStatus
	StageIndexes []int
	DurationSecs int
}

// AssessmentChange is one status write the cascade wants applied.
type AssessmentChange struct {
	ID     uuid.UUID
	From   types.AssessmentStatus
	To     types.AssessmentStatus
	Reason string
}

// PlanCascade decides how the assessments of a job follow a job status change.
//
// Closing a job closes its active assessments. Activating a job activates its draft
// assessment only when the draft could be published, and otherwise reopens the most
// recently closed assessment when the job has no live one. At most one assessment per
// job is ever left in a non-closed status.
func PlanCascade(
	to types.JobStatus,
	assessments []AssessmentState,
	minDurationSecs int,
) []AssessmentChange {
	changes := []AssessmentChange{}

	switch to {
	case types.JobStatusClosed:
		for _, a := range assessments {
			if a.Status == types.AssessmentStatusActive {
				changes = append(changes, AssessmentChange{
					ID:     a.ID,
					From:   a.Status,
					To:     types.AssessmentStatusClosed,
					Reason: "job closed",
				})
			}
		}

	case types.JobStatusActive:
		live := false
		for _, a := range assessments {
			switch a.Status {
			case types.AssessmentStatusActive:
				live = true
			case types.AssessmentStatusDraft:
				live = true
				if checkPublishable(a.StageIndexes, a.DurationSecs, minDurationSecs) == nil {
					changes = append(changes, AssessmentChange{
						ID:     a.ID,
						From:   a.Status,
						To:     types.AssessmentStatusActive,
						Reason: "job activated",
					})
				}
			}
		}
		if live {
			break
		}

		var latest *AssessmentState
		for i := range assessments {
			a := &assessments[i]
			if a.Status != types.AssessmentStatusClosed {
				continue
			}
			if latest == nil || closedAfter(a, latest) {
				latest = a
			}
		}
		if latest != nil {
			changes = append(changes, AssessmentChange{
				ID:     latest.ID,
				From:   latest.Status,
				To:     types.AssessmentStatusActive,
				Reason: "job reactivated",
			})
		}
	}

	return changes
}

func closedAfter(a, b *AssessmentState) bool {
	if a.ClosedAt == nil {
		return false
	}
	if b.ClosedAt == nil {
		return true
	}
	return a.ClosedAt.After(*b.ClosedAt)
}

// IsTransitionError reports whether err came from [CheckJobTransition].
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
