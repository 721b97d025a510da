package audit

import (
	"github.com/google/uuid"
)

var schemaVersion = "0.1.0"
var logContext = "audit"

type UnixMilli int64

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type Action string

const (
	ActUserRegistered        Action = "user.registered"
	ActUserLogin             Action = "user.login"
	ActMagicLinkRequested    Action = "magic_link.requested"
	ActMagicLinkRedeemed     Action = "magic_link.redeemed"
	ActJobCreated            Action = "job.created"
	ActJobStatusChanged      Action = "job.status_changed"
	ActJobDeleted            Action = "job.deleted"
	ActSchemaParsed          Action = "schema.parsed"
	ActAssessmentGenerated   Action = "assessment.generated"
	ActAssessmentPublished   Action = "assessment.published"
	ActAssessmentClosed      Action = "assessment.closed"
	ActAssessmentUpdated     Action = "assessment.updated"
	ActAssessmentReordered   Action = "assessment.reordered"
	ActAssessmentCascaded    Action = "assessment.cascaded"
	ActQuestionEdited        Action = "question.edited"
	ActInviteGenerated       Action = "invite.generated"
	ActTestStarted           Action = "test.started"
	ActTestSubmitted         Action = "test.submitted"
	ActScoringCompleted      Action = "scoring.completed"
	ActScoringFailed         Action = "scoring.failed"
	ActSubmissionOverride    Action = "submission.override"
	ActSubmissionRescore     Action = "submission.rescore"
	ActTranscriptArchived    Action = "transcript.archived"
	ActScoringSweepRecovered Action = "scoring.sweep_recovered"
)

func dispForAction(a Action) Disposition {
	switch a {
	case ActAssessmentPublished, ActScoringCompleted, ActTestSubmitted:
		return DispositionGood
	case ActScoringFailed, ActScoringSweepRecovered:
		return DispositionBad
	default:
		return DispositionNeutral
	}
}

type Message struct {
	ActorID       *uuid.UUID  `json:"actor_id"`
	LogContext    string      `json:"log_context" validate:"required"`
	SchemaVersion string      `json:"version"     validate:"required"`
	Disposition   Disposition `json:"disposition" validate:"required"`
	Action        Action      `json:"action"      validate:"required"`

	Timestamp UnixMilli `json:"timestamp" validate:"required"`
}

// Entry is one append-only audit record
type Entry struct {
	Payload map[string]any `json:"payload"`
	Message
}
