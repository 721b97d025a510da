package types

type (
	JobStatus        string
	AssessmentStatus string
	InstanceStatus   string
	ScoringStatus    string
	Recommendation   string
)

const (
	JobStatusDraft  JobStatus = "draft"
	JobStatusActive JobStatus = "active"
	JobStatusClosed JobStatus = "closed"
)

const (
	AssessmentStatusDraft  AssessmentStatus = "draft"
	AssessmentStatusActive AssessmentStatus = "active"
	AssessmentStatusClosed AssessmentStatus = "closed"
)

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusSubmitted  InstanceStatus = "submitted"
)

const (
	ScoringStatusPending ScoringStatus = "pending" // Submitted and waiting for a scorer
	ScoringStatusScoring ScoringStatus = "scoring" // A scorer has claimed the instance
	ScoringStatusScored  ScoringStatus = "scored"  // Recommendation is available
	ScoringStatusError   ScoringStatus = "error"   // Scoring failed, raw failure output is kept on the instance
)

const (
	RecommendationAdvance Recommendation = "Advance"
	RecommendationHold    Recommendation = "Hold"
	RecommendationReject  Recommendation = "Reject"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusActive, JobStatusClosed:
		return true
	}
	return false
}

func (s ScoringStatus) Terminal() bool {
	return s == ScoringStatusScored || s == ScoringStatusError
}

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationAdvance, RecommendationHold, RecommendationReject:
		return true
	}
	return false
}
