package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/internal/scoring"
	"github.com/hirelens/assessment-api/internal/types"
)

// One candidate attempt at an assessment
type TestInstance struct {
	StartedAt          time.Time
	SessionMeta        map[string]string    `gorm:"type:jsonb;serializer:json"`
	Status             types.InstanceStatus `gorm:"type:text;default:'in_progress'"`
	ScoringExplanation string
	RawScoringOutput   string
	ScoringError       string
	ScoringBreakdown   []types.StageScore `gorm:"type:jsonb;serializer:json"`
	Model
	CandidateName    datatypes.Null[string]
	CandidateEmail   datatypes.Null[string]
	CompletedAt      datatypes.Null[time.Time]
	TimeTakenSeconds datatypes.Null[int]
	ScoringStatus    datatypes.Null[types.ScoringStatus]
	ScoringStartedAt datatypes.Null[time.Time]
	Recommendation   datatypes.Null[types.Recommendation]
	HROverride       datatypes.Null[types.Recommendation] `gorm:"column:hr_override"`
	OverallScore     datatypes.Null[float64]
	InviteID         datatypes.Null[uuid.UUID]
	AssessmentID     uuid.UUID
	CurrentStage     int `gorm:"default:1"`
}

func (TestInstance) TableName() string {
	return "test_instances"
}

func (t TestInstance) GetID() uuid.UUID {
	return t.ID
}

func (TestInstance) OwnerScope(db *gorm.DB, ownerID uuid.UUID) *gorm.DB {
	return db.Joins("JOIN assessments ON assessments.id = test_instances.assessment_id").
		Joins("JOIN jobs ON jobs.id = assessments.job_id").
		Where("jobs.owner_id = ?", ownerID)
}

// The recommendation decisions are made on, an HR override wins over the computed one
func (t *TestInstance) EffectiveRecommendation() *types.Recommendation {
	return scoring.Effective(PtrFromNull(t.Recommendation), PtrFromNull(t.HROverride))
}

type Answer struct {
	SubmittedAt time.Time
	Model
	AnswerText       datatypes.Null[string]
	SelectedOptionID datatypes.Null[string]
	InstanceID       uuid.UUID
	QuestionID       uuid.UUID
}

func (Answer) TableName() string {
	return "answers"
}

func (a Answer) GetID() uuid.UUID {
	return a.ID
}

func (a *Answer) ScoringAnswer() types.ScoringAnswer {
	return types.ScoringAnswer{
		QuestionID:       a.QuestionID.String(),
		AnswerText:       a.AnswerText.V,
		SelectedOptionID: a.SelectedOptionID.V,
	}
}

func ScoringAnswers(answers []Answer) []types.ScoringAnswer {
	out := make([]types.ScoringAnswer, len(answers))
	for i := range answers {
		out[i] = answers[i].ScoringAnswer()
	}
	return out
}

// Dashboard counter row, one per submitted instance
type CandidateSubmission struct {
	Model
	JobID      uuid.UUID
	InstanceID uuid.UUID
}

func (CandidateSubmission) TableName() string {
	return "candidate_submissions"
}

func (c CandidateSubmission) GetID() uuid.UUID {
	return c.ID
}
