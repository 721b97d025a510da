package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/internal/types"
)

type Job struct {
	LastActivityAt time.Time
	Title          string
	RawDescription string
	Status         types.JobStatus `gorm:"type:text;default:'draft'"`
	Model
	OwnerID uuid.UUID
}

func (Job) TableName() string {
	return "jobs"
}

func (j Job) GetID() uuid.UUID {
	return j.ID
}

func (Job) OwnerScope(db *gorm.DB, ownerID uuid.UUID) *gorm.DB {
	return db.Where("jobs.owner_id = ?", ownerID)
}

// Structured hiring schema, one per job
type ParsedSchema struct {
	Function           types.JDFunction
	RoleFamily         string
	Seniority          types.Seniority
	DecisionContext    string
	RawResponse        string
	Competencies       []types.Competency `gorm:"type:jsonb;serializer:json"`
	Tools              []string           `gorm:"type:jsonb;serializer:json"`
	Constraints        []string           `gorm:"type:jsonb;serializer:json"`
	ValidationErrors   []string           `gorm:"type:jsonb;serializer:json"`
	ValidationWarnings []string           `gorm:"type:jsonb;serializer:json"`
	Model
	Confidence float64
	JobID      uuid.UUID
	IsValid    bool
}

func (ParsedSchema) TableName() string {
	return "parsed_schemas"
}

func (p ParsedSchema) GetID() uuid.UUID {
	return p.ID
}

func NewParsedSchema(
	jobID uuid.UUID,
	parsed *types.ParsedJD,
	validation *types.SchemaValidation,
	raw string,
) ParsedSchema {
	return ParsedSchema{
		JobID:              jobID,
		Function:           parsed.Function,
		RoleFamily:         parsed.RoleFamily,
		Seniority:          parsed.Seniority,
		DecisionContext:    parsed.DecisionContext,
		Competencies:       nonNil(parsed.CoreCompetencies),
		Tools:              nonNil(parsed.Tools),
		Constraints:        nonNil(parsed.Constraints),
		Confidence:         parsed.ConfidenceScore,
		RawResponse:        raw,
		ValidationErrors:   nonNil(validation.Errors),
		ValidationWarnings: nonNil(validation.Warnings),
		IsValid:            validation.Valid,
	}
}

func (p *ParsedSchema) ParsedJD() types.ParsedJD {
	return types.ParsedJD{
		Function:         p.Function,
		RoleFamily:       p.RoleFamily,
		Seniority:        p.Seniority,
		DecisionContext:  p.DecisionContext,
		CoreCompetencies: nonNil(p.Competencies),
		Tools:            nonNil(p.Tools),
		Constraints:      nonNil(p.Constraints),
		ConfidenceScore:  p.Confidence,
	}
}

func (p *ParsedSchema) Validation() types.SchemaValidation {
	return types.SchemaValidation{
		Valid:    p.IsValid,
		Errors:   nonNil(p.ValidationErrors),
		Warnings: nonNil(p.ValidationWarnings),
	}
}

// Serialized lists are always arrays, never null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
