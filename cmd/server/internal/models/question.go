package models

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/hirelens/assessment-api/internal/stage"
	"github.com/hirelens/assessment-api/internal/types"
)

type Question struct {
	QuestionType   types.QuestionType
	PromptText     string
	ScoringHint    string
	InternalIntent types.Intent
	Options        []types.Option `gorm:"type:jsonb;serializer:json"`
	Model
	CharLimit       datatypes.Null[int]
	StageIndex      int
	PositionInStage int
	AssessmentID    uuid.UUID
}

func (Question) TableName() string {
	return "questions"
}

func (q Question) GetID() uuid.UUID {
	return q.ID
}

// Builds the question rows of a generated assessment, positions are 1-based per stage
func QuestionsFromGenerated(
	assessmentID uuid.UUID,
	generated *types.GeneratedAssessment,
) []Question {
	questions := []Question{}
	for _, s := range generated.Stages {
		for i, q := range s.Questions {
			options := q.Options
			if options == nil {
				options = []types.Option{}
			}

			questions = append(questions, Question{
				AssessmentID:    assessmentID,
				StageIndex:      s.StageIndex,
				PositionInStage: i + 1,
				QuestionType:    q.QuestionType,
				PromptText:      q.PromptText,
				Options:         options,
				CharLimit:       NewNull(q.CharLimit),
				ScoringHint:     q.ScoringHint,
				InternalIntent:  q.InternalIntent,
			})
		}
	}
	return questions
}

// Ordered by stage, then position
func QuestionsForAssessment(
	ctx context.Context,
	db *gorm.DB,
	assessmentID uuid.UUID,
) ([]Question, error) {
	return questionsWhere(ctx, db, "assessment_id = ?", assessmentID)
}

func QuestionsForStage(
	ctx context.Context,
	db *gorm.DB,
	assessmentID uuid.UUID,
	stageIndex int,
) ([]Question, error) {
	return questionsWhere(
		ctx,
		db,
		"assessment_id = ? AND stage_index = ?",
		assessmentID,
		stageIndex,
	)
}

func questionsWhere(ctx context.Context, db *gorm.DB, query string, args ...any) ([]Question, error) {
	ctx, span := tracer.Start(ctx, "questionsWhere")
	defer span.End()

	db = db.WithContext(ctx)

	var questions []Question
	err := db.Where(query, args...).
		Order("stage_index").
		Order("position_in_stage").
		Find(&questions).
		Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch questions")
		return nil, fmt.Errorf("failed to fetch questions: %w", err)
	}

	span.SetAttributes(attribute.Int("questions", len(questions)))
	span.SetStatus(codes.Ok, "fetched questions")
	return questions, nil
}

func (q *Question) StageQuestion() stage.Question {
	return stage.Question{
		CharLimit:  PtrFromNull(q.CharLimit),
		Type:       q.QuestionType,
		Options:    q.Options,
		StageIndex: q.StageIndex,
		ID:         q.ID,
	}
}

func (q *Question) ScoringQuestion() types.ScoringQuestion {
	return types.ScoringQuestion{
		ID:      q.ID.String(),
		Type:    q.QuestionType,
		Prompt:  q.PromptText,
		Options: q.Options,
		Stage:   q.StageIndex,
	}
}

func StageQuestions(questions []Question) []stage.Question {
	out := make([]stage.Question, len(questions))
	for i := range questions {
		out[i] = questions[i].StageQuestion()
	}
	return out
}

func ScoringQuestions(questions []Question) []types.ScoringQuestion {
	out := make([]types.ScoringQuestion, len(questions))
	for i := range questions {
		out[i] = questions[i].ScoringQuestion()
	}
	return out
}
