package blueprint_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hirelens/assessment-api/internal/blueprint"
	"github.com/hirelens/assessment-api/internal/types"
)

func mcq(n int) types.GeneratedQuestion {
	yes, no := true, false
	return types.GeneratedQuestion{
		QuestionType:   types.QuestionTypeMCQ,
		PromptText:     fmt.Sprintf("Question %d", n),
		InternalIntent: types.IntentBaseline,
		Options: []types.Option{
			{ID: "a", Label: "first", IsCorrect: &yes},
			{ID: "b", Label: "second", IsCorrect: &no},
			{ID: "c", Label: "third", IsCorrect: &no},
			{ID: "d", Label: "fourth", IsCorrect: &no},
		},
	}
}

func short(n int) types.GeneratedQuestion {
	limit := 350
	return types.GeneratedQuestion{
		QuestionType:   types.QuestionTypeShortStructured,
		PromptText:     fmt.Sprintf("Explain %d", n),
		InternalIntent: types.IntentDepth,
		CharLimit:      &limit,
	}
}

func validAssessment() *types.GeneratedAssessment {
	a := &types.GeneratedAssessment{Meta: types.GeneratedAssessmentMeta{DurationSeconds: 1800}}
	for s := 1; s <= 3; s++ {
		stage := types.GeneratedStage{StageIndex: s}
		for q := 1; q <= 4; q++ {
			if s == 3 {
				stage.Questions = append(stage.Questions, short(q))
			} else {
				stage.Questions = append(stage.Questions, mcq(q))
			}
		}
		a.Stages = append(a.Stages, stage)
	}
	return a
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		result := blueprint.Validate(validAssessment())

		assert.True(t, result.Valid, "assessment should be valid")
		assert.Empty(t, result.Errors, "no errors expected")
	})

	tests := []struct {
		mutate func(*types.GeneratedAssessment)
		name   string
		errors []string
	}{
		{
			name:   "TwoStages",
			mutate: func(a *types.GeneratedAssessment) { a.Stages = a.Stages[:2] },
			errors: []string{"Expected 3 stages, got 2", "Expected 12 total questions, got 8"},
		},
		{
			name: "ShortStage",
			mutate: func(a *types.GeneratedAssessment) {
				a.Stages[1].Questions = a.Stages[1].Questions[:3]
			},
			errors: []string{"Stage 2: expected 4 questions, got 3", "Expected 12 total questions, got 11"},
		},
		{
			name: "BadQuestionType",
			mutate: func(a *types.GeneratedAssessment) {
				a.Stages[0].Questions[2].QuestionType = "essay"
			},
			errors: []string{`Stage 1 Q3: invalid question_type "essay"`},
		},
		{
			name: "EmptyPrompt",
			mutate: func(a *types.GeneratedAssessment) {
				a.Stages[2].Questions[0].PromptText = " "
			},
			errors: []string{"Stage 3 Q1: empty prompt_text"},
		},
		{
			name: "MissingOptions",
			mutate: func(a *types.GeneratedAssessment) {
				a.Stages[0].Questions[0].Options = nil
			},
			errors: []string{"Stage 1 Q1: mcq requires options"},
		},
		{
			name: "BadIntent",
			mutate: func(a *types.GeneratedAssessment) {
				a.Stages[1].Questions[3].InternalIntent = "trivia"
			},
			errors: []string{`Stage 2 Q4: invalid internal_intent "trivia"`},
		},
		{
			name: "TwoCorrectOptions",
			mutate: func(a *types.GeneratedAssessment) {
				yes := true
				a.Stages[0].Questions[1].Options[2].IsCorrect = &yes
			},
			errors: []string{"Stage 1 Q2: expected exactly one correct option, got 2"},
		},
		{
			name: "DuplicateStageIndex",
			mutate: func(a *types.GeneratedAssessment) {
				a.Stages[2].StageIndex = 2
			},
			errors: []string{"Duplicate stage_index 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAssessment()
			tt.mutate(a)

			result := blueprint.Validate(a)

			assert.False(t, result.Valid, "assessment should be invalid")
			assert.Equal(t, tt.errors, result.Errors, "unexpected errors")
		})
	}
}
