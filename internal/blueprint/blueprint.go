// Package blueprint checks that a generated assessment has the fixed
// three stage, four question shape before it is stored.
package blueprint

import (
	"fmt"
	"strings"

	"github.com/hirelens/assessment-api/internal/types"
)

// Validate reports every structural problem found in a generated assessment.
func Validate(a *types.GeneratedAssessment) types.AssessmentValidation {
	errs := []string{}

	if a == nil {
		return types.AssessmentValidation{Errors: []string{"Assessment is empty"}}
	}

	if len(a.Stages) != types.StageCount {
		errs = append(errs, fmt.Sprintf(
			"Expected %d stages, got %d",
			types.StageCount,
			len(a.Stages),
		))
	}

	seen := map[int]bool{}
	total := 0
	for _, st := range a.Stages {
		if st.StageIndex < 1 || st.StageIndex > types.StageCount {
			errs = append(errs, fmt.Sprintf("Invalid stage_index %d", st.StageIndex))
		} else if seen[st.StageIndex] {
			errs = append(errs, fmt.Sprintf("Duplicate stage_index %d", st.StageIndex))
		}
		seen[st.StageIndex] = true

		if len(st.Questions) != types.QuestionsPerStage {
			errs = append(errs, fmt.Sprintf(
				"Stage %d: expected %d questions, got %d",
				st.StageIndex,
				types.QuestionsPerStage,
				len(st.Questions),
			))
		}

		for i, q := range st.Questions {
			errs = append(errs, validateQuestion(st.StageIndex, i+1, &q)...)
		}
		total += len(st.Questions)
	}

	if total != types.QuestionCount {
		errs = append(errs, fmt.Sprintf(
			"Expected %d total questions, got %d",
			types.QuestionCount,
			total,
		))
	}

	return types.AssessmentValidation{Errors: errs, Valid: len(errs) == 0}
}

func validateQuestion(stage, pos int, q *types.GeneratedQuestion) []string {
	errs := []string{}
	prefix := fmt.Sprintf("Stage %d Q%d", stage, pos)

	if !q.QuestionType.Valid() {
		errs = append(errs, fmt.Sprintf("%s: invalid question_type %q", prefix, q.QuestionType))
	}
	if strings.TrimSpace(q.PromptText) == "" {
		errs = append(errs, prefix+": empty prompt_text")
	}
	if !q.InternalIntent.Valid() {
		errs = append(errs, fmt.Sprintf("%s: invalid internal_intent %q", prefix, q.InternalIntent))
	}

	if q.QuestionType.HasOptions() {
		if len(q.Options) == 0 {
			errs = append(errs, fmt.Sprintf("%s: %s requires options", prefix, q.QuestionType))
		} else if q.QuestionType == types.QuestionTypeMCQ {
			correct := 0
			ids := map[string]bool{}
			for _, o := range q.Options {
				if o.IsCorrect != nil && *o.IsCorrect {
					correct++
				}
				if ids[o.ID] {
					errs = append(errs, fmt.Sprintf("%s: duplicate option id %q", prefix, o.ID))
				}
				ids[o.ID] = true
			}
			if correct != 1 {
				errs = append(errs, fmt.Sprintf(
					"%s: expected exactly one correct option, got %d",
					prefix,
					correct,
				))
			}
		}
	}

	if q.CharLimit != nil && *q.CharLimit <= 0 {
		errs = append(errs, fmt.Sprintf("%s: char_limit must be positive", prefix))
	}

	return errs
}
