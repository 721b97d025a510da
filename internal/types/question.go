package types

type (
	QuestionType string
	Intent       string

	// Candidate facing choice. IsCorrect is only ever populated for HR callers.
	Option struct {
		IsCorrect *bool  `json:"is_correct,omitempty"`
		ID        string `json:"id"                   validate:"required"`
		Label     string `json:"label"                validate:"required"`
	}

	GeneratedQuestion struct {
		CharLimit      *int         `json:"char_limit"`
		QuestionType   QuestionType `json:"question_type"`
		PromptText     string       `json:"prompt_text"`
		ScoringHint    string       `json:"scoring_hint"`
		InternalIntent Intent       `json:"internal_intent"`
		Options        []Option     `json:"options"`
	}

	GeneratedStage struct {
		Questions  []GeneratedQuestion `json:"questions"`
		StageIndex int                 `json:"stage_index"`
	}

	GeneratedAssessmentMeta struct {
		DurationSeconds int `json:"duration_seconds"`
	}

	GeneratedAssessment struct {
		Stages []GeneratedStage        `json:"stages"`
		Meta   GeneratedAssessmentMeta `json:"assessment_meta"`
	}
)

const (
	QuestionTypeMCQ                       QuestionType = "mcq"
	QuestionTypeShortStructured           QuestionType = "short_structured"
	QuestionTypeHybridChoiceJustification QuestionType = "hybrid_choice_justification"
)

const (
	IntentBaseline    Intent = "baseline"
	IntentApplication Intent = "application"
	IntentJudgment    Intent = "judgment"
	IntentDepth       Intent = "depth"
)

// Stages a generated assessment contains. Stage 4 is accepted by storage only.
const (
	StageCount        = 3
	QuestionsPerStage = 4
	QuestionCount     = StageCount * QuestionsPerStage
	MaxStageIndex     = 4
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMCQ, QuestionTypeShortStructured, QuestionTypeHybridChoiceJustification:
		return true
	}
	return false
}

// Reports whether the type presents a list of options to choose from
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeMCQ || t == QuestionTypeHybridChoiceJustification
}

func (i Intent) Valid() bool {
	switch i {
	case IntentBaseline, IntentApplication, IntentJudgment, IntentDepth:
		return true
	}
	return false
}

// Returns the options with correctness markers removed
func StripCorrect(options []Option) []Option {
	stripped := make([]Option, len(options))
	for i, o := range options {
		stripped[i] = Option{ID: o.ID, Label: o.Label}
	}
	return stripped
}

// Returns the id of the first option marked correct
func CorrectOptionID(options []Option) (string, bool) {
	for _, o := range options {
		if o.IsCorrect != nil && *o.IsCorrect {
			return o.ID, true
		}
	}
	return "", false
}

type AssessmentValidation struct {
	Errors []string `json:"errors"`
	Valid  bool     `json:"valid"`
}
