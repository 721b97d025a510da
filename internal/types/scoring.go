package types

type (
	StageScore struct {
		Feedback   string  `json:"feedback"`
		StageIndex int     `json:"stage_index"`
		Score      float64 `json:"score"`
	}

	ScoringOutput struct {
		Recommendation Recommendation `json:"recommendation"`
		Explanation    string         `json:"explanation"`
		Stages         []StageScore   `json:"stages"`
		OverallScore   float64        `json:"overall_score"`
	}

	// Question as seen by a scorer, correct markers included
	ScoringQuestion struct {
		ID      string       `json:"id"`
		Type    QuestionType `json:"type"`
		Prompt  string       `json:"prompt"`
		Options []Option     `json:"options"`
		Stage   int          `json:"stage"`
	}

	ScoringAnswer struct {
		QuestionID       string `json:"question_id"`
		AnswerText       string `json:"answer_text"`
		SelectedOptionID string `json:"selected_option_id"`
	}
)

// SubjectiveScores is what a model assigns to the stages that need judgment
type SubjectiveScores struct {
	Explanation string       `json:"explanation"`
	Raw         string       `json:"-"`
	Stages      []StageScore `json:"stages"`
}
