package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hirelens/assessment-api/internal/types"
)

const (
	dissectionMaxTokens int32 = 2048
	generationMaxTokens int32 = 8192
	scoringMaxTokens    int32 = 2048

	DefaultDurationSecs = 1800
	noAnswer            = "(no answer)"
)

func quoted[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%q", string(v))
	}
	return strings.Join(parts, ", ")
}

func dissectionPrompt(description string) string {
	var b strings.Builder
	b.WriteString(`You are an expert hiring analyst.

Your task is to dissect the following job description into a structured hiring schema.

Rules:
- Ignore generic HR fluff and cultural statements.
- Focus on what would differentiate a strong candidate from a weak one.
- Limit core competencies to a maximum of 5.
- Assign weights that sum to 1.0.
- Be decisive. Do not hedge.
`)
	fmt.Fprintf(&b, "- \"function\" must be one of: %s\n", quoted(types.Functions))
	fmt.Fprintf(&b, "- \"seniority\" must be one of: %s\n", quoted(types.Seniorities))
	b.WriteString(`- confidence_score should be between 0 and 1

Output ONLY valid JSON in the following schema (no markdown, no explanation, no text before or after):
{
  "function": "",
  "role_family": "",
  "seniority": "",
  "decision_context": "",
  "core_competencies": [
    { "name": "", "weight": 0 }
  ],
  "tools": [],
  "constraints": [],
  "confidence_score": 0
}

Job Description:
`)
	b.WriteString(description)
	return b.String()
}

func generationPrompt(schema *types.ParsedJD) (string, error) {
	encoded, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert assessment designer and hiring analyst. Given the parsed schema below (JSON), generate a %d-question assessment grouped into %d stages (stage_index 1..%d). Follow these rules exactly:

- Output only valid JSON matching the structure below.
- Each stage must contain exactly %d questions.
- Stage 1 MUST contain exactly 4 MCQs.
- Stage 2 MUST contain exactly 4 MCQs.
- Stage 3 MUST contain exactly 4 short_structured questions.
`, types.QuestionCount, types.StageCount, types.StageCount, types.QuestionsPerStage)
	b.WriteString(`- Question fields:
  - question_type: one of ["mcq","short_structured","hybrid_choice_justification"]
  - prompt_text: string
  - options: array for mcq (max 4 options, each with "id", "label", and exactly one with "is_correct": true), otherwise []
  - char_limit: integer for short_structured (300-400), null for MCQs
  - scoring_hint: 1-2 line string describing how to grade answers qualitatively
  - internal_intent: one of ["baseline","application","judgment","depth"]
- MCQ style: scenario-specific and technical. Never ask definition questions. Present real-world situations where the candidate must analyze the context to choose the best option.
- Short structured style: subjective, experience-based questions rather than textbook answers.
- Keep prompts compact.
- Do not include difficulty labels in candidate-facing prompts.
- For MCQ options, use ids "a", "b", "c", "d".

Output JSON structure:
{
 "assessment_meta": { "duration_seconds": `)
	fmt.Fprintf(&b, "%d", DefaultDurationSecs)
	b.WriteString(` },
 "stages": [
   { "stage_index": 1, "questions": [ { "question_type": "", "prompt_text": "", "options": [], "char_limit": null, "scoring_hint": "", "internal_intent": "baseline" } ] },
   { "stage_index": 2, "questions": [] },
   { "stage_index": 3, "questions": [] }
 ]
}

Parsed schema:
`)
	b.Write(encoded)
	return b.String(), nil
}

type qaPair struct {
	Stage  int    `json:"stage"`
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

func scoringPrompt(
	stages []int,
	questions []types.ScoringQuestion,
	answers []types.ScoringAnswer,
) (string, error) {
	answerFor := make(map[string]types.ScoringAnswer, len(answers))
	for _, a := range answers {
		answerFor[a.QuestionID] = a
	}

	pairs := make([]qaPair, 0, len(questions))
	for _, q := range questions {
		answer := noAnswer
		if a, ok := answerFor[q.ID]; ok {
			switch {
			case a.AnswerText != "" && a.SelectedOptionID != "":
				answer = fmt.Sprintf("[%s] %s", optionLabel(q.Options, a.SelectedOptionID), a.AnswerText)
			case a.AnswerText != "":
				answer = a.AnswerText
			case a.SelectedOptionID != "":
				answer = optionLabel(q.Options, a.SelectedOptionID)
			}
		}
		pairs = append(pairs, qaPair{
			Stage:  q.Stage,
			Type:   string(q.Type),
			Prompt: q.Prompt,
			Answer: answer,
		})
	}

	encoded, err := json.MarshalIndent(pairs, "", "  ")
	if err != nil {
		return "", err
	}

	stageList := make([]string, len(stages))
	for i, s := range stages {
		stageList[i] = fmt.Sprint(s)
	}

	var b strings.Builder
	b.WriteString(`You are a deterministic assessment scorer. Evaluate the candidate's answers as a whole and per stage.

Rules:
- Output ONLY valid JSON.
`)
	fmt.Fprintf(&b, "- Provide a score (0-10) and 1-sentence feedback for EACH of the following stages: %s.\n",
		strings.Join(stageList, ", "))
	b.WriteString(`- Provide an explanation paragraph summarizing their overall strengths and weaknesses based on the provided answers.

Output JSON:
{
  "stages": [ { "stage_index": 1, "score": 0.0, "feedback": "" } ],
  "explanation": ""
}

Questions and Answers:
`)
	b.Write(encoded)
	return b.String(), nil
}

func optionLabel(options []types.Option, id string) string {
	for _, o := range options {
		if o.ID == id {
			return o.Label
		}
	}
	return id
}
