// Package scoring turns a candidate's answers into stage scores, an overall score
// and a recommendation.
//
// Stages made up solely of multiple choice questions are scored by matching the
// selected option against the marked correct one. Every other stage is handed to a
// [SubjectiveScorer] in a single call.
package scoring

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/internal/types"
)

var tracer = otel.Tracer("github.com/hirelens/assessment-api/internal/scoring")

const (
	AdvanceThreshold = 7.0
	HoldThreshold    = 5.0
	MaxStageScore    = 10.0

	DeterministicExplanation = "Assessment evaluated successfully based on objective multiple choice scoring."
	DeterministicRaw         = "Deterministic scoring only. No LLM call required."
)

//go:generate mockgen -destination ./mock/mock.go -package mock . SubjectiveScorer

type SubjectiveScorer interface {
	// ScoreSubjectiveAnswers scores the listed stages. Questions and answers cover those
	// stages only.
	ScoreSubjectiveAnswers(
		ctx context.Context,
		stages []int,
		questions []types.ScoringQuestion,
		answers []types.ScoringAnswer,
	) (*types.SubjectiveScores, error)
}

// Error is a scoring failure that keeps whatever raw model output was produced
type Error struct {
	Err error
	Raw string
}

func (e *Error) Error() string {
	return fmt.Sprintf("scoring failed: %s", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RawOutput returns the raw model output attached to err, if any.
func RawOutput(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Raw
	}
	return ""
}

type Result struct {
	Raw    string
	Output types.ScoringOutput
}

type Engine struct {
	scorer SubjectiveScorer
}

func NewEngine(scorer SubjectiveScorer) *Engine {
	return &Engine{scorer: scorer}
}

func (e *Engine) Score(
	ctx context.Context,
	questions []types.ScoringQuestion,
	answers []types.ScoringAnswer,
) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Engine.Score", trace.WithAttributes(
		attribute.Int("questions", len(questions)),
		attribute.Int("answers", len(answers)),
	))
	defer span.End()

	byStage := map[int][]types.ScoringQuestion{}
	for _, q := range questions {
		if q.Stage < 1 || q.Stage > types.StageCount {
			continue
		}
		byStage[q.Stage] = append(byStage[q.Stage], q)
	}

	answerFor := make(map[string]types.ScoringAnswer, len(answers))
	for _, a := range answers {
		answerFor[a.QuestionID] = a
	}

	stages := []types.StageScore{}
	subjective := []int{}
	for s := 1; s <= types.StageCount; s++ {
		qs := byStage[s]
		if len(qs) == 0 {
			continue
		}

		if allMCQ(qs) {
			stages = append(stages, scoreMCQStage(s, qs, answerFor))
		} else {
			subjective = append(subjective, s)
		}
	}
	span.AddEvent("partitioned", trace.WithAttributes(
		attribute.Int("deterministic", len(stages)),
		attribute.Int("subjective", len(subjective)),
	))

	explanation := DeterministicExplanation
	raw := DeterministicRaw

	if len(subjective) > 0 {
		subQuestions := []types.ScoringQuestion{}
		subAnswers := []types.ScoringAnswer{}
		for _, s := range subjective {
			for _, q := range byStage[s] {
				subQuestions = append(subQuestions, q)
				if a, ok := answerFor[q.ID]; ok {
					subAnswers = append(subAnswers, a)
				}
			}
		}

		scores, err := e.scorer.ScoreSubjectiveAnswers(ctx, subjective, subQuestions, subAnswers)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "subjective scoring failed")
			return nil, &Error{Err: err, Raw: RawOutput(err)}
		}

		if err := checkSubjective(subjective, scores); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "subjective scores rejected")
			return nil, &Error{Err: err, Raw: scores.Raw}
		}

		stages = append(stages, scores.Stages...)
		explanation = scores.Explanation
		raw = scores.Raw
	}

	slices.SortFunc(stages, func(a, b types.StageScore) int {
		return cmp.Compare(a.StageIndex, b.StageIndex)
	})

	overall := Overall(stages)
	result := &Result{
		Raw: raw,
		Output: types.ScoringOutput{
			Stages:         stages,
			OverallScore:   overall,
			Recommendation: Recommend(overall),
			Explanation:    explanation,
		},
	}

	span.SetAttributes(
		attribute.Float64("overall_score", overall),
		attribute.String("recommendation", string(result.Output.Recommendation)),
	)
	span.SetStatus(codes.Ok, "scored")
	return result, nil
}

func allMCQ(qs []types.ScoringQuestion) bool {
	for _, q := range qs {
		if q.Type != types.QuestionTypeMCQ {
			return false
		}
	}
	return true
}

func scoreMCQStage(
	stageIndex int,
	qs []types.ScoringQuestion,
	answerFor map[string]types.ScoringAnswer,
) types.StageScore {
	correct := 0
	for _, q := range qs {
		want, ok := types.CorrectOptionID(q.Options)
		if !ok {
			continue
		}
		if a, answered := answerFor[q.ID]; answered && a.SelectedOptionID == want {
			correct++
		}
	}

	return types.StageScore{
		StageIndex: stageIndex,
		Score:      Round1(float64(correct) / float64(len(qs)) * MaxStageScore),
		Feedback: fmt.Sprintf(
			"Candidate answered %d out of %d multiple choice questions correctly.",
			correct,
			len(qs),
		),
	}
}

func checkSubjective(want []int, scores *types.SubjectiveScores) error {
	if scores == nil {
		return errors.New("scorer returned no result")
	}

	got := map[int]bool{}
	for _, s := range scores.Stages {
		if !slices.Contains(want, s.StageIndex) {
			return fmt.Errorf("scorer returned unrequested stage %d", s.StageIndex)
		}
		if got[s.StageIndex] {
			return fmt.Errorf("scorer returned stage %d twice", s.StageIndex)
		}
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > MaxStageScore {
			return fmt.Errorf("stage %d score %v is outside 0-10", s.StageIndex, s.Score)
		}
		got[s.StageIndex] = true
	}

	for _, s := range want {
		if !got[s] {
			return fmt.Errorf("scorer did not score stage %d", s)
		}
	}

	return nil
}

// Overall is the mean stage score rounded to one decimal.
func Overall(stages []types.StageScore) float64 {
	sum := 0.0
	for _, s := range stages {
		sum += s.Score
	}
	return Round1(sum / float64(max(1, len(stages))))
}

func Recommend(overall float64) types.Recommendation {
	switch {
	case overall >= AdvanceThreshold:
		return types.RecommendationAdvance
	case overall >= HoldThreshold:
		return types.RecommendationHold
	default:
		return types.RecommendationReject
	}
}

// Effective applies an HR override on top of the computed recommendation.
func Effective(computed, override *types.Recommendation) *types.Recommendation {
	if override != nil {
		return override
	}
	return computed
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
