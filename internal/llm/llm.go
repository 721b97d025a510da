// Package llm talks to the language model that dissects job descriptions,
// drafts assessments and scores free text answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hirelens/assessment-api/internal/config"
	"github.com/hirelens/assessment-api/internal/types"
)

var tracer = otel.Tracer("github.com/hirelens/assessment-api/internal/llm")

//go:generate mockgen -destination ./mock/mock.go -package mock . TextGenerator,Collaborator

// TextGenerator sends one prompt to a model and returns its text reply
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int32) (string, error)
}

// Collaborator is everything the API needs from the model
type Collaborator interface {
	DissectJobDescription(ctx context.Context, description string) (*Dissection, error)
	GenerateAssessment(ctx context.Context, schema *types.ParsedJD) (*Generation, error)
	ScoreSubjectiveAnswers(
		ctx context.Context,
		stages []int,
		questions []types.ScoringQuestion,
		answers []types.ScoringAnswer,
	) (*types.SubjectiveScores, error)
}

// Dissection is a parsed job description and how well it passed validation
type Dissection struct {
	Raw        string
	Parsed     types.ParsedJD
	Validation types.SchemaValidation
}

// Generation is a drafted assessment. Callers must check Validation before storing it.
type Generation struct {
	Raw        string
	Assessment types.GeneratedAssessment
	Validation types.AssessmentValidation
}

var ErrEmptyResponse = errors.New("model returned no content")

// ParseError means the model replied with something that is not the JSON we asked for
type ParseError struct {
	Err error
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model returned invalid JSON: %v: %s", e.Err, truncate(e.Raw, 300))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NewGeneratorFromConfig builds the text generator selected by llm.provider
//
//nolint:ireturn // callers only depend on the interface
func NewGeneratorFromConfig(ctx context.Context, cfg *config.LLMConfig) (TextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key is not configured")
	}

	switch cfg.Provider {
	case config.LLMProviderGemini:
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case config.LLMProviderChatCompletions:
		return NewChatCompletionsGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewFromConfig wires a generator into a collaborator using the configured attempt budget
func NewFromConfig(ctx context.Context, cfg *config.LLMConfig) (*ModelCollaborator, error) {
	gen, err := NewGeneratorFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCollaborator(gen, cfg.Timeout, cfg.MaxAttempts), nil
}

const defaultRetryDelay = 500 * time.Millisecond
