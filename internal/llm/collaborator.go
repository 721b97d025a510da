package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/internal/blueprint"
	"github.com/hirelens/assessment-api/internal/jdschema"
	"github.com/hirelens/assessment-api/internal/scoring"
	"github.com/hirelens/assessment-api/internal/types"
)

var (
	_ Collaborator             = (*ModelCollaborator)(nil)
	_ scoring.SubjectiveScorer = (*ModelCollaborator)(nil)
)

// ModelCollaborator drives a TextGenerator with prompts, output checks and a bounded
// retry policy: one retry after unparseable output and one after output that parses
// but fails validation, never more than maxAttempts calls in total.
type ModelCollaborator struct {
	gen         TextGenerator
	timeout     time.Duration
	maxAttempts uint64
	retryDelay  time.Duration
}

func NewCollaborator(gen TextGenerator, timeout time.Duration, maxAttempts uint64) *ModelCollaborator {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &ModelCollaborator{
		gen:         gen,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

func (c *ModelCollaborator) WithRetryDelay(d time.Duration) *ModelCollaborator {
	if d <= 0 {
		d = time.Millisecond
	}
	c.retryDelay = d
	return c
}

type attemptResult[T any] struct {
	value T
	raw   string
	valid bool
	ok    bool
}

// call runs prompt until it yields output that decodes and validates, following the
// retry policy. When retries run out on a validation failure the last decoded value is
// returned with valid=false.
func call[T any](
	ctx context.Context,
	c *ModelCollaborator,
	name string,
	prompt string,
	maxTokens int32,
	decodeFn func(raw string) (T, error),
	validFn func(T) bool,
) (attemptResult[T], error) {
	ctx, span := tracer.Start(ctx, "ModelCollaborator."+name, trace.WithAttributes(
		attribute.Int64("maxAttempts", int64(c.maxAttempts)),
	))
	defer span.End()

	var (
		last              attemptResult[T]
		lastRaw           string
		parseRetried      bool
		validationRetried bool
		attempts          int
	)

	backoff := retry.WithMaxRetries(c.maxAttempts-1, retry.NewConstant(c.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int("attempt", attempts)))

		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		raw, err := c.gen.Generate(callCtx, prompt, maxTokens)
		if err != nil {
			span.AddEvent("generator_failed", trace.WithAttributes(
				attribute.String("error", err.Error()),
			))
			return retry.RetryableError(err)
		}
		lastRaw = raw

		value, err := decodeFn(raw)
		if err != nil {
			span.AddEvent("unparseable_output", trace.WithAttributes(
				attribute.String("error", err.Error()),
			))
			if parseRetried {
				return err
			}
			parseRetried = true
			return retry.RetryableError(err)
		}

		last = attemptResult[T]{value: value, raw: raw, ok: true}
		if validFn(value) {
			last.valid = true
			return nil
		}

		span.AddEvent("invalid_output")
		if validationRetried {
			return nil
		}
		validationRetried = true
		return retry.RetryableError(errInvalidOutput)
	})

	span.SetAttributes(attribute.Int("attempts", attempts))

	// once anything decoded the caller gets it back with its validation verdict
	if err != nil && last.ok {
		span.AddEvent("returning_last_decoded", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		err = nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		var pe *ParseError
		if !errors.As(err, &pe) && lastRaw != "" {
			err = &ParseError{Err: err, Raw: lastRaw}
		}
		return last, fmt.Errorf("%s: %w", name, err)
	}

	span.SetAttributes(attribute.Bool("valid", last.valid))
	span.SetStatus(codes.Ok, "model call succeeded")
	return last, nil
}

var errInvalidOutput = errors.New("model output failed validation")

func (c *ModelCollaborator) DissectJobDescription(ctx context.Context, description string) (*Dissection, error) {
	res, err := call(
		ctx,
		c,
		"DissectJobDescription",
		dissectionPrompt(description),
		dissectionMaxTokens,
		func(raw string) (types.ParsedJD, error) {
			return decode[types.ParsedJD](raw, dissectionSchema)
		},
		func(p types.ParsedJD) bool {
			return jdschema.Validate(&p).Valid
		},
	)
	if err != nil {
		return nil, err
	}

	parsed := res.value
	if parsed.Tools == nil {
		parsed.Tools = []string{}
	}
	if parsed.Constraints == nil {
		parsed.Constraints = []string{}
	}

	return &Dissection{
		Raw:        res.raw,
		Parsed:     parsed,
		Validation: jdschema.Validate(&parsed),
	}, nil
}

func (c *ModelCollaborator) GenerateAssessment(
	ctx context.Context,
	schema *types.ParsedJD,
) (*Generation, error) {
	prompt, err := generationPrompt(schema)
	if err != nil {
		return nil, fmt.Errorf("building generation prompt: %w", err)
	}

	res, err := call(
		ctx,
		c,
		"GenerateAssessment",
		prompt,
		generationMaxTokens,
		func(raw string) (types.GeneratedAssessment, error) {
			return decode[types.GeneratedAssessment](raw, generationSchema)
		},
		func(a types.GeneratedAssessment) bool {
			return blueprint.Validate(&a).Valid
		},
	)
	if err != nil {
		return nil, err
	}

	generated := res.value
	if generated.Meta.DurationSeconds <= 0 {
		generated.Meta.DurationSeconds = DefaultDurationSecs
	}

	return &Generation{
		Raw:        res.raw,
		Assessment: generated,
		Validation: blueprint.Validate(&generated),
	}, nil
}

type scoringReply struct {
	Explanation string             `json:"explanation"`
	Stages      []types.StageScore `json:"stages"`
}

// ScoreSubjectiveAnswers asks the model to score the given stages. Failures carry
// the raw model output as a *scoring.Error.
func (c *ModelCollaborator) ScoreSubjectiveAnswers(
	ctx context.Context,
	stages []int,
	questions []types.ScoringQuestion,
	answers []types.ScoringAnswer,
) (*types.SubjectiveScores, error) {
	prompt, err := scoringPrompt(stages, questions, answers)
	if err != nil {
		return nil, fmt.Errorf("building scoring prompt: %w", err)
	}

	res, err := call(
		ctx,
		c,
		"ScoreSubjectiveAnswers",
		prompt,
		scoringMaxTokens,
		func(raw string) (scoringReply, error) {
			return decode[scoringReply](raw, scoringSchema)
		},
		// range and coverage checks belong to the scoring engine
		func(scoringReply) bool { return true },
	)
	if err != nil {
		var pe *ParseError
		raw := ""
		if errors.As(err, &pe) {
			raw = pe.Raw
		}
		return nil, &scoring.Error{Err: err, Raw: raw}
	}

	explanation := res.value.Explanation
	if explanation == "" {
		explanation = scoring.DeterministicExplanation
	}

	return &types.SubjectiveScores{
		Explanation: explanation,
		Raw:         res.raw,
		Stages:      res.value.Stages,
	}, nil
}
