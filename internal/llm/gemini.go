package llm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

var _ TextGenerator = (*GeminiGenerator)(nil)

// Gemini API backed generator
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, maxTokens int32) (string, error) {
	ctx, span := tracer.Start(ctx, "GeminiGenerator.Generate", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("prompt.length", len(prompt)),
	))
	defer span.End()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		TopP:             genai.Ptr[float32](1),
		MaxOutputTokens:  maxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate content")
		return "", fmt.Errorf("gemini: %w", err)
	}

	if resp == nil {
		span.RecordError(ErrEmptyResponse)
		span.SetStatus(codes.Error, "nil response")
		return "", ErrEmptyResponse
	}

	text := resp.Text()
	if text == "" {
		span.RecordError(ErrEmptyResponse)
		span.SetStatus(codes.Error, "no text in response")
		return "", ErrEmptyResponse
	}

	span.SetAttributes(attribute.Int("response.length", len(text)))
	span.SetStatus(codes.Ok, "generated content")
	return text, nil
}
