package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hirelens/assessment-api/internal/logger"
)

var _ TextGenerator = (*ChatCompletionsGenerator)(nil)

// Generator for any OpenAI compatible /chat/completions endpoint
type ChatCompletionsGenerator struct {
	client  *retryablehttp.Client
	baseURL string
	apiKey  string
	model   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p"`
	MaxTokens   int32         `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// StatusError is a non 2xx reply from the completions endpoint
type StatusError struct {
	Body string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completions error (%d): %s", e.Code, truncate(e.Body, 500))
}

func NewChatCompletionsGenerator(
	baseURL, apiKey, model string,
	timeout time.Duration,
) *ChatCompletionsGenerator {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = timeout
	client.Logger = logger.Logger

	return &ChatCompletionsGenerator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

// NewChatCompletionsGeneratorFromClient is used by tests to point at a fake endpoint
func NewChatCompletionsGeneratorFromClient(
	client *retryablehttp.Client,
	baseURL, apiKey, model string,
) *ChatCompletionsGenerator {
	return &ChatCompletionsGenerator{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

func (g *ChatCompletionsGenerator) Generate(
	ctx context.Context,
	prompt string,
	maxTokens int32,
) (string, error) {
	ctx, span := tracer.Start(ctx, "ChatCompletionsGenerator.Generate", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("prompt.length", len(prompt)),
	))
	defer span.End()

	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		TopP:        1,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal request")
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		g.baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build request")
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("chat completions request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response")
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "non 2xx response")
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode response")
		return "", fmt.Errorf("decoding chat completions response: %w", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		span.RecordError(ErrEmptyResponse)
		span.SetStatus(codes.Error, "no content in response")
		return "", ErrEmptyResponse
	}

	content := parsed.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("response.length", len(content)))
	span.SetStatus(codes.Ok, "generated content")
	return content, nil
}
