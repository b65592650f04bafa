package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pavelanni/quizgen/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI wraps an OpenAI-compatible chat completion API.
type OpenAI struct {
	api *openai.Client
}

// NewOpenAI creates a backend for an OpenAI-compatible endpoint,
// e.g. http://localhost:11434/v1 for Ollama.
func NewOpenAI(baseURL, apiKey string, httpClient *http.Client) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &OpenAI{api: openai.NewClientWithConfig(config)}
}

// Generate sends the prompt as a single user message.
func (c *OpenAI) Generate(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
	})
	if err != nil {
		return "", &model.GenerationError{Backend: BackendOpenAI, StatusCode: openAIStatus(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &model.GenerationError{Backend: BackendOpenAI, Err: fmt.Errorf("%w: no choices", ErrNoText)}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("openai response", "model", modelName, "chars", len(raw))
	return raw, nil
}

// Ping lists models to verify the endpoint and credentials.
func (c *OpenAI) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return &model.GenerationError{Backend: BackendOpenAI, StatusCode: openAIStatus(err), Err: err}
	}
	return nil
}

// Close is a no-op.
func (c *OpenAI) Close() error { return nil }

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
