package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/pavelanni/quizgen/internal/model"
)

// DefaultOllamaURL is the base URL of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// Ollama calls the native Ollama /api/generate endpoint.
type Ollama struct {
	client *api.Client
}

// NewOllama creates an Ollama backend. baseURL may include a trailing /api.
func NewOllama(baseURL string, httpClient *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/api")
	base, err := url.Parse(baseURL)
	if err != nil {
		slog.Warn("invalid ollama url, using default", "url", baseURL, "error", err)
		base, _ = url.Parse(DefaultOllamaURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Ollama{client: api.NewClient(base, httpClient)}
}

// Generate sends a non-streaming generate request and returns its response text.
func (o *Ollama) Generate(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   modelName,
		Prompt:  prompt,
		Stream:  &stream,
		Options: ollamaOptions(opts),
	}

	var out strings.Builder
	received := false
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		received = true
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", o.fail(err)
	}
	if !received {
		return "", &model.GenerationError{Backend: BackendOllama, StatusCode: http.StatusOK, Err: ErrNoText}
	}

	slog.Debug("ollama response", "model", modelName, "chars", out.Len())
	return out.String(), nil
}

func ollamaOptions(opts Options) map[string]any {
	m := map[string]any{"temperature": opts.Temperature}
	if opts.TopP != 0 {
		m["top_p"] = opts.TopP
	}
	return m
}

// Ping lists local models to check that the server answers.
func (o *Ollama) Ping(ctx context.Context) error {
	if _, err := o.client.List(ctx); err != nil {
		return o.fail(err)
	}
	return nil
}

// Close is a no-op; the HTTP client owns no resources that need releasing.
func (o *Ollama) Close() error { return nil }

// fail maps client errors onto GenerationError. Transport failures carry no
// status; a reply that did not decode is reported as lacking text.
func (o *Ollama) fail(err error) error {
	ge := &model.GenerationError{Backend: BackendOllama, Err: err}
	var se api.StatusError
	var ue *url.Error
	switch {
	case errors.As(err, &se):
		ge.StatusCode = se.StatusCode
	case errors.As(err, &ue), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		ge.Err = fmt.Errorf("%w: %v", ErrNoText, err)
	}
	return ge
}
