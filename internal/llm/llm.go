package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultModel is used when a caller does not name a model.
const DefaultModel = "gemma3"

// Backend names accepted by NewBackend.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// ErrNoText is wrapped by a GenerationError when the backend answered but
// its body carried no completion text.
var ErrNoText = errors.New("response lacks completion text")

// Options are the sampling parameters passed to the backend.
// A zero TopP is not sent.
type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
}

// Generator sends one prompt to a text-generation model and returns the raw
// completion. Implementations return *model.GenerationError on failure.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, opts Options) (string, error)
}

// Backend is a Generator talking to a concrete service.
type Backend interface {
	Generator
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	BaseURL string
	APIKey  string
	Timeout time.Duration // HTTP client timeout; 0 means none
}

// NewBackend creates the backend named by cfg.Backend.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendOllama:
		return NewOllama(cfg.BaseURL, httpClient), nil
	case BackendOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, httpClient), nil
	case BackendGemini:
		g, err := NewGemini(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// Preview shortens s to at most n bytes for logging, cutting on a rune
// boundary and marking the cut with "...".
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt, model string, opts Options) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt, model string, opts Options) (string, error) {
	return f(ctx, prompt, model, opts)
}
