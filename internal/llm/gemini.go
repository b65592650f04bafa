package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pavelanni/quizgen/internal/model"
)

// Gemini calls Google's Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini backend requires an API key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Generate asks the named model for content and concatenates its text parts.
func (g *Gemini) Generate(ctx context.Context, prompt, modelName string, opts Options) (string, error) {
	m := g.client.GenerativeModel(modelName)
	m.SetTemperature(float32(opts.Temperature))
	if opts.TopP > 0 {
		m.SetTopP(float32(opts.TopP))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &model.GenerationError{Backend: BackendGemini, StatusCode: geminiStatus(err), Err: err}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			slog.Warn("gemini candidate did not stop normally", "candidate", i, "finish_reason", cand.FinishReason.String())
		}
	}

	text := extractText(resp)
	if text == "" {
		return "", &model.GenerationError{Backend: BackendGemini, Err: ErrNoText}
	}
	return text, nil
}

// Ping lists the first available model to verify the API key.
func (g *Gemini) Ping(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
		return &model.GenerationError{Backend: BackendGemini, StatusCode: geminiStatus(err), Err: err}
	}
	return nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

// geminiStatus maps a Gemini client error to an HTTP status code, or 0 when
// the call never got an answer.
func geminiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	st, ok := status.FromError(err)
	if !ok {
		return 0
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return 400
	case codes.Unauthenticated:
		return 401
	case codes.PermissionDenied:
		return 403
	case codes.NotFound:
		return 404
	case codes.ResourceExhausted:
		return 429
	case codes.Unimplemented:
		return 501
	case codes.Unavailable:
		return 503
	case codes.DeadlineExceeded:
		return 504
	case codes.Internal, codes.Unknown, codes.DataLoss:
		return 500
	default:
		return 0
	}
}
