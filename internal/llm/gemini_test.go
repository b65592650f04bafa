package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGeminiStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"googleapi", &googleapi.Error{Code: 403}, 403},
		{"wrapped googleapi", fmt.Errorf("call: %w", &googleapi.Error{Code: 500}), 500},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), 429},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), 503},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), 400},
		{"plain", errors.New("dial tcp"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geminiStatus(tt.err); got != tt.want {
				t.Errorf("geminiStatus = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGeminiExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("[{"), genai.Text(`"a": 1}]`)}}},
		{Content: nil},
	}}
	if got := extractText(resp); got != `[{"a": 1}]` {
		t.Errorf("extractText = %q", got)
	}
	if extractText(nil) != "" {
		t.Error("nil response should yield no text")
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), ""); err == nil {
		t.Fatal("expected error without API key")
	}
}
