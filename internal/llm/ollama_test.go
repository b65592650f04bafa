package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavelanni/quizgen/internal/model"
)

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model": "gemma3", "response": "[1, 2]", "done": true}`))
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/api/", srv.Client())
	out, err := o.Generate(context.Background(), "hello", "gemma3", Options{Temperature: 0.1, TopP: 0.9})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "[1, 2]" {
		t.Errorf("Generate = %q", out)
	}

	if got["model"] != "gemma3" || got["prompt"] != "hello" || got["stream"] != false {
		t.Errorf("request body = %v", got)
	}
	opts, _ := got["options"].(map[string]any)
	if opts["temperature"] != 0.1 || opts["top_p"] != 0.9 {
		t.Errorf("options = %v", opts)
	}
}

func TestOllamaOmitsZeroTopP(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"response": "ok"}`))
	}))
	defer srv.Close()

	if _, err := NewOllama(srv.URL, nil).Generate(context.Background(), "p", "m", Options{Temperature: 0.2}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	opts, _ := got["options"].(map[string]any)
	if _, ok := opts["top_p"]; ok {
		t.Errorf("top_p should be omitted, got %v", opts)
	}
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantNoText bool
		retryable  bool
	}{
		{"server error", http.StatusInternalServerError, `internal failure`, 500, false, true},
		{"overloaded", http.StatusServiceUnavailable, `server busy`, 503, false, true},
		{"not found", http.StatusNotFound, `{"status": "missing"}`, 404, false, false},
		{"empty body", http.StatusOK, ``, 200, true, false},
		{"non-string response", http.StatusOK, `{"response": 42}`, 0, true, false},
		{"not json", http.StatusOK, `hello`, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOllama(srv.URL, srv.Client()).Generate(context.Background(), "p", "m", Options{})
			var ge *model.GenerationError
			if !errors.As(err, &ge) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if ge.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", ge.StatusCode, tt.wantStatus)
			}
			if errors.Is(err, ErrNoText) != tt.wantNoText {
				t.Errorf("errors.Is(ErrNoText) = %v, want %v", !tt.wantNoText, tt.wantNoText)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", !tt.retryable, tt.retryable)
			}
		})
	}
}

func TestOllamaEmptyResponseText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"done": true}`))
	}))
	defer srv.Close()

	out, err := NewOllama(srv.URL, nil).Generate(context.Background(), "p", "m", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "" {
		t.Errorf("Generate = %q, want empty", out)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOllama(url, nil).Generate(context.Background(), "p", "m", Options{})
	var ge *model.GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if ge.StatusCode != 0 || ge.Backend != BackendOllama {
		t.Errorf("unexpected error fields: %+v", ge)
	}
	if !IsRetryable(err) {
		t.Error("transport failure should be retryable")
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"models": []}`))
	}))
	defer srv.Close()

	if err := NewOllama(srv.URL, nil).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := NewOllama(srv.URL+"/elsewhere", nil).Ping(context.Background()); err == nil {
		t.Error("Ping against a missing endpoint should fail")
	}
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(context.Background(), Config{Backend: ""})
	if err != nil {
		t.Fatalf("NewBackend default: %v", err)
	}
	if _, ok := b.(*Ollama); !ok {
		t.Errorf("default backend = %T, want *Ollama", b)
	}

	b, err = NewBackend(context.Background(), Config{Backend: "OpenAI", BaseURL: "http://localhost:11434/v1", APIKey: "ollama"})
	if err != nil {
		t.Fatalf("NewBackend openai: %v", err)
	}
	if _, ok := b.(*OpenAI); !ok {
		t.Errorf("backend = %T, want *OpenAI", b)
	}

	if _, err := NewBackend(context.Background(), Config{Backend: "gemini"}); err == nil {
		t.Error("gemini without API key should fail")
	}
	if _, err := NewBackend(context.Background(), Config{Backend: "carrier-pigeon"}); err == nil {
		t.Error("unknown backend should fail")
	}
}
