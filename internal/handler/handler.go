package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/quizgen/internal/i18n"
	"github.com/pavelanni/quizgen/internal/model"
	"github.com/pavelanni/quizgen/internal/store"
)

// maxBodyBytes bounds request bodies; transcripts of long lectures fit well
// within it.
const maxBodyBytes = 10 << 20

// Segmenter splits transcripts into segments.
type Segmenter interface {
	Segment(ctx context.Context, transcript, modelName string, desiredSegments int) (model.SegmentationResult, error)
}

// QuestionGenerator produces questions for segments.
type QuestionGenerator interface {
	Generate(ctx context.Context, segments model.SegmentationResult, specs []model.QuestionTypeSpec, modelName string) ([]model.GeneratedQuestion, error)
}

// Config holds request defaults and access settings.
type Config struct {
	DefaultModel    string
	DesiredSegments int
	APIKeyHash      string // bcrypt hash; empty disables auth
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	segmenter Segmenter
	questions QuestionGenerator
	store     *store.Store // nil disables run history
	config    Config
	keys      *keyVerifier
}

// New creates a new Handler. s may be nil.
func New(seg Segmenter, qg QuestionGenerator, s *store.Store, cfg Config) (*Handler, error) {
	if seg == nil || qg == nil {
		return nil, errors.New("handler: segmenter and question generator are required")
	}
	if cfg.DesiredSegments < 1 {
		cfg.DesiredSegments = 3
	}
	return &Handler{
		segmenter: seg,
		questions: qg,
		store:     s,
		config:    cfg,
		keys:      newKeyVerifier(cfg.APIKeyHash),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/segment-transcript", h.handleSegment)
		r.Post("/generate-questions", h.handleGenerateQuestions)
		r.Get("/runs", h.handleListRuns)
		r.Get("/runs/export", h.handleExportRuns)
		r.Get("/runs/{runID}", h.handleGetRun)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": appI18n.T(r.Context(), "ServiceHealthy"),
	})
}

type segmentRequest struct {
	Transcript      string `json:"transcript"`
	Model           string `json:"model"`
	DesiredSegments *int   `json:"desired_segments"`
}

func (h *Handler) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeMalformed(w, r, err)
			return
		}
	} else {
		req.Transcript = r.FormValue("transcript")
		req.Model = r.FormValue("model")
		if raw := strings.TrimSpace(r.FormValue("desired_segments")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				h.writeMalformed(w, r, fmt.Errorf("desired_segments: %w", err))
				return
			}
			req.DesiredSegments = &n
		}
	}

	modelName := h.modelOrDefault(req.Model)
	desired := h.config.DesiredSegments
	if req.DesiredSegments != nil {
		desired = *req.DesiredSegments
	}

	segments, err := h.segmenter.Segment(r.Context(), req.Transcript, modelName, desired)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.recordRun(model.RunSegmentation, modelName,
		model.SegmentationInput{Transcript: req.Transcript, DesiredSegments: desired}, segments)

	writeJSON(w, http.StatusOK, map[string]any{
		"segments": segments,
		"message":  appI18n.Tp(r.Context(), "SegmentsCreated", len(segments)),
	})
}

type questionsRequest struct {
	Segments model.SegmentationResult `json:"segments"`
	Specs    specList                 `json:"global_question_specification"`
	Model    string                   `json:"model"`
}

// specList accepts a list of specs or a single spec object.
type specList []model.QuestionTypeSpec

func (l *specList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var one model.QuestionTypeSpec
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*l = specList{one}
		return nil
	}
	var many []model.QuestionTypeSpec
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

func (h *Handler) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeMalformed(w, r, err)
			return
		}
	} else {
		req.Model = r.FormValue("model")
		if raw := r.FormValue("segments"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Segments); err != nil {
				h.writeMalformed(w, r, fmt.Errorf("segments: %w", err))
				return
			}
		}
		if raw := r.FormValue("global_question_specification"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Specs); err != nil {
				h.writeMalformed(w, r, fmt.Errorf("global_question_specification: %w", err))
				return
			}
		}
	}

	modelName := h.modelOrDefault(req.Model)
	specs := []model.QuestionTypeSpec(req.Specs)
	questions, err := h.questions.Generate(r.Context(), req.Segments, specs, modelName)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.recordRun(model.RunQuestions, modelName,
		model.QuestionsInput{Segments: req.Segments, Specs: specs}, questions)

	writeJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"message":   appI18n.Tp(r.Context(), "QuestionsGenerated", len(questions)),
	})
}

func (h *Handler) modelOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return h.config.DefaultModel
}

// recordRun persists a finished run. Failures are logged only.
func (h *Handler) recordRun(kind model.RunKind, modelName string, input, output any) {
	if h.store == nil {
		return
	}
	if _, err := h.store.RecordRun(kind, modelName, input, output); err != nil {
		slog.Error("failed to record run", "kind", kind, "error", err)
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		writeDetail(w, http.StatusBadRequest,
			appI18n.Td(r.Context(), "ErrInvalidInput", map[string]any{"Detail": inputDetail(err)}))
	case errors.Is(err, model.ErrSegmentationFailed):
		slog.Error("segmentation failed", "error", err)
		writeDetail(w, http.StatusBadGateway, appI18n.T(r.Context(), "ErrSegmentationFailed"))
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, appI18n.T(r.Context(), "ErrInternal"))
	}
}

func (h *Handler) writeMalformed(w http.ResponseWriter, r *http.Request, err error) {
	writeDetail(w, http.StatusBadRequest,
		appI18n.Td(r.Context(), "ErrMalformedRequest", map[string]any{"Detail": err.Error()}))
}

// inputDetail drops the sentinel prefix from an invalid-input error.
func inputDetail(err error) string {
	msg := err.Error()
	prefix := model.ErrInvalidInput.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
