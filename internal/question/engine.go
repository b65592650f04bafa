// Package question generates quiz questions for transcript segments and
// normalizes the shapes models answer with into model.GeneratedQuestion.
package question

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/quizgen/internal/llm"
	"github.com/pavelanni/quizgen/internal/llm/prompts"
	"github.com/pavelanni/quizgen/internal/model"
	"github.com/pavelanni/quizgen/internal/repair"
)

// SamplingOptions are sent with every question prompt.
var SamplingOptions = llm.Options{Temperature: 0.2}

// Engine generates questions one (segment, type) pair at a time.
type Engine struct {
	gen llm.Generator
}

// NewEngine creates an Engine generating with gen.
func NewEngine(gen llm.Generator) *Engine {
	return &Engine{gen: gen}
}

// Generate asks for every positive (type, count) of the first spec for every
// non-empty segment, in chronological segment order. A failing pair is logged
// and skipped, so the result may be partial or empty. Only empty segments or
// an empty spec list are errors (model.ErrInvalidInput).
func (e *Engine) Generate(ctx context.Context, segments model.SegmentationResult, specs []model.QuestionTypeSpec, modelName string) ([]model.GeneratedQuestion, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", model.ErrInvalidInput)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no question type specification", model.ErrInvalidInput)
	}
	if len(specs) > 1 {
		slog.Warn("only the first question type specification is used", "ignored", len(specs)-1)
	}
	if modelName == "" {
		modelName = llm.DefaultModel
	}
	spec := specs[0]
	for _, tc := range spec {
		if tc.Count > 0 && !tc.Type.IsKnown() {
			slog.Warn("unknown question type, using generic instructions", "question_type", tc.Type)
		}
	}

	questions := []model.GeneratedQuestion{}
	failed := 0
	for _, segmentID := range segments.OrderedIDs() {
		text := segments[segmentID]
		if strings.TrimSpace(text) == "" {
			slog.Debug("skipping empty segment", "segment_id", segmentID)
			continue
		}
		for _, tc := range spec {
			if tc.Count <= 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				slog.Warn("question generation canceled, returning partial result",
					"questions", len(questions), "error", err)
				return questions, nil
			}

			qs, err := e.generatePair(ctx, segmentID, text, tc, modelName)
			if err != nil {
				failed++
				slog.Error("question generation failed",
					"segment_id", segmentID,
					"question_type", tc.Type,
					"count", tc.Count,
					"error", err,
				)
				continue
			}
			questions = append(questions, qs...)
		}
	}

	slog.Info("question generation finished",
		"model", modelName,
		"segments", len(segments),
		"questions", len(questions),
		"failed_pairs", failed,
	)
	return questions, nil
}

func (e *Engine) generatePair(ctx context.Context, segmentID, text string, tc model.TypeCount, modelName string) ([]model.GeneratedQuestion, error) {
	prompt := prompts.BuildQuestionPrompt(tc.Type, tc.Count, text)
	raw, err := e.gen.Generate(ctx, prompt, modelName, SamplingOptions)
	if err != nil {
		return nil, err
	}
	slog.Debug("question raw response",
		"segment_id", segmentID,
		"question_type", tc.Type,
		"preview", llm.Preview(raw, 300),
	)

	items, err := repair.DecodeArrayOrObject(raw)
	if err != nil {
		return nil, err
	}
	qs, err := normalizeAll(items, segmentID, tc.Type)
	if err != nil {
		return nil, err
	}
	if len(qs) != tc.Count {
		slog.Warn("question count differs from request",
			"segment_id", segmentID,
			"question_type", tc.Type,
			"requested", tc.Count,
			"got", len(qs),
		)
	}
	return qs, nil
}

