// Package segment splits a lecture transcript into topic segments, asking a
// text-generation model first and chunking deterministically when the model's
// answer cannot be used.
package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pavelanni/quizgen/internal/llm"
	"github.com/pavelanni/quizgen/internal/llm/prompts"
	"github.com/pavelanni/quizgen/internal/model"
	"github.com/pavelanni/quizgen/internal/repair"
)

var (
	markerRe = regexp.MustCompile(`^\[[\d:.\-\s>]+\]\s*`)

	errNotSegments = errors.New("reply is not a non-empty segment array")
)

// SamplingOptions are sent with every segmentation prompt.
var SamplingOptions = llm.Options{Temperature: 0.1, TopP: 0.9}

// Engine turns transcripts into segment maps.
type Engine struct {
	gen             llm.Generator
	fallbackOnError bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallbackOnGenerationError makes a failing backend degrade to the
// fallback segmenter instead of returning ErrSegmentationFailed.
func WithFallbackOnGenerationError(enabled bool) Option {
	return func(e *Engine) { e.fallbackOnError = enabled }
}

// NewEngine creates an Engine generating with gen.
func NewEngine(gen llm.Generator, opts ...Option) *Engine {
	e := &Engine{gen: gen}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Segment partitions transcript into at most desiredSegments segments and
// returns their cleaned text keyed by end time. It fails with
// model.ErrInvalidInput for a blank transcript and with
// model.ErrSegmentationFailed when the generation call fails.
func (e *Engine) Segment(ctx context.Context, transcript, modelName string, desiredSegments int) (model.SegmentationResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcript is empty", model.ErrInvalidInput)
	}
	if desiredSegments < 1 {
		desiredSegments = 1
	}
	if modelName == "" {
		modelName = llm.DefaultModel
	}

	prompt := prompts.BuildSegmentationPrompt(transcript, desiredSegments)
	slog.Info("segmentation request",
		"model", modelName,
		"desired_segments", desiredSegments,
		"prompt_chars", len(prompt),
	)

	raw, err := e.gen.Generate(ctx, prompt, modelName, SamplingOptions)
	if err != nil {
		if !e.fallbackOnError || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrSegmentationFailed, err)
		}
		slog.Error("segmentation generation failed, using fallback", "error", err)
		return e.build(Fallback(transcript, desiredSegments)), nil
	}
	slog.Info("segmentation response", "model", modelName, "response_chars", len(raw))
	slog.Debug("segmentation raw response", "preview", llm.Preview(raw, 300))

	segments, err := parseSegments(raw)
	if err == nil {
		if result := e.build(segments); len(result) > 0 {
			return result, nil
		}
		err = errors.New("every segment cleaned to empty text")
	}
	slog.Warn("model segmentation unusable, using fallback", "error", err)
	return e.build(Fallback(transcript, desiredSegments)), nil
}

func (e *Engine) build(segments []model.Segment) model.SegmentationResult {
	result := make(model.SegmentationResult, len(segments))
	collisions := 0
	for _, seg := range segments {
		text := Clean(seg.Lines)
		if text == "" {
			slog.Debug("dropping empty segment", "end_time", seg.EndTime)
			continue
		}
		if _, dup := result[seg.EndTime]; dup {
			collisions++
			slog.Warn("segment end_time collision, later segment wins", "end_time", seg.EndTime)
		}
		result[seg.EndTime] = text
	}
	slog.Debug("segments built", "segments", len(result), "collisions", collisions)
	return result
}

// Clean trims every line, drops blank ones, strips a leading bracketed
// timestamp marker and joins what remains with single spaces.
func Clean(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(markerRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

type rawSegment struct {
	EndTime json.RawMessage `json:"end_time"`
	Lines   json.RawMessage `json:"transcript_lines"`
}

// parseSegments decodes the model reply. Any element lacking an end_time or
// an array of transcript_lines rejects the whole reply; an element whose
// lines are not all strings is skipped.
func parseSegments(raw string) ([]model.Segment, error) {
	items, err := repair.DecodeArray(raw)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errNotSegments
	}

	segments := make([]model.Segment, 0, len(items))
	for i, item := range items {
		var rs rawSegment
		if err := json.Unmarshal(item, &rs); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, errNotSegments)
		}
		endTime, ok := endTimeString(rs.EndTime)
		if !ok {
			return nil, fmt.Errorf("segment %d: missing end_time: %w", i, errNotSegments)
		}
		var rawLines []json.RawMessage
		if len(rs.Lines) == 0 || json.Unmarshal(rs.Lines, &rawLines) != nil || rawLines == nil {
			return nil, fmt.Errorf("segment %d: transcript_lines is not an array: %w", i, errNotSegments)
		}

		lines := make([]string, 0, len(rawLines))
		valid := true
		for _, rl := range rawLines {
			var s string
			if isNull(rl) || json.Unmarshal(rl, &s) != nil {
				valid = false
				break
			}
			lines = append(lines, s)
		}
		if !valid {
			slog.Warn("skipping segment with non-string lines", "end_time", endTime)
			continue
		}
		segments = append(segments, model.Segment{EndTime: endTime, Lines: lines})
	}
	return segments, nil
}

func endTimeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

