package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pavelanni/quizgen/internal/model"
)

// Defaults applied when a reply omits a field.
const (
	DefaultTimeLimitSeconds = 60
	DefaultPoints           = 5
)

// ErrNotObject is returned by Normalize for reply elements that are not JSON
// objects.
var ErrNotObject = errors.New("question is not a JSON object")

// Shape is the option layout a model reply used.
type Shape int

const (
	// ShapeNeither carries no usable options.
	ShapeNeither Shape = iota
	// ShapeOptionsArray carries an explicit "options" array.
	ShapeOptionsArray
	// ShapeSolutionLotItems derives options from solution.correctLotItem and
	// solution.incorrectLotItems.
	ShapeSolutionLotItems
)

func (s Shape) String() string {
	switch s {
	case ShapeOptionsArray:
		return "options"
	case ShapeSolutionLotItems:
		return "solution-lot-items"
	default:
		return "neither"
	}
}

type rawQuestion struct {
	Question         json.RawMessage `json:"question"`
	QuestionText     json.RawMessage `json:"questionText"`
	Options          json.RawMessage `json:"options"`
	Solution         json.RawMessage `json:"solution"`
	IsParameterized  json.RawMessage `json:"isParameterized"`
	TimeLimitSeconds json.RawMessage `json:"timeLimitSeconds"`
	Points           json.RawMessage `json:"points"`
}

type nestedQuestion struct {
	Text             json.RawMessage `json:"text"`
	IsParameterized  json.RawMessage `json:"isParameterized"`
	TimeLimitSeconds json.RawMessage `json:"timeLimitSeconds"`
	Points           json.RawMessage `json:"points"`
}

type rawSolution struct {
	CorrectLotItem    json.RawMessage   `json:"correctLotItem"`
	IncorrectLotItems []json.RawMessage `json:"incorrectLotItems"`
}

type rawItem struct {
	Text         json.RawMessage `json:"text"`
	Correct      json.RawMessage `json:"correct"`
	Explanation  json.RawMessage `json:"explanation"`
	Explaination json.RawMessage `json:"explaination"`
}

// Normalize maps one question object from a model reply onto the canonical
// question shape, tagging it with segmentID and questionType. Missing or
// mistyped fields fall back to defaults; only a non-object input is an error.
func Normalize(raw json.RawMessage, segmentID string, questionType model.QuestionType) (model.GeneratedQuestion, error) {
	var rq rawQuestion
	if !isObject(raw) || json.Unmarshal(raw, &rq) != nil {
		return model.GeneratedQuestion{}, ErrNotObject
	}

	var nested nestedQuestion
	if isObject(rq.Question) {
		_ = json.Unmarshal(rq.Question, &nested)
	}

	q := model.GeneratedQuestion{
		QuestionText:     firstString(nested.Text, rq.QuestionText, rq.Question),
		Solution:         json.RawMessage(`""`),
		IsParameterized:  firstBool(false, nested.IsParameterized, rq.IsParameterized),
		TimeLimitSeconds: firstInt(DefaultTimeLimitSeconds, nested.TimeLimitSeconds, rq.TimeLimitSeconds),
		Points:           firstInt(DefaultPoints, nested.Points, rq.Points),
		SegmentID:        segmentID,
		QuestionType:     questionType,
	}
	if len(rq.Solution) > 0 {
		q.Solution = append(json.RawMessage(nil), bytes.TrimSpace(rq.Solution)...)
	}

	_, q.Options = resolveOptions(rq)
	return q, nil
}

// DetectShape reports which option layout raw uses.
func DetectShape(raw json.RawMessage) Shape {
	var rq rawQuestion
	if json.Unmarshal(raw, &rq) != nil {
		return ShapeNeither
	}
	shape, _ := resolveOptions(rq)
	return shape
}

// resolveOptions picks the first shape present, in priority order: an
// explicit options array, then solution lot items. Shapes are never merged.
func resolveOptions(rq rawQuestion) (Shape, []model.Option) {
	var items []json.RawMessage
	if isArray(rq.Options) && json.Unmarshal(rq.Options, &items) == nil {
		options := make([]model.Option, 0, len(items))
		for i, item := range items {
			opt, ok := toOption(item, false)
			if !ok {
				slog.Warn("dropping option that is neither object nor string", "index", i, "value", string(item))
				continue
			}
			options = append(options, opt)
		}
		return ShapeOptionsArray, options
	}

	var sol rawSolution
	if isObject(rq.Solution) && json.Unmarshal(rq.Solution, &sol) == nil &&
		(sol.IncorrectLotItems != nil || hasValue(sol.CorrectLotItem)) {
		options := make([]model.Option, 0, len(sol.IncorrectLotItems)+1)
		for i, item := range sol.IncorrectLotItems {
			opt, ok := toOption(item, false)
			if !ok {
				slog.Warn("dropping incorrect lot item that is neither object nor string", "index", i, "value", string(item))
				continue
			}
			opt.Correct = false
			options = append(options, opt)
		}
		if hasValue(sol.CorrectLotItem) {
			if opt, ok := toOption(sol.CorrectLotItem, true); ok {
				opt.Correct = true
				options = append(options, opt)
			} else {
				slog.Warn("dropping correct lot item that is neither object nor string", "value", string(sol.CorrectLotItem))
			}
		}
		return ShapeSolutionLotItems, options
	}

	return ShapeNeither, []model.Option{}
}

// toOption accepts an option object or a bare string used as its text.
func toOption(raw json.RawMessage, correct bool) (model.Option, bool) {
	var s string
	if !isNull(raw) && json.Unmarshal(raw, &s) == nil {
		return model.Option{Text: s, Correct: correct}, true
	}
	var ri rawItem
	if !isObject(raw) || json.Unmarshal(raw, &ri) != nil {
		return model.Option{}, false
	}
	return model.Option{
		Text:        firstString(ri.Text),
		Correct:     firstBool(correct, ri.Correct),
		Explanation: firstString(ri.Explaination, ri.Explanation),
	}, true
}

// firstString returns the first candidate that is a non-empty string.
func firstString(candidates ...json.RawMessage) string {
	for _, c := range candidates {
		var s string
		if hasValue(c) && json.Unmarshal(c, &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

func firstBool(def bool, candidates ...json.RawMessage) bool {
	for _, c := range candidates {
		var b bool
		if hasValue(c) && json.Unmarshal(c, &b) == nil {
			return b
		}
	}
	return def
}

// firstInt accepts JSON integers and integral floats such as 60.0.
func firstInt(def int, candidates ...json.RawMessage) int {
	for _, c := range candidates {
		var f float64
		if !hasValue(c) || json.Unmarshal(c, &f) != nil {
			continue
		}
		if f == math.Trunc(f) && f >= 0 && f <= math.MaxInt32 {
			return int(f)
		}
	}
	return def
}

func hasValue(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) > 0 && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

// normalizeAll normalizes every element of a reply. A single non-object
// element rejects the whole reply.
func normalizeAll(items []json.RawMessage, segmentID string, questionType model.QuestionType) ([]model.GeneratedQuestion, error) {
	out := make([]model.GeneratedQuestion, 0, len(items))
	for i, item := range items {
		q, err := Normalize(item, segmentID, questionType)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, q)
	}
	return out, nil
}
