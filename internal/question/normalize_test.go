package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/quizgen/internal/model"
)

func normalize(t *testing.T, raw string) model.GeneratedQuestion {
	t.Helper()
	q, err := Normalize(json.RawMessage(raw), "01:00.000", model.TypeSOL)
	if err != nil {
		t.Fatalf("Normalize(%s): %v", raw, err)
	}
	return q
}

func assertOptions(t *testing.T, got, want []model.Option) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("options = %+v, want %+v", got, want)
	}
}

// captureLog routes the default slog logger into a buffer for the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestNormalizeOptionsArrayWins(t *testing.T) {
	q := normalize(t, `{
		"questionText": "Which sort is stable?",
		"options": [
			{"text": "Merge sort", "correct": true, "explanation": "Equal keys keep order."},
			{"text": "Heap sort", "correct": false, "explanation": "Sifting reorders equal keys."}
		],
		"solution": {
			"correctLotItem": {"text": "ignored"},
			"incorrectLotItems": [{"text": "also ignored"}]
		}
	}`)

	if q.QuestionText != "Which sort is stable?" {
		t.Errorf("QuestionText = %q", q.QuestionText)
	}
	assertOptions(t, q.Options, []model.Option{
		{Text: "Merge sort", Correct: true, Explanation: "Equal keys keep order."},
		{Text: "Heap sort", Correct: false, Explanation: "Sifting reorders equal keys."},
	})

	var sol map[string]any
	if err := json.Unmarshal(q.Solution, &sol); err != nil {
		t.Fatalf("solution is not an object: %s", q.Solution)
	}
	if _, ok := sol["correctLotItem"]; !ok {
		t.Errorf("solution lost correctLotItem: %s", q.Solution)
	}
}

func TestNormalizeSolutionLotItems(t *testing.T) {
	q := normalize(t, `{
		"question": {"text": "2 + 2 = ?", "isParameterized": true, "timeLimitSeconds": 90, "points": 8},
		"solution": {
			"correctLotItem": {"text": "4", "explanation": "Arithmetic."},
			"incorrectLotItems": [
				{"text": "3", "explaination": "Off by one."},
				{"text": "5", "explanation": "Off by one the other way."},
				{"text": "22", "explaination": "Concatenation.", "explanation": "unused"}
			]
		}
	}`)

	if q.QuestionText != "2 + 2 = ?" {
		t.Errorf("QuestionText = %q", q.QuestionText)
	}
	assertOptions(t, q.Options, []model.Option{
		{Text: "3", Correct: false, Explanation: "Off by one."},
		{Text: "5", Correct: false, Explanation: "Off by one the other way."},
		{Text: "22", Correct: false, Explanation: "Concatenation."},
		{Text: "4", Correct: true, Explanation: "Arithmetic."},
	})
	if !q.IsParameterized || q.TimeLimitSeconds != 90 || q.Points != 8 {
		t.Errorf("nested fields = %v/%d/%d, want true/90/8", q.IsParameterized, q.TimeLimitSeconds, q.Points)
	}
}

func TestNormalizeEmptyExplainationFallsThrough(t *testing.T) {
	q := normalize(t, `{"solution": {
		"correctLotItem": {"text": "b", "explaination": "", "explanation": "why b"},
		"incorrectLotItems": [{"text": "a", "explaination": "", "explanation": "why a"}]
	}}`)
	assertOptions(t, q.Options, []model.Option{
		{Text: "a", Correct: false, Explanation: "why a"},
		{Text: "b", Correct: true, Explanation: "why b"},
	})
}

func TestNormalizeLotItemsForceCorrectFlags(t *testing.T) {
	q := normalize(t, `{"solution": {
		"correctLotItem": {"text": "yes", "correct": false},
		"incorrectLotItems": [{"text": "no", "correct": true}]
	}}`)
	assertOptions(t, q.Options, []model.Option{{Text: "no"}, {Text: "yes", Correct: true}})
}

func TestNormalizeOnlyCorrectLotItem(t *testing.T) {
	q := normalize(t, `{"solution": {"correctLotItem": "42"}}`)
	assertOptions(t, q.Options, []model.Option{{Text: "42", Correct: true}})
}

func TestNormalizeDefaults(t *testing.T) {
	q := normalize(t, `{}`)
	if q.QuestionText != "" {
		t.Errorf("QuestionText = %q, want empty", q.QuestionText)
	}
	if q.Options == nil || len(q.Options) != 0 {
		t.Errorf("Options = %#v, want empty non-nil slice", q.Options)
	}
	if string(q.Solution) != `""` {
		t.Errorf("Solution = %s, want \"\"", q.Solution)
	}
	if q.IsParameterized {
		t.Error("IsParameterized should default to false")
	}
	if q.TimeLimitSeconds != DefaultTimeLimitSeconds || q.Points != DefaultPoints {
		t.Errorf("defaults = %d/%d", q.TimeLimitSeconds, q.Points)
	}
	if q.SegmentID != "01:00.000" || q.QuestionType != model.TypeSOL {
		t.Errorf("tags = %q/%q", q.SegmentID, q.QuestionType)
	}

	out, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), `"options":[]`) {
		t.Errorf("encoded question has no empty options array: %s", out)
	}
}

func TestNormalizeQuestionTextPriority(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"nested wins", `{"question": {"text": "nested"}, "questionText": "flat"}`, "nested"},
		{"flat", `{"questionText": "flat"}`, "flat"},
		{"nested without text", `{"question": {"points": 3}, "questionText": "flat"}`, "flat"},
		{"empty nested text", `{"question": {"text": ""}, "questionText": "Real question"}`, "Real question"},
		{"empty flat text", `{"questionText": "", "question": "plain"}`, "plain"},
		{"question as string", `{"question": "plain"}`, "plain"},
		{"flat beats plain", `{"question": "plain", "questionText": "flat"}`, "flat"},
		{"non-string text", `{"questionText": 7}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(t, tt.raw).QuestionText; got != tt.want {
				t.Errorf("QuestionText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeNumericFields(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		timeLimit int
		points    int
	}{
		{"top level", `{"timeLimitSeconds": 120, "points": 10}`, 120, 10},
		{"nested beats top level", `{"question": {"timeLimitSeconds": 30}, "timeLimitSeconds": 120}`, 30, 5},
		{"integral float", `{"timeLimitSeconds": 90.0, "points": 6.0}`, 90, 6},
		{"fractional float", `{"timeLimitSeconds": 90.5}`, 60, 5},
		{"string", `{"timeLimitSeconds": "90", "points": "high"}`, 60, 5},
		{"negative", `{"points": -1}`, 60, 5},
		{"null", `{"timeLimitSeconds": null}`, 60, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := normalize(t, tt.raw)
			if q.TimeLimitSeconds != tt.timeLimit || q.Points != tt.points {
				t.Errorf("got %d/%d, want %d/%d", q.TimeLimitSeconds, q.Points, tt.timeLimit, tt.points)
			}
		})
	}
}

func TestNormalizeStringOptions(t *testing.T) {
	logs := captureLog(t)

	q := normalize(t, `{"options": ["a", {"text": "b", "correct": true}, 3, null]}`)
	assertOptions(t, q.Options, []model.Option{{Text: "a"}, {Text: "b", Correct: true}})

	if got := strings.Count(logs.String(), "dropping option"); got != 2 {
		t.Errorf("logged %d dropped options, want 2:\n%s", got, logs)
	}
}

func TestNormalizeWarnsOnDroppedLotItem(t *testing.T) {
	logs := captureLog(t)

	q := normalize(t, `{"solution": {"correctLotItem": 7, "incorrectLotItems": [true, "x"]}}`)
	assertOptions(t, q.Options, []model.Option{{Text: "x"}})

	out := logs.String()
	if !strings.Contains(out, "dropping incorrect lot item") || !strings.Contains(out, "dropping correct lot item") {
		t.Errorf("missing drop warnings:\n%s", out)
	}
}

func TestNormalizeSolutionPassThrough(t *testing.T) {
	if got := string(normalize(t, `{"solution": "Merge sort"}`).Solution); got != `"Merge sort"` {
		t.Errorf("string solution = %s", got)
	}
	if got := string(normalize(t, `{"solution": 42}`).Solution); got != `42` {
		t.Errorf("numeric solution = %s", got)
	}
}

func TestNormalizeRejectsNonObject(t *testing.T) {
	for _, raw := range []string{`"text"`, `[1, 2]`, `null`, `42`, ``} {
		if _, err := Normalize(json.RawMessage(raw), "s", model.TypeSOL); !errors.Is(err, ErrNotObject) {
			t.Errorf("Normalize(%q) error = %v, want ErrNotObject", raw, err)
		}
	}
}

func TestDetectShape(t *testing.T) {
	tests := []struct {
		raw  string
		want Shape
	}{
		{`{"options": []}`, ShapeOptionsArray},
		{`{"options": [], "solution": {"correctLotItem": "x"}}`, ShapeOptionsArray},
		{`{"options": "x", "solution": {"correctLotItem": "x"}}`, ShapeSolutionLotItems},
		{`{"solution": {"incorrectLotItems": []}}`, ShapeSolutionLotItems},
		{`{"solution": {"other": 1}}`, ShapeNeither},
		{`{"solution": "text"}`, ShapeNeither},
		{`{}`, ShapeNeither},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := DetectShape(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("DetectShape = %v, want %v", got, tt.want)
			}
		})
	}
}
