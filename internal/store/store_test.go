package store

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/pavelanni/quizgen/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.SaveRun(model.Run{
		Kind:   model.RunSegmentation,
		Model:  "gemma3",
		Input:  json.RawMessage(`{"transcript":"hello","desired_segments":3}`),
		Output: json.RawMessage(`{"00:00.000":"hello"}`),
	})
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated ID")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("expected creation time")
	}

	got, err := s.GetRun(saved.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Kind != model.RunSegmentation || got.Model != "gemma3" {
		t.Errorf("got kind %q model %q", got.Kind, got.Model)
	}
	if string(got.Output) != `{"00:00.000":"hello"}` {
		t.Errorf("output = %s", got.Output)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}

	// Not found.
	_, err = s.GetRun("no-such-run")
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestSaveRunRejectsUnknownKind(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveRun(model.Run{Kind: "grading"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRecordRun(t *testing.T) {
	s := newTestStore(t)

	in := model.QuestionsInput{
		Segments: model.SegmentationResult{"01:00.000": "text"},
		Specs:    []model.QuestionTypeSpec{{{Type: model.TypeSOL, Count: 2}}},
	}
	out := []model.GeneratedQuestion{{QuestionText: "Q", Options: []model.Option{}, Solution: json.RawMessage(`""`)}}

	r, err := s.RecordRun(model.RunQuestions, "gemma3", in, out)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, err := s.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	var gotIn model.QuestionsInput
	if err := json.Unmarshal(got.Input, &gotIn); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if gotIn.Segments["01:00.000"] != "text" || len(gotIn.Specs) != 1 || gotIn.Specs[0][0].Count != 2 {
		t.Errorf("input round trip = %+v", gotIn)
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)

	// Empty DB.
	runs, err := s.ListRuns("")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, kind := range []model.RunKind{model.RunQuestions, model.RunSegmentation, model.RunQuestions} {
		_, err := s.SaveRun(model.Run{
			Kind:      kind,
			CreatedAt: base.Add(time.Duration(2-i) * time.Hour),
			Input:     json.RawMessage(`{}`),
			Output:    json.RawMessage(`[]`),
		})
		if err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	all, err := s.ListRuns("")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Errorf("runs not ordered oldest first: %v before %v", all[i-1].CreatedAt, all[i].CreatedAt)
		}
	}

	questions, err := s.ListRuns(model.RunQuestions)
	if err != nil {
		t.Fatalf("ListRuns(questions): %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("expected 2 question runs, got %d", len(questions))
	}

	n, err := s.RunCount(model.RunSegmentation)
	if err != nil {
		t.Fatalf("RunCount: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 segmentation run, got %d", n)
	}
}

func TestSaveRunDefaultsEmptyJSON(t *testing.T) {
	s := newTestStore(t)
	r, err := s.SaveRun(model.Run{Kind: model.RunSegmentation})
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if string(got.Input) != "null" || string(got.Output) != "null" {
		t.Errorf("input %s output %s", got.Input, got.Output)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("schema_version")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("schema_version = %q, want %q", v, schemaVersion)
	}

	// Missing key.
	v, err = s.GetMetadata("nope")
	if err != nil || v != "" {
		t.Errorf("missing key = %q, %v", v, err)
	}

	if err := s.SetMetadata("k", "1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("k", "2"); err != nil {
		t.Fatalf("SetMetadata upsert: %v", err)
	}
	if v, _ := s.GetMetadata("k"); v != "2" {
		t.Errorf("k = %q, want 2", v)
	}
}

func TestExportRuns(t *testing.T) {
	s := newTestStore(t)

	last, err := s.LastExport()
	if err != nil {
		t.Fatalf("LastExport: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("expected zero last export, got %v", last)
	}

	exp, err := s.ExportRuns()
	if err != nil {
		t.Fatalf("ExportRuns: %v", err)
	}
	if exp.Count != 0 || exp.Runs == nil {
		t.Errorf("empty export = %+v", exp)
	}

	if _, err := s.RecordRun(model.RunSegmentation, "m", model.SegmentationInput{Transcript: "x", DesiredSegments: 1}, model.SegmentationResult{"00:00.000": "x"}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	exp, err = s.ExportRuns()
	if err != nil {
		t.Fatalf("ExportRuns: %v", err)
	}
	if exp.Count != 1 || len(exp.Runs) != 1 {
		t.Fatalf("export count = %d, runs = %d", exp.Count, len(exp.Runs))
	}

	data, err := json.Marshal(exp)
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}
	var decoded struct {
		Runs []struct {
			Output map[string]string `json:"output"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if decoded.Runs[0].Output["00:00.000"] != "x" {
		t.Errorf("exported output = %v", decoded.Runs[0].Output)
	}

	last, err = s.LastExport()
	if err != nil {
		t.Fatalf("LastExport: %v", err)
	}
	if last.IsZero() {
		t.Error("expected last export to be recorded")
	}
}
