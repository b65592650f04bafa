package model

import (
	"encoding/json"
	"time"
)

// RunKind identifies which engine produced a stored run.
type RunKind string

const (
	RunSegmentation RunKind = "segmentation"
	RunQuestions    RunKind = "questions"
)

// Run is one persisted engine invocation.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
	Input     json.RawMessage `json:"input"`
	Output    json.RawMessage `json:"output"`
}

// SegmentationInput is the stored input of a segmentation run.
type SegmentationInput struct {
	Transcript      string `json:"transcript"`
	DesiredSegments int    `json:"desired_segments"`
}

// QuestionsInput is the stored input of a question generation run.
type QuestionsInput struct {
	Segments SegmentationResult `json:"segments"`
	Specs    []QuestionTypeSpec `json:"global_question_specification"`
}

// RunExport is the top-level JSON structure written by the export command.
type RunExport struct {
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Runs       []Run     `json:"runs"`
}
