package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionType is a quiz question format code.
type QuestionType string

const (
	// TypeSOL is a single-correct-option question.
	TypeSOL QuestionType = "SOL"
	// TypeSML is a multiple-correct-options question.
	TypeSML QuestionType = "SML"
	// TypeOTL is an ordering question.
	TypeOTL QuestionType = "OTL"
	// TypeNAT is a numeric-answer question.
	TypeNAT QuestionType = "NAT"
	// TypeDES is a descriptive (open answer) question.
	TypeDES QuestionType = "DES"
)

// QuestionTypes lists the known question type codes in canonical order.
var QuestionTypes = []QuestionType{TypeSOL, TypeSML, TypeOTL, TypeNAT, TypeDES}

// IsKnown reports whether t is one of the known question type codes.
func (t QuestionType) IsKnown() bool {
	for _, k := range QuestionTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Segment is a contiguous span of transcript lines grouped under one end time.
type Segment struct {
	EndTime string   `json:"end_time"`
	Lines   []string `json:"transcript_lines"`
}

// SegmentationResult maps a segment's end time to its cleaned transcript text.
type SegmentationResult map[string]string

// TypeCount is one entry of a QuestionTypeSpec.
type TypeCount struct {
	Type  QuestionType
	Count int
}

// QuestionTypeSpec is an ordered mapping from question type to requested count.
// A zero count means the type is skipped.
type QuestionTypeSpec []TypeCount

// UnmarshalJSON decodes a JSON object while keeping its key order. A repeated
// key keeps its first position and its last count.
// Counts that are not non-negative JSON integers decode as zero.
func (s *QuestionTypeSpec) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("question type spec: expected object, got %v", tok)
	}

	var out QuestionTypeSpec
	seen := make(map[QuestionType]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("question type spec %q: %w", key, err)
		}
		tc := TypeCount{Type: QuestionType(key), Count: parseCount(raw)}
		if i, dup := seen[tc.Type]; dup {
			out[i] = tc
			continue
		}
		seen[tc.Type] = len(out)
		out = append(out, tc)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalJSON encodes the spec as a JSON object in entry order.
func (s QuestionTypeSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tc := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(tc.Type))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", tc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func parseCount(raw json.RawMessage) int {
	text := strings.TrimSpace(string(raw))
	if text == "" || strings.ContainsAny(text, ".eE\"") {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil || n < 0 {
		return 0
	}
	return n
}

// Option is one answer option of a generated question.
type Option struct {
	Text        string `json:"text"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation"`
}

// GeneratedQuestion is the canonical question shape returned to callers.
type GeneratedQuestion struct {
	QuestionText     string          `json:"questionText"`
	Options          []Option        `json:"options"`
	Solution         json.RawMessage `json:"solution"`
	IsParameterized  bool            `json:"isParameterized"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
	Points           int             `json:"points"`
	SegmentID        string          `json:"segmentId"`
	QuestionType     QuestionType    `json:"questionType"`
}
