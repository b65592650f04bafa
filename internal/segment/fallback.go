package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pavelanni/quizgen/internal/model"
)

// MinLines is the smallest chunk the fallback segmenter produces.
const MinLines = 8

// DefaultEndTime labels a segment whose lines carry no timestamp.
const DefaultEndTime = "00:00.000"

var timestampRe = regexp.MustCompile(`\d{2}:\d{2}(?::\d{2})?\.\d{3}`)

// Fallback partitions transcript into consecutive chunks of non-blank lines
// without consulting a model. It returns at least one segment whenever the
// transcript has a non-blank line.
func Fallback(transcript string, desiredSegments int) []model.Segment {
	if desiredSegments < 1 {
		desiredSegments = 1
	}

	var lines []string
	for _, line := range strings.Split(transcript, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	if len(lines) <= MinLines {
		return []model.Segment{{
			EndTime: lastTimestamp(lines[len(lines)-1], DefaultEndTime),
			Lines:   lines,
		}}
	}

	chunkSize := max(MinLines, ceilDiv(len(lines), desiredSegments))
	segments := make([]model.Segment, 0, ceilDiv(len(lines), chunkSize))
	for start := 0; start < len(lines); start += chunkSize {
		end := min(start+chunkSize, len(lines))
		chunk := lines[start:end]
		segments = append(segments, model.Segment{
			EndTime: lastTimestamp(chunk[len(chunk)-1], fmt.Sprintf("00:%02d.000", start)),
			Lines:   chunk,
		})
	}
	return segments
}

// lastTimestamp returns the last timestamp-shaped substring of line, or def.
func lastTimestamp(line, def string) string {
	matches := timestampRe.FindAllString(line, -1)
	if len(matches) == 0 {
		return def
	}
	return matches[len(matches)-1]
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
