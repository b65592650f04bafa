package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseTimestamp parses MM:SS.mmm or HH:MM:SS.mmm.
func ParseTimestamp(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	secPart := parts[len(parts)-1]
	sec, err := strconv.ParseFloat(secPart, 64)
	if err != nil || sec < 0 || strings.ContainsAny(secPart, "eE+-") {
		return 0, false
	}
	total := time.Duration(sec * float64(time.Second))

	unit := time.Minute
	for i := len(parts) - 2; i >= 0; i-- {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return 0, false
		}
		total += time.Duration(n) * unit
		unit *= 60
	}
	return total, true
}

// OrderedIDs returns the segment ids in chronological order of their end
// times. Ids that are not timestamps sort last, lexically.
func (r SegmentationResult) OrderedIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, oki := ParseTimestamp(ids[i])
		tj, okj := ParseTimestamp(ids[j])
		switch {
		case oki && okj:
			if ti != tj {
				return ti < tj
			}
			return ids[i] < ids[j]
		case oki != okj:
			return oki
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}
