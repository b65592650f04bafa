// Package repair turns a language model's raw reply into text that is more
// likely to parse as JSON. It never validates meaning and never fails: the
// worst case is the input handed back unchanged.
package repair

import (
	"regexp"
	"strings"
)

var (
	fenceRegex         = regexp.MustCompile("```[A-Za-z0-9_+-]*\\s*")
	lazyArrayRegex     = regexp.MustCompile(`(?s)\[.*?\]`)
	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)
	objectGapRegex     = regexp.MustCompile(`}\s*{`)
	arrayGapRegex      = regexp.MustCompile(`]\s*\[`)
	whitespaceRegex    = regexp.MustCompile(`\s+`)
)

// Transform is one named textual repair step.
type Transform struct {
	Name  string
	Apply func(string) string
}

// Transforms are applied by Fix in this order.
var Transforms = []Transform{
	{Name: "trailing-commas", Apply: func(s string) string {
		return trailingCommaRegex.ReplaceAllString(s, "$1")
	}},
	{Name: "object-boundaries", Apply: func(s string) string {
		return objectGapRegex.ReplaceAllString(s, "},{")
	}},
	{Name: "array-boundaries", Apply: func(s string) string {
		return arrayGapRegex.ReplaceAllString(s, "],[")
	}},
	{Name: "collapse-whitespace", Apply: func(s string) string {
		return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
	}},
}

// StripFences removes markdown code fence markers, language-tagged or not,
// anywhere in the text.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRegex.ReplaceAllString(s, ""))
}

// Fix runs every transform over s.
func Fix(s string) string {
	for _, t := range Transforms {
		s = t.Apply(s)
	}
	return s
}

// Repair strips fences, narrows the text to the first JSON array it can find
// and applies the textual fixes. The result still has to be parsed.
func Repair(raw string) string {
	text := StripFences(raw)
	if candidate, ok := ExtractArray(text); ok {
		text = candidate
	}
	return Fix(text)
}

// ExtractArray returns the first bracket-balanced array in s. When no
// balanced array exists it falls back to the shortest "[...]" match.
func ExtractArray(s string) (string, bool) {
	if candidate, ok := extractBalanced(s, '['); ok {
		return candidate, true
	}
	if m := lazyArrayRegex.FindString(s); m != "" {
		return m, true
	}
	return "", false
}

// ExtractObject returns the first brace-balanced object in s.
func ExtractObject(s string) (string, bool) {
	return extractBalanced(s, '{')
}

// extractBalanced scans from the first opener and returns the substring that
// closes it, skipping brackets inside JSON strings.
func extractBalanced(s string, opener byte) (string, bool) {
	start := strings.IndexByte(s, opener)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
