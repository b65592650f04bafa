package repair

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when nothing in the reply parses as the wanted shape.
var ErrNoJSON = errors.New("no parseable JSON in model reply")

// DecodeArray repairs raw and parses it as a JSON array.
func DecodeArray(raw string) ([]json.RawMessage, error) {
	candidate := Repair(raw)
	arr, err := parseArray(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return arr, nil
}

// DecodeArrayOrObject parses raw as a JSON array, or as a single object which
// is returned as a one-element array. The reply is tried as-is (minus fences)
// first, then repaired, trying whichever of array or object starts first.
func DecodeArrayOrObject(raw string) ([]json.RawMessage, error) {
	text := StripFences(raw)
	if items, err := parseArrayOrObject(text); err == nil {
		return items, nil
	}

	arrayFirst := true
	if ob, ab := strings.IndexByte(text, '{'), strings.IndexByte(text, '['); ob >= 0 && (ab < 0 || ob < ab) {
		arrayFirst = false
	}

	tryArray := func() ([]json.RawMessage, error) {
		return parseArray(Repair(text))
	}
	tryObject := func() ([]json.RawMessage, error) {
		candidate, ok := ExtractObject(text)
		if !ok {
			return nil, errors.New("no object found")
		}
		return parseObject(Fix(candidate))
	}

	first, second := tryArray, tryObject
	if !arrayFirst {
		first, second = tryObject, tryArray
	}
	if items, err := first(); err == nil {
		return items, nil
	}
	items, err := second()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return items, nil
}

func parseArrayOrObject(s string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseObject(s)
	}
	return parseArray(s)
}

func parseArray(s string) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return nil, err
	}
	if arr == nil {
		return nil, errors.New("null is not an array")
	}
	return arr, nil
}

func parseObject(s string) ([]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("null is not an object")
	}
	return []json.RawMessage{json.RawMessage(strings.TrimSpace(s))}, nil
}
