package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty transcripts, segment maps or specs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSegmentationFailed is returned when the text-generation call made
	// during segmentation fails.
	ErrSegmentationFailed = errors.New("segmentation failed")
)

// GenerationError describes a failed call to a text-generation backend.
type GenerationError struct {
	Backend    string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation: http %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the backend HTTP status, or 0.
func (e *GenerationError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
