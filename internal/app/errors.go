package app

import (
	"errors"
	"fmt"

	"gopherai-docqa/internal/retrieval"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("resource not found")
	ErrChunkIndexConflict   = errors.New("chunk index already used with different content")
	ErrDimensionMismatch    = retrieval.ErrDimensionMismatch
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrIngestEnqueue        = errors.New("ingest job enqueue failed")
)

// ValidationError names the offending field. It matches ErrInvalidInput with
// errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
