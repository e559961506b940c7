package types

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Callers match with errors.Is; components wrap these
// with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrDirectoryNotFound is fatal to a discovery call, not to the process.
	ErrDirectoryNotFound = errors.New("directory not found")

	// ErrMetadataExtraction is recovered locally with degraded metadata.
	ErrMetadataExtraction = errors.New("metadata extraction failed")

	// ErrEmbeddingFailed is recovered locally with a sentinel vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch is treated as an embedding failure.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrEmbeddingFailed)

	// ErrUploadFailed is partitioned per record.
	ErrUploadFailed = errors.New("index upload failed")

	// ErrInvalidQuery is surfaced to the caller and never retried.
	ErrInvalidQuery = errors.New("invalid query")
)

// Record validation errors
var (
	ErrInvalidRecordID = errors.New("record ID is required")
	ErrMissingFilePath = errors.New("file path is required")
	ErrInvalidChunkIdx = errors.New("chunk index must be >= 0")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrInvalidRank     = errors.New("rank must be >= 1")
)

// ValidationError describes a rejected field on a typed record or request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewInvalidQuery returns a ValidationError that matches ErrInvalidQuery.
func NewInvalidQuery(field, message string) error {
	return fmt.Errorf("%w: %w", ErrInvalidQuery, &ValidationError{Field: field, Message: message})
}
