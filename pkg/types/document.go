package types

import (
	"errors"
	"path/filepath"
	"time"
)

// SourceDocument is an immutable snapshot of one file on disk at read time.
// It is never persisted.
type SourceDocument struct {
	// Identification
	Path string // Absolute path

	// Content
	Content string // Raw file content
	Body    string // Content with the header block removed

	// Metadata
	Metadata  DocumentMetadata
	SizeBytes int64
}

// DocumentMetadata holds the structural metadata extracted from a document.
type DocumentMetadata struct {
	Title        string
	ContextID    string // Immediate parent directory name
	Tags         []string
	LastModified time.Time

	// Degraded is set when header parsing failed and the minimal record was used.
	Degraded bool
}

// FileName returns the base name of the document path.
func (d *SourceDocument) FileName() string {
	return filepath.Base(d.Path)
}

// Validate checks the document snapshot
func (d *SourceDocument) Validate() error {
	if d.Path == "" {
		return ErrMissingFilePath
	}
	if !filepath.IsAbs(d.Path) {
		return errors.New("document path must be absolute")
	}
	if d.Metadata.ContextID == "" {
		return errors.New("context ID is required")
	}
	return nil
}
