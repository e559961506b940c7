package types

import (
	"fmt"
	"time"
)

// IndexRecord is the unit stored in the retrieval index. ID is derived from
// (FilePath, ChunkIndex) so re-uploads overwrite rather than duplicate.
type IndexRecord struct {
	ID string

	// Location
	FilePath   string
	FileName   string
	ChunkIndex int
	ChunkKey   string // "<file name>#<chunk index>", matched by chunk-pattern filters

	// Content
	Content string

	// Document metadata
	Title        string
	ContextID    string
	Tags         []string
	LastModified time.Time

	// Vector is nil when the embedding was absent or malformed.
	Vector []float32
}

// ChunkKey formats the key used by chunk-pattern filters.
func ChunkKey(fileName string, index int) string {
	return fmt.Sprintf("%s#%d", fileName, index)
}

// Validate checks required fields before the record reaches the index
func (r *IndexRecord) Validate() error {
	if r.ID == "" {
		return ErrInvalidRecordID
	}
	if r.FilePath == "" {
		return ErrMissingFilePath
	}
	if r.ChunkIndex < 0 {
		return ErrInvalidChunkIdx
	}
	if r.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// HasVector reports whether a vector is attached.
func (r *IndexRecord) HasVector() bool {
	return len(r.Vector) > 0
}
