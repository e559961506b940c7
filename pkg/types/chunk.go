package types

import (
	"errors"
	"unicode/utf8"
)

// Chunk is an ordered fragment of a document body, the atomic unit of
// embedding and indexing.
type Chunk struct {
	// Identification
	DocumentPath string
	Index        int // 0-based sequence index within the document

	// Content
	Content string // Trimmed window text
	Length  int    // Rune count of Content

	// Location of the untrimmed window in the body, in runes
	StartOffset int
	EndOffset   int
}

// NewChunk builds a chunk and computes its length.
func NewChunk(path string, index int, content string, start, end int) Chunk {
	return Chunk{
		DocumentPath: path,
		Index:        index,
		Content:      content,
		Length:       utf8.RuneCountInString(content),
		StartOffset:  start,
		EndOffset:    end,
	}
}

// Validate checks if the chunk is well formed
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}

	if c.Index < 0 {
		return ErrInvalidChunkIdx
	}

	if c.StartOffset < 0 || c.EndOffset < c.StartOffset {
		return errors.New("chunk window offsets are invalid")
	}

	return nil
}

// EstimateTokenCount gives a rough token estimate (characters / 4)
func (c *Chunk) EstimateTokenCount() int {
	return c.Length / 4
}
