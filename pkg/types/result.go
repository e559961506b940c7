package types

import "time"

// SearchFilter restricts results by document metadata. Empty fields match
// everything. The same filter applies to text, vector and hybrid queries.
type SearchFilter struct {
	ContextID    string
	FileName     string   // Glob pattern against the file base name
	Tags         []string // Record must carry all of them
	ChunkPattern string   // Glob pattern against IndexRecord.ChunkKey
}

// IsEmpty reports whether the filter matches everything
func (f *SearchFilter) IsEmpty() bool {
	return f == nil || (f.ContextID == "" && f.FileName == "" && len(f.Tags) == 0 && f.ChunkPattern == "")
}

// SearchResult represents a single ranked record
type SearchResult struct {
	// Identification
	RecordID string `json:"record_id"`
	Rank     int    `json:"rank"` // Position in result set (1-based)

	// Scoring (mode dependent: bm25, cosine similarity or RRF)
	Score float64 `json:"score"`

	// Record data
	FilePath     string    `json:"file_path"`
	FileName     string    `json:"file_name"`
	ChunkIndex   int       `json:"chunk_index"`
	Title        string    `json:"title"`
	ContextID    string    `json:"context_id"`
	Tags         []string  `json:"tags"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"last_modified"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.RecordID == "" {
		return ErrInvalidRecordID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.FilePath == "" {
		return ErrMissingFilePath
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
