package storage

import (
	"context"
	"errors"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// DefaultRRFConstant is the k in 1/(k + rank) used by hybrid fusion.
const DefaultRRFConstant = 60

// DefaultTopK is used when a query leaves TopK unset.
const DefaultTopK = 10

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery is returned when a query has neither text nor vector
	ErrEmptyQuery = errors.New("query needs text or a vector")
	// ErrUnknownField is returned by ListDistinct for columns outside the allowed set
	ErrUnknownField = errors.New("unknown field")
)

// Index is the retrieval index the pipeline writes to and the searcher reads from.
type Index interface {
	// Upsert writes each record independently. The returned outcomes are
	// aligned with records; a non-nil error means nothing was written.
	Upsert(ctx context.Context, records []*types.IndexRecord) ([]UpsertOutcome, error)

	// Query runs a text, vector or hybrid query depending on which of
	// Text and Vector are set.
	Query(ctx context.Context, q Query) ([]types.SearchResult, error)

	Exists(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)

	// ListDistinct returns the sorted distinct non-empty values of field.
	ListDistinct(ctx context.Context, field string) ([]string, error)

	// PruneFile deletes records of path whose chunk index is >= keep.
	PruneFile(ctx context.Context, path string, keep int) (int, error)

	Close() error
}

// Query describes a single index lookup.
type Query struct {
	Text        string
	Vector      []float32
	Filter      *types.SearchFilter
	TopK        int
	RRFConstant int
}

// Mode reports which legs the query runs: "text", "vector", "hybrid" or "".
func (q Query) Mode() string {
	hasText := q.Text != ""
	hasVector := len(q.Vector) > 0
	switch {
	case hasText && hasVector:
		return "hybrid"
	case hasVector:
		return "vector"
	case hasText:
		return "text"
	default:
		return ""
	}
}

// UpsertOutcome is the per-record result of Upsert.
type UpsertOutcome struct {
	ID  string
	Err error
}

// OK reports whether the record was written.
func (o UpsertOutcome) OK() bool {
	return o.Err == nil
}

// distinctFields maps ListDistinct field names to columns.
var distinctFields = map[string]string{
	"context_id": "context_id",
	"file_name":  "file_name",
	"file_path":  "file_path",
	"title":      "title",
}
