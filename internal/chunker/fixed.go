package chunker

import "github.com/dshills/docsearch-mcp/pkg/types"

// FixedChunker splits text into plain fixed-size windows with overlap.
type FixedChunker struct {
	opts Options
}

// NewFixedChunker creates a fixed-size chunker
func NewFixedChunker(opts Options) *FixedChunker {
	return &FixedChunker{opts: opts.normalize()}
}

// Name returns the strategy name
func (c *FixedChunker) Name() string { return StrategyFixed }

// Split splits text into overlapping windows
func (c *FixedChunker) Split(text string) []Span {
	return split(text, c.opts, nil)
}

// Chunk splits the document body
func (c *FixedChunker) Chunk(doc *types.SourceDocument) []types.Chunk {
	return toChunks(doc, c.Split(doc.Body))
}
