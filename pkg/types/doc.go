// Package types provides shared type definitions for the docsearch pipeline.
//
// This package defines the typed records passed between the loader, chunker,
// embedding coordinator, uploader and retrieval engine, plus the error
// taxonomy those components return.
//
// # Core Types
//
// SourceDocument is a snapshot of one file on disk, with its extracted
// metadata:
//
//	doc := &types.SourceDocument{
//	    Path:    "/notes/project-x/setup.md",
//	    Body:    body,
//	    Metadata: types.DocumentMetadata{
//	        Title:     "Setup",
//	        ContextID: "project-x",
//	        Tags:      []string{"install", "project-x"},
//	    },
//	}
//
// Chunk is a bounded fragment of a document body. IndexRecord is what the
// retrieval index stores, one per chunk:
//
//	record := &types.IndexRecord{
//	    ID:         id, // pure function of (FilePath, ChunkIndex)
//	    FilePath:   doc.Path,
//	    ChunkIndex: 0,
//	    Content:    chunk.Content,
//	    Vector:     vector,
//	}
//
// # Errors
//
// Components wrap the sentinel errors so callers can match them:
//
//	if errors.Is(err, types.ErrInvalidQuery) {
//	    // report to the caller, do not retry
//	}
//
// ErrDimensionMismatch wraps ErrEmbeddingFailed, so a dimension mismatch is
// also an embedding failure.
package types
