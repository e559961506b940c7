// Package searcher answers queries over the document index.
//
// Three modes are supported:
//   - hybrid (default): full-text and vector legs fused with Reciprocal Rank Fusion
//   - vector: cosine similarity against the embedded query
//   - text: FTS5 bm25 over chunk content and title ("keyword" is an alias)
//
// # Basic Usage
//
//	s, err := searcher.New(index, coordinator, searcher.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:  "how do I rotate keys",
//	    Mode:   searcher.SearchModeHybrid,
//	    TopK:   10,
//	    Filter: &types.SearchFilter{ContextID: "runbooks"},
//	})
//
// # Validation
//
// An empty query, a TopK below 1 or an unknown mode returns an error matching
// types.ErrInvalidQuery. TopK above MaxTopK is clamped.
//
// # Degradation
//
// When the query cannot be embedded, vector mode fails with an error matching
// types.ErrEmbeddingFailed. Hybrid mode runs the text leg alone and sets
// SearchResponse.Degraded; EffectiveMode reports "text".
//
// # Caching
//
// Responses are kept in an LRU cache with a TTL. Degraded responses are not
// cached. Call InvalidateCache after ingesting.
package searcher
