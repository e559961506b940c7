// Package storage is the retrieval index: a local SQLite database holding one
// row per chunk, a full-text index over chunk content and title, and the
// chunk's embedding vector.
//
// # Schema
//
//   - records: one row per chunk, keyed by the deterministic record ID
//   - records_fts: FTS5 external-content table over content and title,
//     kept in sync by triggers
//   - record_tags: (record_id, tag) pairs backing the tag filter
//   - schema_version: applied migrations, compared with semver
//
// # Basic Usage
//
//	idx, err := storage.NewSQLiteIndex("docsearch.db", storage.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	outcomes, err := idx.Upsert(ctx, records)
//	// err != nil: nothing written. Otherwise check each outcome.
//
//	results, err := idx.Query(ctx, storage.Query{
//	    Text:   "install guide",
//	    Vector: queryVec,
//	    Filter: &types.SearchFilter{ContextID: "guides"},
//	    TopK:   5,
//	})
//
// # Query Modes
//
// Which legs run depends on the fields set on Query:
//
//   - Text only: bm25 over records_fts, score = -bm25
//   - Vector only: cosine similarity, records with another dimension are skipped
//   - Both: the two legs run concurrently and are fused with Reciprocal Rank
//     Fusion, score = sum of 1/(k + rank)
//
// The SearchFilter is applied inside each leg with the same SQL.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite and scores vectors in Go. Building
// with -tags sqlite_vec switches to github.com/mattn/go-sqlite3 and tries
// vec_distance_cosine in SQL first.
package storage
