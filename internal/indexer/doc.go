// Package indexer runs the ingestion pipeline over a directory tree.
//
// For each discovered file, in sorted order:
//
//  1. Skip it if the tracker signature matches (unless Config.Force)
//  2. Load it and extract metadata
//  3. Split the body into chunks
//  4. Embed the chunks in batches
//  5. Upload one record per chunk
//  6. Commit the file to the tracker and save it, only if a record landed
//
// Files are processed one at a time with Config.FileDelay between them.
// A file that fails is listed in Statistics.ErrorMessages and left
// uncommitted, so the next run retries it.
//
// # Basic Usage
//
//	idx := indexer.New(loader, chunker, tracker, coordinator, uploader,
//	    indexer.WithLogger(logger))
//
//	stats, err := idx.IndexDirectory(ctx, "/path/to/notes", &indexer.Config{
//	    FileDelay: 500 * time.Millisecond,
//	})
//	fmt.Printf("indexed %d, skipped %d\n", stats.FilesIndexed, stats.FilesSkipped)
//
// An Indexer owns its tracker; IndexDirectory and Unprocess return
// ErrIndexingInProgress while another run holds it.
package indexer
