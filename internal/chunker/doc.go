// Package chunker splits document bodies into bounded, overlapping chunks for
// embedding and search.
//
// Strategies are selected by name so alternate chunkers can be swapped in
// without touching callers.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.StrategySentence, 1000, 100)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range c.Chunk(doc) {
//	    fmt.Printf("Chunk %d: %d chars [%d,%d)\n",
//	        chunk.Index, chunk.Length, chunk.StartOffset, chunk.EndOffset)
//	}
//
// # Chunking Strategy
//
// The sentence strategy advances a MaxSize window across the body. Before
// closing a window it looks back up to 200 characters for a boundary:
//   - A blank line (paragraph break)
//   - Otherwise `.`, `!` or `?` followed by whitespace
//
// Periods after a single letter or a common abbreviation ("Dr.", "e.g.",
// "etc.") are not treated as sentence ends.
//
// The fixed strategy uses plain MaxSize windows.
//
// # Overlap and Progress
//
// The next window starts Overlap characters before the previous end. Overlap
// is clamped to MaxSize/2 and every window advances at least 50 characters
// (or to the previous end, whichever is smaller). Chunking therefore always
// terminates and never leaves a gap, for any size/overlap combination.
//
// Text is measured in runes, chunks are trimmed and empty chunks are dropped.
//
// # Custom Strategies
//
//	chunker.Register("lines", func(opts chunker.Options) chunker.Chunker {
//	    return newLineChunker(opts)
//	})
package chunker
