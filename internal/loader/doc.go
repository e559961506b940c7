// Package loader discovers documents under a root directory and extracts
// their structural metadata.
//
// # Basic Usage
//
//	l := loader.New(loader.WithExtensions(".md", ".txt"), loader.WithLogger(logger))
//
//	paths, err := l.Discover("/notes")
//	if errors.Is(err, types.ErrDirectoryNotFound) {
//	    // nothing to ingest
//	}
//
//	for _, path := range paths {
//	    doc, err := l.Load(path)
//	    ...
//	}
//
// Discover returns absolute, sorted paths of non-empty files with a supported
// extension. Hidden directories are skipped.
//
// # Metadata
//
// A document may start with a YAML header block between "---" lines:
//
//	---
//	title: Install Guide
//	tags: [setup, linux]
//	---
//	Body text with an inline #hashtag.
//
// The title comes from the header, then the first "# " heading, then the
// file name. Tags are the union of header tags, inline hashtags and the
// context id (the parent directory name), which is always present.
//
// A malformed header never fails the file: metadata degrades to the title
// from the file name and tags = [context id].
package loader
