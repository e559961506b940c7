//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Default build. Pure Go SQLite with FTS5, cosine similarity computed in Go.
// No C toolchain needed:
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable enables the SQL cosine path
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
