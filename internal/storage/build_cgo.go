//go:build sqlite_vec
// +build sqlite_vec

package storage

// Compiled with CGO and the sqlite_vec tag:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// Vector queries first try vec_distance_cosine in SQL. When the sqlite-vec
// extension is not loaded into the connection the query errors and the
// index falls back to scoring in Go.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable enables the SQL cosine path
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
