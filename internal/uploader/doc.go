// Package uploader converts a document's chunks and vectors into index
// records and upserts them, reporting success or failure per record.
//
// Record IDs are UUIDv5 values over "<absolute path>#<chunk index>", so
// uploading the same chunk twice overwrites a single record.
//
// A record whose vector is missing or has the wrong dimension is still
// uploaded, without a vector, and stays reachable through text search.
package uploader
