// Package tracker persists a signature per source file so ingestion only
// re-processes files that are new or changed since their last successful run.
//
// The signature is derived from path, size and modification time. Content is
// not hashed: touching a file forces re-processing.
//
// The tracking store is a single JSON object mapping absolute path to
// signature. It is read fully on Open and written fully on Save; changes made
// with MarkProcessed or MarkUnprocessed are not durable until Save.
package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Tracker holds processing records in memory, backed by a JSON file.
type Tracker struct {
	path string

	mu      sync.RWMutex
	records map[string]string
	dirty   bool
}

// Open loads the tracking file at path. A missing file yields an empty tracker.
func Open(path string) (*Tracker, error) {
	t := &Tracker{
		path:    path,
		records: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking file: %w", err)
	}

	if len(data) == 0 {
		return t, nil
	}

	if err := json.Unmarshal(data, &t.records); err != nil {
		return nil, fmt.Errorf("failed to parse tracking file %s: %w", path, err)
	}
	if t.records == nil {
		t.records = make(map[string]string)
	}

	return t, nil
}

// Path returns the backing file path
func (t *Tracker) Path() string {
	return t.path
}

// Signature computes the current on-disk signature of a file.
func Signature(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsProcessed reports whether path has a record equal to its current
// signature. Files that cannot be stat'ed are never processed.
func (t *Tracker) IsProcessed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	sig, err := Signature(abs)
	if err != nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[abs] == sig
}

// MarkProcessed stores the current signature of path.
func (t *Tracker) MarkProcessed(path string) error {
	sig, err := Signature(path)
	if err != nil {
		return fmt.Errorf("failed to compute signature: %w", err)
	}
	return t.MarkProcessedSignature(path, sig)
}

// MarkProcessedSignature stores sig for path. Callers pass the signature
// taken before the file was read, so an edit made while the file was being
// processed still counts as a change on the next run.
func (t *Tracker) MarkProcessedSignature(path, sig string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[abs] = sig
	t.dirty = true
	return nil
}

// MarkUnprocessed removes the record for path and reports whether one existed.
func (t *Tracker) MarkUnprocessed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[abs]; !ok {
		return false
	}
	delete(t.records, abs)
	t.dirty = true
	return true
}

// Reset removes every record
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.records) > 0 {
		t.records = make(map[string]string)
		t.dirty = true
	}
}

// Len returns the number of tracked files
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Paths returns the tracked paths, sorted
func (t *Tracker) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]string, 0, len(t.records))
	for p := range t.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Save writes all records to the tracking file via a temp file and rename.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(t.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking records: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tracking directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write tracking file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write tracking file: %w", err)
	}

	if err := os.Rename(tmpName, t.path); err != nil {
		return fmt.Errorf("failed to replace tracking file: %w", err)
	}

	t.dirty = false
	return nil
}

// Dirty reports whether there are unsaved changes
func (t *Tracker) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}
