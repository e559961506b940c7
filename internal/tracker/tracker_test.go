package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpen_MissingFile(t *testing.T) {
	tr, err := Open(filepath.Join(t.TempDir(), "processed.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())
}

func TestOpen_InvalidJSON(t *testing.T) {
	path := createTestFile(t, t.TempDir(), "processed.json", "{not json")
	_, err := Open(path)
	assert.Error(t, err)
}

func TestMarkProcessed(t *testing.T) {
	dir := t.TempDir()
	doc := createTestFile(t, dir, "a.md", "hello")

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)

	assert.False(t, tr.IsProcessed(doc))
	require.NoError(t, tr.MarkProcessed(doc))
	assert.True(t, tr.IsProcessed(doc))
	assert.True(t, tr.Dirty())
}

func TestMarkProcessedSignature_StaleSnapshot(t *testing.T) {
	dir := t.TempDir()
	doc := createTestFile(t, dir, "a.md", "hello")

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)

	sig, err := Signature(doc)
	require.NoError(t, err)

	// The file changes after the snapshot was taken
	require.NoError(t, os.WriteFile(doc, []byte("hello, edited"), 0644))

	require.NoError(t, tr.MarkProcessedSignature(doc, sig))
	assert.True(t, tr.Dirty())
	assert.False(t, tr.IsProcessed(doc))
}

func TestIsProcessed_ModTimeChange(t *testing.T) {
	dir := t.TempDir()
	doc := createTestFile(t, dir, "a.md", "hello")

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)
	require.NoError(t, tr.MarkProcessed(doc))

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(doc, later, later))

	assert.False(t, tr.IsProcessed(doc), "mtime change must invalidate the record")
}

func TestIsProcessed_SizeChange(t *testing.T) {
	dir := t.TempDir()
	doc := createTestFile(t, dir, "a.md", "hello")

	info, err := os.Stat(doc)
	require.NoError(t, err)

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)
	require.NoError(t, tr.MarkProcessed(doc))

	require.NoError(t, os.WriteFile(doc, []byte("hello, world"), 0644))
	// Keep the old mtime so only the size differs
	require.NoError(t, os.Chtimes(doc, info.ModTime(), info.ModTime()))

	assert.False(t, tr.IsProcessed(doc))
}

func TestIsProcessed_DeletedFile(t *testing.T) {
	dir := t.TempDir()
	doc := createTestFile(t, dir, "a.md", "hello")

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)
	require.NoError(t, tr.MarkProcessed(doc))
	require.NoError(t, os.Remove(doc))

	assert.False(t, tr.IsProcessed(doc))
	assert.Error(t, tr.MarkProcessed(doc))
}

func TestMarkUnprocessed(t *testing.T) {
	dir := t.TempDir()
	doc := createTestFile(t, dir, "a.md", "hello")

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)
	require.NoError(t, tr.MarkProcessed(doc))

	assert.True(t, tr.MarkUnprocessed(doc))
	assert.False(t, tr.IsProcessed(doc))
	assert.False(t, tr.MarkUnprocessed(doc))
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := createTestFile(t, dir, "a.md", "alpha")
	b := createTestFile(t, dir, "b.md", "beta")
	store := filepath.Join(dir, "state", "processed.json")

	tr, err := Open(store)
	require.NoError(t, err)
	require.NoError(t, tr.MarkProcessed(a))
	require.NoError(t, tr.MarkProcessed(b))

	// Not durable before Save
	reopened, err := Open(store)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())

	require.NoError(t, tr.Save())
	assert.False(t, tr.Dirty())

	reopened, err = Open(store)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	assert.True(t, reopened.IsProcessed(a))
	assert.True(t, reopened.IsProcessed(b))

	// The file is a flat JSON object keyed by absolute path
	data, err := os.ReadFile(store)
	require.NoError(t, err)
	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	absA, _ := filepath.Abs(a)
	assert.Contains(t, raw, absA)
}

func TestSignature_Deterministic(t *testing.T) {
	doc := createTestFile(t, t.TempDir(), "a.md", "hello")

	s1, err := Signature(doc)
	require.NoError(t, err)
	s2, err := Signature(doc)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 64)

	_, err = Signature(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestPathsAndReset(t *testing.T) {
	dir := t.TempDir()
	b := createTestFile(t, dir, "b.md", "b")
	a := createTestFile(t, dir, "a.md", "a")

	tr, err := Open(filepath.Join(dir, "processed.json"))
	require.NoError(t, err)
	require.NoError(t, tr.MarkProcessed(b))
	require.NoError(t, tr.MarkProcessed(a))

	paths := tr.Paths()
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Base(a), filepath.Base(paths[0]))

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}
