package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/loader"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/internal/tracker"
	"github.com/dshills/docsearch-mcp/internal/uploader"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

const testDim = 4

// mockEmbedder fills vectors positionally; texts listed in fail get the sentinel
type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
	// during runs inside EmbedBatch, while a file is in flight
	during func()
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) *embedder.BatchResult {
	m.mu.Lock()
	m.calls++
	during := m.during
	m.mu.Unlock()

	if during != nil {
		during()
	}

	res := &embedder.BatchResult{Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		if m.fail[text] || ctx.Err() != nil {
			res.Vectors[i] = embedder.ZeroVector(testDim)
			res.Failed = append(res.Failed, i)
			continue
		}
		res.Vectors[i] = []float32{1, float32(len(text)), 0, 0}
	}
	return res
}

// countingIndex counts upserted records and can reject chunk indexes
type countingIndex struct {
	storage.Index
	mu       sync.Mutex
	upserted int
	reject   map[int]bool
}

func (c *countingIndex) Upsert(ctx context.Context, records []*types.IndexRecord) ([]storage.UpsertOutcome, error) {
	c.mu.Lock()
	c.upserted += len(records)
	c.mu.Unlock()

	keep := make([]*types.IndexRecord, 0, len(records))
	for _, r := range records {
		if !c.reject[r.ChunkIndex] {
			keep = append(keep, r)
		}
	}
	written, err := c.Index.Upsert(ctx, keep)
	if err != nil {
		return nil, err
	}

	out := make([]storage.UpsertOutcome, len(records))
	j := 0
	for i, r := range records {
		if c.reject[r.ChunkIndex] {
			out[i] = storage.UpsertOutcome{ID: r.ID, Err: assert.AnError}
			continue
		}
		out[i] = written[j]
		j++
	}
	return out, nil
}

func (c *countingIndex) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upserted
}

type fixture struct {
	root    string
	idx     *Indexer
	index   *countingIndex
	emb     *mockEmbedder
	tracker *tracker.Tracker
}

func newFixture(t *testing.T, strategy string, maxSize int) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(root, 0o755))

	sqlIndex, err := storage.NewSQLiteIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlIndex.Close() })

	tr, err := tracker.Open(filepath.Join(dir, "state", "processed.json"))
	require.NoError(t, err)

	ch, err := chunker.New(strategy, maxSize, 0)
	require.NoError(t, err)

	index := &countingIndex{Index: sqlIndex}
	emb := &mockEmbedder{}
	up := uploader.New(index, uploader.WithDimension(testDim))

	return &fixture{
		root:    root,
		idx:     New(loader.New(), ch, tr, emb, up),
		index:   index,
		emb:     emb,
		tracker: tr,
	}
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexDirectory_Basic(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "guides/install.md", "# Install\n\nRun the installer. Then restart.")
	f.write(t, "guides/deploy.md", "# Deploy\n\nPush the image.")
	f.write(t, "faq.txt", "Billing happens monthly.")
	f.write(t, "ignored.go", "package main")

	stats, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.FilesDiscovered)
	assert.Equal(t, 3, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 3, stats.ChunksCreated)
	assert.Equal(t, 3, stats.RecordsUploaded)
	assert.Empty(t, stats.ErrorMessages)
	assert.Equal(t, 3, f.idx.TrackedFiles())

	n, err := f.index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	contexts, err := f.index.ListDistinct(context.Background(), "context_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"guides", "notes"}, contexts)
}

func TestIndexDirectory_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "a.md", "alpha content")
	f.write(t, "b.md", "beta content")
	ctx := context.Background()

	_, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)
	before := f.index.count()
	embedCalls := f.emb.calls

	stats, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, before, f.index.count(), "second run must not upsert")
	assert.Equal(t, embedCalls, f.emb.calls, "second run must not embed")
}

func TestIndexDirectory_TrackerSurvivesReopen(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "a.md", "alpha content")

	_, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)

	reopened, err := tracker.Open(f.tracker.Path())
	require.NoError(t, err)
	assert.True(t, reopened.IsProcessed(filepath.Join(f.root, "a.md")))
}

func TestIndexDirectory_ChangedFileIsReprocessed(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	path := f.write(t, "a.md", "first version")
	f.write(t, "b.md", "unchanged")
	ctx := context.Background()

	_, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("second, longer version"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	stats, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)

	n, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "record ID is stable so the chunk is overwritten")
}

func TestIndexDirectory_EditDuringRunIsReprocessed(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	path := f.write(t, "a.md", "original text")
	ctx := context.Background()

	f.emb.during = func() {
		f.emb.during = nil
		_ = os.WriteFile(path, []byte("edited text arrived mid run"), 0o644)
		later := time.Now().Add(time.Minute)
		_ = os.Chtimes(path, later, later)
	}

	stats, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.False(t, f.tracker.IsProcessed(path), "signature must describe the content that was uploaded")

	stats, err = f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
	assert.True(t, f.tracker.IsProcessed(path))

	results, err := f.index.Query(ctx, storage.Query{Text: "edited", TopK: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestIndexDirectory_Force(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "a.md", "alpha")
	ctx := context.Background()

	_, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)

	stats, err := f.idx.IndexDirectory(ctx, f.root, &Config{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.FilesSkipped)
}

func TestIndexDirectory_NullVectorForOneOfFive(t *testing.T) {
	f := newFixture(t, chunker.StrategyFixed, 100)
	var b strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "w%03d ", i)
	}
	body := b.String() // 500 runes -> five windows of 100
	path := f.write(t, "long.txt", body)

	third := strings.TrimSpace(body[200:300])
	f.emb.fail = map[string]bool{third: true}

	stats, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.ChunksCreated)
	assert.Equal(t, 5, stats.RecordsUploaded)
	assert.Equal(t, 1, stats.EmbeddingFailures)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.True(t, f.tracker.IsProcessed(path))

	n, err := f.index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// The sentinel chunk is still reachable by text
	results, err := f.index.Query(context.Background(), storage.Query{Text: "w045", TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].ChunkIndex)
}

func TestIndexDirectory_PartialUploadCommits(t *testing.T) {
	f := newFixture(t, chunker.StrategyFixed, 100)
	path := f.write(t, "long.txt", strings.Repeat("abcdefghi ", 30))
	f.index.reject = map[int]bool{1: true}

	stats, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.PartialFiles)
	assert.Equal(t, 2, stats.RecordsUploaded)
	assert.Equal(t, 1, stats.RecordsFailed)
	assert.True(t, f.tracker.IsProcessed(path))
}

func TestIndexDirectory_TotalUploadFailureDoesNotCommit(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	path := f.write(t, "a.md", "only one chunk")
	f.index.reject = map[int]bool{0: true}

	stats, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "a.md")
	assert.False(t, f.tracker.IsProcessed(path))
}

func TestIndexDirectory_EmptyBodyIsCommitted(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	path := f.write(t, "empty.md", "---\ntitle: Nothing here\n---\n")

	stats, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 0, stats.ChunksCreated)
	assert.Equal(t, 0, f.emb.calls)
	assert.True(t, f.tracker.IsProcessed(path))
}

func TestIndexDirectory_DegradedMetadata(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "broken.md", "---\ntitle: [unclosed\n---\nBody text survives.")

	stats, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.DegradedFiles)
}

func TestIndexDirectory_MissingRoot(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)

	_, err := f.idx.IndexDirectory(context.Background(), filepath.Join(f.root, "nope"), &Config{})
	assert.ErrorIs(t, err, types.ErrDirectoryNotFound)
}

func TestIndexDirectory_Cancelled(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "a.md", "alpha")
	f.write(t, "b.md", "beta")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.FilesDiscovered)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, 0, f.tracker.Len())
}

func TestIndexDirectory_FileDelay(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "a.md", "alpha")
	f.write(t, "b.md", "beta")
	f.write(t, "c.md", "gamma")

	start := time.Now()
	_, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{FileDelay: 30 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestIndexDirectory_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	require.True(t, f.idx.lock.TryAcquire())
	assert.True(t, f.idx.Running())

	_, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	_, err = f.idx.Unprocess(filepath.Join(f.root, "a.md"))
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	f.idx.lock.Release()
	assert.False(t, f.idx.Running())
}

func TestUnprocess(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	path := f.write(t, "a.md", "alpha")
	ctx := context.Background()

	_, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)

	existed, err := f.idx.Unprocess(path)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = f.idx.Unprocess(path)
	require.NoError(t, err)
	assert.False(t, existed)

	stats, err := f.idx.IndexDirectory(ctx, f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
}

func TestWithProgress(t *testing.T) {
	f := newFixture(t, chunker.StrategySentence, 1000)
	f.write(t, "a.md", "alpha")
	f.write(t, "b.md", "beta")

	var seen []int
	f.idx.progress = func(done, total int, path string) {
		assert.Equal(t, 2, total)
		seen = append(seen, done)
	}

	_, err := f.idx.IndexDirectory(context.Background(), f.root, &Config{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
