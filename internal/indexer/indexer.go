package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/loader"
	"github.com/dshills/docsearch-mcp/internal/tracker"
	"github.com/dshills/docsearch-mcp/internal/uploader"
)

// DefaultFileDelay is the pause between processed files when Config is nil
const DefaultFileDelay = 500 * time.Millisecond

// BatchEmbedder embeds chunk texts, one vector per text. embedder.Coordinator satisfies it.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) *embedder.BatchResult
}

// Config contains per-run options
type Config struct {
	Force     bool          // Ignore the tracker and reprocess every file
	FileDelay time.Duration // Minimum spacing between processed files
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesDiscovered int
	FilesIndexed    int
	FilesSkipped    int
	FilesFailed     int
	PartialFiles    int // Indexed with at least one rejected record
	DegradedFiles   int // Indexed with fallback metadata

	ChunksCreated     int
	RecordsUploaded   int
	RecordsFailed     int
	EmbeddingFailures int

	Duration      time.Duration
	ErrorMessages []string
}

// ProgressFunc is called after each discovered file is handled
type ProgressFunc func(done, total int, path string)

// Indexer coordinates the pipeline: load -> chunk -> embed -> upload -> commit
type Indexer struct {
	loader   *loader.Loader
	chunker  chunker.Chunker
	tracker  *tracker.Tracker
	embedder BatchEmbedder
	uploader *uploader.Uploader

	logger   *zap.Logger
	progress ProgressFunc
	lock     IndexLock
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithProgress registers a progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(idx *Indexer) {
		idx.progress = fn
	}
}

// New creates an Indexer from its collaborators
func New(l *loader.Loader, c chunker.Chunker, t *tracker.Tracker, e BatchEmbedder, u *uploader.Uploader, opts ...Option) *Indexer {
	idx := &Indexer{
		loader:   l,
		chunker:  c,
		tracker:  t,
		embedder: e,
		uploader: u,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexDirectory ingests every supported file under root. Files are handled
// one at a time; a failing file is recorded in Statistics and the run moves
// on. On cancellation the statistics gathered so far are returned with the
// context error.
func (idx *Indexer) IndexDirectory(ctx context.Context, root string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	if config == nil {
		config = &Config{FileDelay: DefaultFileDelay}
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	files, err := idx.loader.Discover(root)
	if err != nil {
		return nil, err
	}
	stats.FilesDiscovered = len(files)

	idx.logger.Info("indexing started",
		zap.String("root", root),
		zap.Int("files", len(files)),
		zap.Bool("force", config.Force))

	limiter := newLimiter(config.FileDelay)

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}

		if !config.Force && idx.tracker.IsProcessed(path) {
			stats.FilesSkipped++
			idx.report(i+1, len(files), path)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			stats.Duration = time.Since(startTime)
			return stats, err
		}

		if err := idx.indexFile(ctx, path, stats); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				stats.Duration = time.Since(startTime)
				return stats, err
			}
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
			idx.logger.Warn("file failed", zap.String("path", path), zap.Error(err))
		}
		idx.report(i+1, len(files), path)
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("indexing finished",
		zap.Int("indexed", stats.FilesIndexed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("failed", stats.FilesFailed),
		zap.Int("records", stats.RecordsUploaded),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// indexFile runs one file through the pipeline. The tracker is only
// committed once at least one record reached the index.
func (idx *Indexer) indexFile(ctx context.Context, path string, stats *Statistics) error {
	sig, err := tracker.Signature(path)
	if err != nil {
		return fmt.Errorf("failed to compute signature: %w", err)
	}

	doc, err := idx.loader.Load(path)
	if err != nil {
		return err
	}

	chunks := idx.chunker.Chunk(doc)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	var vectors [][]float32
	if len(texts) > 0 {
		batch := idx.embedder.EmbedBatch(ctx, texts)
		if err := ctx.Err(); err != nil {
			// Sentinels from a cancelled run must not be committed
			return err
		}
		vectors = batch.Vectors
		stats.EmbeddingFailures += batch.FailureCount()
	}

	result, err := idx.uploader.Upload(ctx, doc, chunks, vectors)
	if err != nil {
		return err
	}
	stats.RecordsUploaded += len(result.Succeeded)
	stats.RecordsFailed += len(result.Failed)

	// An empty body has nothing to upload and is still committed
	if len(chunks) > 0 && !result.OK() {
		return fmt.Errorf("no records uploaded: %w", result.Failed[0].Err)
	}

	if err := idx.commit(path, sig); err != nil {
		return err
	}

	stats.FilesIndexed++
	stats.ChunksCreated += len(chunks)
	if len(result.Failed) > 0 {
		stats.PartialFiles++
	}
	if doc.Metadata.Degraded {
		stats.DegradedFiles++
	}

	idx.logger.Debug("file indexed",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.Int("failed_records", len(result.Failed)))
	return nil
}

// commit records the signature taken before the file was loaded and persists
// the tracker right away so a crash later in the run does not lose it.
func (idx *Indexer) commit(path, sig string) error {
	if err := idx.tracker.MarkProcessedSignature(path, sig); err != nil {
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	if err := idx.tracker.Save(); err != nil {
		return fmt.Errorf("failed to save tracker: %w", err)
	}
	return nil
}

// Unprocess forgets path so the next run reprocesses it. It reports whether
// the path had a record.
func (idx *Indexer) Unprocess(path string) (bool, error) {
	if !idx.lock.TryAcquire() {
		return false, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	existed := idx.tracker.MarkUnprocessed(path)
	if !existed {
		return false, nil
	}
	if err := idx.tracker.Save(); err != nil {
		return true, fmt.Errorf("failed to save tracker: %w", err)
	}
	return true, nil
}

// TrackedFiles returns the number of files with a processing record
func (idx *Indexer) TrackedFiles() int {
	return idx.tracker.Len()
}

// Running reports whether a run is in progress
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}

func (idx *Indexer) report(done, total int, path string) {
	if idx.progress != nil {
		idx.progress(done, total, path)
	}
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}
