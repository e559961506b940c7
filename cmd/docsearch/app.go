package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/config"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/loader"
	"github.com/dshills/docsearch-mcp/internal/logging"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/internal/tracker"
	"github.com/dshills/docsearch-mcp/internal/uploader"
)

// app holds the wired components for one command invocation. Nothing here
// is global: every command builds its own app through open.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger

	index    *storage.SQLiteIndex
	coord    *embedder.Coordinator
	tracker  *tracker.Tracker
	loader   *loader.Loader
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
}

// open loads configuration and constructs every component
func (a *app) open() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	if a.logger, err = logging.New(cfg.Log.Level, cfg.Log.Development); err != nil {
		return err
	}
	if cfg.File != "" {
		a.logger.Debug("configuration loaded", zap.String("file", cfg.File))
	}

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	a.index, err = storage.NewSQLiteIndex(cfg.Index.Path, storage.WithLogger(a.logger.Named("storage")))
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	a.coord = embedder.NewCoordinator(emb,
		embedder.WithBatchSize(cfg.Embedding.BatchSize),
		embedder.WithBatchDelay(cfg.Embedding.BatchDelay),
		embedder.WithBackoffPolicy(cfg.BackoffPolicy()),
		embedder.WithDimension(cfg.Embedding.Dimension),
		embedder.WithLogger(a.logger.Named("embedder")),
	)

	if a.tracker, err = tracker.Open(cfg.Tracker.Path); err != nil {
		return fmt.Errorf("failed to open tracker: %w", err)
	}

	ch, err := chunker.New(cfg.Chunking.Strategy, cfg.Chunking.MaxSize, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}

	a.loader = loader.New(
		loader.WithExtensions(cfg.Source.Extensions...),
		loader.WithLogger(a.logger.Named("loader")),
	)
	up := uploader.New(a.index,
		uploader.WithDimension(a.coord.Dimension()),
		uploader.WithLogger(a.logger.Named("uploader")),
	)
	a.indexer = indexer.New(a.loader, ch, a.tracker, a.coord, up,
		indexer.WithLogger(a.logger.Named("indexer")),
	)

	a.searcher, err = searcher.New(a.index, a.coord,
		searcher.WithLogger(a.logger.Named("searcher")),
		searcher.WithCache(cfg.Search.CacheSize, cfg.Search.CacheTTL),
	)
	if err != nil {
		return err
	}

	a.logger.Debug("components ready",
		zap.String("index", cfg.Index.Path),
		zap.String("provider", a.coord.Provider()),
		zap.String("model", a.coord.Model()),
		zap.Int("dimension", a.coord.Dimension()),
		zap.String("chunker", ch.Name()))
	return nil
}

// close releases whatever open managed to construct
func (a *app) close() error {
	var errs []error
	if a.tracker != nil && a.tracker.Dirty() {
		errs = append(errs, a.tracker.Save())
	}
	if a.coord != nil {
		errs = append(errs, a.coord.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// indexConfig builds the per-run pipeline options
func (a *app) indexConfig(force bool) *indexer.Config {
	return &indexer.Config{
		Force:     force,
		FileDelay: a.cfg.Pipeline.FileDelay,
	}
}
