// Package watcher re-runs ingestion when documents under a directory change.
//
// Events are debounced across the whole tree: a burst of saves produces one
// run once the tree has been quiet for the debounce delay. Runs are
// incremental because the processing tracker skips unchanged files.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is used when no delay is configured
const DefaultDebounce = 2 * time.Second

// RunFunc performs one ingestion pass
type RunFunc func(ctx context.Context) error

// Watcher watches a directory tree and triggers RunFunc on relevant changes
type Watcher struct {
	root     string
	supports func(path string) bool
	run      RunFunc
	debounce time.Duration
	logger   *zap.Logger
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a run
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Watcher. supports filters file events, typically loader.Supports.
func New(root string, supports func(path string) bool, run RunFunc, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		supports: supports,
		run:      run,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks until ctx is cancelled. It does not perform an initial run.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := addTree(fsw, w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	w.logger.Info("watching for changes",
		zap.String("root", w.root),
		zap.Duration("debounce", w.debounce))

	return w.loop(ctx, fsw.Events, fsw.Errors, func(dir string) error {
		return addTree(fsw, dir)
	})
}

// loop is the event loop, separated from fsnotify so it can be driven by tests
func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, addDir func(string) error) error {
	// Stop and Reset never leave a stale tick in timer.C
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(event, addDir) {
				continue
			}
			w.logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-errs:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("ingestion run failed", zap.Error(err))
			}
		}
	}
}

// relevant reports whether event should schedule a run. New directories are
// added to the watch as a side effect.
func (w *Watcher) relevant(event fsnotify.Event, addDir func(string) error) bool {
	if isHidden(filepath.Base(event.Name)) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addDir(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
			// Files moved in with the directory produce no events of their own
			return true
		}
	}

	if event.Op == fsnotify.Chmod {
		return false
	}
	return w.supports(event.Name)
}

// addTree adds root and every non-hidden directory below it
func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
