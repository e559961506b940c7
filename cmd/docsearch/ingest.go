package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/watcher"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		force bool
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Ingest documents into the index",
		Long: `Discovers supported documents under dir (default: source.root from the
config), chunks and embeds new or changed files and uploads them to the index.
Unchanged files are skipped unless --force is given.

With --watch the command keeps running and re-ingests after changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := a.open(); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			root := a.cfg.Source.Root
			if len(args) == 1 {
				root = args[0]
			}
			if root, err = filepath.Abs(root); err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			stats, err := a.indexer.IndexDirectory(ctx, root, a.indexConfig(force))
			if stats != nil {
				printStats(out, stats)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("ingestion failed: %w", err)
			}
			if !watch {
				return nil
			}

			w := watcher.New(root, a.loader.Supports, func(ctx context.Context) error {
				stats, err := a.indexer.IndexDirectory(ctx, root, a.indexConfig(false))
				if stats != nil && stats.FilesIndexed > 0 {
					a.searcher.InvalidateCache()
					printStats(out, stats)
				}
				return err
			},
				watcher.WithDebounce(a.cfg.Pipeline.WatchDebounce),
				watcher.WithLogger(a.logger.Named("watcher")),
			)
			a.logger.Info("watch mode enabled", zap.String("root", root))
			return w.Watch(ctx)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "reprocess every file, ignoring the processing tracker")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and re-ingest when documents change")
	return cmd
}

func printStats(w io.Writer, stats *indexer.Statistics) {
	fmt.Fprintf(w, "Files: %d discovered, %d indexed, %d skipped, %d failed\n",
		stats.FilesDiscovered, stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)
	fmt.Fprintf(w, "Records: %d uploaded, %d failed (%d chunks, %d embedding failures)\n",
		stats.RecordsUploaded, stats.RecordsFailed, stats.ChunksCreated, stats.EmbeddingFailures)
	if stats.PartialFiles > 0 || stats.DegradedFiles > 0 {
		fmt.Fprintf(w, "Partial files: %d, degraded metadata: %d\n", stats.PartialFiles, stats.DegradedFiles)
	}
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
	fmt.Fprintf(w, "Duration: %s\n", stats.Duration.Round(time.Millisecond))
}
