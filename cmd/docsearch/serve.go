package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/mcp"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serves the ingest_documents, search_documents, list_contexts, get_status
and unprocess_document tools over the Model Context Protocol on stdin/stdout.
Logs are written to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if err := a.open(); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			a.logger.Info("docsearch MCP server starting",
				zap.String("version", version),
				zap.String("build_mode", storage.BuildMode),
				zap.String("driver", storage.DriverName),
				zap.Bool("vector_extension", storage.VectorExtensionAvailable))

			mode, err := searcher.ParseMode(a.cfg.Search.DefaultMode)
			if err != nil {
				return err
			}

			server := mcp.NewServer(a.indexer, a.searcher,
				mcp.WithLogger(a.logger.Named("mcp")),
				mcp.WithDefaultRoot(a.cfg.Source.Root),
				mcp.WithSearchDefaults(mode, a.cfg.Search.DefaultTopK),
				mcp.WithFileDelay(a.cfg.Pipeline.FileDelay),
				mcp.WithEmbedderInfo(a.coord.Provider(), a.coord.Model()),
			)
			if err := server.Serve(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
}
