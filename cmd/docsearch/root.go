package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "docsearch",
		Short: "Document ingestion and hybrid retrieval over MCP",
		Long: `docsearch loads Markdown and text documents, splits them into chunks,
embeds them and stores them in a local SQLite index. The index can be
searched from the command line or served to AI assistants over MCP.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./docsearch.yaml or ~/.docsearch/docsearch.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newIngestCmd(a),
		newSearchCmd(a),
		newContextsCmd(a),
		newStatusCmd(a),
		newUnprocessCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}
