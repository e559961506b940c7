package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/storage"
)

func newContextsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List the document contexts in the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if err := a.open(); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			contexts, err := a.searcher.ListContexts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(contexts) == 0 {
				fmt.Fprintln(out, "No contexts found.")
				return nil
			}
			for _, c := range contexts {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and tracker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if err := a.open(); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			stats, err := a.searcher.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index:         %s\n", a.cfg.Index.Path)
			fmt.Fprintf(out, "Records:       %d\n", stats.RecordCount)
			fmt.Fprintf(out, "Tracker:       %s\n", a.cfg.Tracker.Path)
			fmt.Fprintf(out, "Tracked files: %d\n", a.indexer.TrackedFiles())
			fmt.Fprintf(out, "Embedder:      %s (%s, %d dims)\n", a.coord.Provider(), a.coord.Model(), a.coord.Dimension())
			fmt.Fprintf(out, "Storage:       %s, driver %s, vector extension %v\n",
				storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
			return nil
		},
	}
}

func newUnprocessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unprocess <file>...",
		Short: "Forget files so the next ingest reprocesses them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := a.open(); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			out := cmd.OutOrStdout()
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				removed, err := a.indexer.Unprocess(path)
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(out, "unprocessed %s\n", path)
				} else {
					fmt.Fprintf(out, "not tracked %s\n", path)
				}
			}
			return nil
		},
	}
}
