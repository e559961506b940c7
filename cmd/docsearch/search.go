package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// snippetLength bounds the content preview in table output
const snippetLength = 160

func newSearchCmd(a *app) *cobra.Command {
	var (
		mode   string
		topK   int
		filter types.SearchFilter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Searches ingested chunks. Modes:
  hybrid  vector and BM25 text search fused with reciprocal rank fusion (default)
  vector  semantic similarity only
  text    BM25 full-text only (alias: keyword)`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := a.open(); err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.close()) }()

			if mode == "" {
				mode = a.cfg.Search.DefaultMode
			}
			searchMode, err := searcher.ParseMode(mode)
			if err != nil {
				return err
			}
			if topK == 0 {
				topK = a.cfg.Search.DefaultTopK
			}

			req := searcher.SearchRequest{
				Query: strings.Join(args, " "),
				Mode:  searchMode,
				TopK:  topK,
			}
			if !filter.IsEmpty() {
				req.Filter = &filter
			}

			resp, err := a.searcher.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if asJSON {
				return outputSearchJSON(cmd.OutOrStdout(), resp)
			}
			outputSearchTable(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "search mode: hybrid, vector, text")
	cmd.Flags().IntVarP(&topK, "top-k", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().StringVar(&filter.ContextID, "context", "", "only search this context")
	cmd.Flags().StringVar(&filter.FileName, "file", "", "glob on the file name")
	cmd.Flags().StringSliceVar(&filter.Tags, "tag", nil, "require tag (repeatable)")
	cmd.Flags().StringVar(&filter.ChunkPattern, "chunk", "", "glob on the chunk key file#index")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func outputSearchJSON(w io.Writer, resp *searcher.SearchResponse) error {
	data, err := json.MarshalIndent(map[string]interface{}{
		"mode":           resp.SearchMode,
		"effective_mode": resp.EffectiveMode,
		"degraded":       resp.Degraded,
		"total_results":  resp.TotalResults,
		"results":        resp.Results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func outputSearchTable(w io.Writer, resp *searcher.SearchResponse) {
	if resp.Degraded {
		fmt.Fprintln(w, "Note: query embedding failed, showing text results only.")
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	for _, r := range resp.Results {
		title := r.Title
		if title == "" {
			title = r.FileName
		}
		fmt.Fprintf(w, "  [%d] %s (%.4f)\n", r.Rank, title, r.Score)
		fmt.Fprintf(w, "      %s#%d  context=%s\n", r.FilePath, r.ChunkIndex, r.ContextID)
		fmt.Fprintf(w, "      %s\n\n", snippet(r.Content))
	}
}

func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}
