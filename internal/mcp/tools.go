package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeDirectoryNotFound    = -32001 // Path does not exist or is not a directory
	ErrorCodeIndexingInProgress   = -32002 // Another ingestion is already running
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
	ErrorCodeEmbeddingUnavailable = -32005 // Vector search requested but the query could not be embedded
)

// maxReportedErrors caps the per-file errors echoed back by ingest_documents
const maxReportedErrors = 5

// handleIngestDocuments handles the ingest_documents tool invocation
func (s *Server) handleIngestDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", s.defaultRoot)
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing and no default root configured",
		})
	}

	root, err := validateDirectory(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeDirectoryNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	config := &indexer.Config{
		Force:     getBoolDefault(args, "force", false),
		FileDelay: s.fileDelay,
	}

	stats, err := s.indexer.IndexDirectory(ctx, root, config)
	if stats != nil && stats.FilesIndexed > 0 {
		s.searcher.InvalidateCache()
	}
	if err != nil {
		switch {
		case errors.Is(err, indexer.ErrIndexingInProgress):
			return nil, newMCPError(ErrorCodeIndexingInProgress, "ingestion already in progress", nil)
		case errors.Is(err, types.ErrDirectoryNotFound):
			return nil, newMCPError(ErrorCodeDirectoryNotFound, "directory not found", map[string]interface{}{
				"path": root,
			})
		default:
			return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"path":               root,
		"files_discovered":   stats.FilesDiscovered,
		"files_indexed":      stats.FilesIndexed,
		"files_skipped":      stats.FilesSkipped,
		"files_failed":       stats.FilesFailed,
		"partial_files":      stats.PartialFiles,
		"degraded_files":     stats.DegradedFiles,
		"chunks_created":     stats.ChunksCreated,
		"records_uploaded":   stats.RecordsUploaded,
		"records_failed":     stats.RecordsFailed,
		"embedding_failures": stats.EmbeddingFailures,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", s.defaultTopK)
	if topK < 1 || topK > searcher.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("top_k must be between 1 and %d", searcher.MaxTopK), map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "mode", string(s.defaultMode)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"reason":  err.Error(),
			"allowed": []string{"hybrid", "vector", "text", "keyword"},
		})
	}

	tags, err := getStringSlice(args, "tags")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid tags", map[string]interface{}{
			"param":  "tags",
			"reason": err.Error(),
		})
	}

	filter := &types.SearchFilter{
		ContextID:    getStringDefault(args, "context_id", ""),
		FileName:     getStringDefault(args, "file_name", ""),
		Tags:         tags,
		ChunkPattern: getStringDefault(args, "chunk_pattern", ""),
	}
	if filter.IsEmpty() {
		filter = nil
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:  query,
		Mode:   mode,
		Filter: filter,
		TopK:   topK,
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidQuery):
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid query", map[string]interface{}{
				"reason": err.Error(),
			})
		case errors.Is(err, types.ErrEmbeddingFailed):
			return nil, newMCPError(ErrorCodeEmbeddingUnavailable, "query embedding failed", map[string]interface{}{
				"error": err.Error(),
				"hint":  "use mode 'text' or 'hybrid'",
			})
		default:
			return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		result := map[string]interface{}{
			"rank":        r.Rank,
			"score":       r.Score,
			"record_id":   r.RecordID,
			"file_path":   r.FilePath,
			"file_name":   r.FileName,
			"chunk_index": r.ChunkIndex,
			"title":       r.Title,
			"context_id":  r.ContextID,
			"tags":        r.Tags,
			"content":     r.Content,
		}
		if !r.LastModified.IsZero() {
			result["last_modified"] = r.LastModified.UTC().Format(time.RFC3339)
		}
		results = append(results, result)
	}

	response := map[string]interface{}{
		"query":          query,
		"mode":           string(resp.SearchMode),
		"effective_mode": string(resp.EffectiveMode),
		"degraded":       resp.Degraded,
		"total_results":  resp.TotalResults,
		"cache_hit":      resp.CacheHit,
		"duration_ms":    resp.Duration.Milliseconds(),
		"results":        results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListContexts handles the list_contexts tool invocation
func (s *Server) handleListContexts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contexts, err := s.searcher.ListContexts(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list contexts", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"contexts": contexts,
		"count":    len(contexts),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.searcher.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get index status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":       stats.Exists && stats.RecordCount > 0,
		"record_count":  stats.RecordCount,
		"tracked_files": s.indexer.TrackedFiles(),
		"ingesting":     s.indexer.Running(),
		"storage": map[string]interface{}{
			"build_mode":       storage.BuildMode,
			"driver":           storage.DriverName,
			"vector_extension": storage.VectorExtensionAvailable,
		},
	}
	if s.provider != "" {
		response["embedder"] = map[string]interface{}{
			"provider": s.provider,
			"model":    s.model,
		}
	}
	if !stats.Exists || stats.RecordCount == 0 {
		response["message"] = "Nothing ingested yet. Use the ingest_documents tool first."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUnprocessDocument handles the unprocess_document tool invocation
func (s *Server) handleUnprocessDocument(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	removed, err := s.indexer.Unprocess(abs)
	if err != nil {
		if errors.Is(err, indexer.ErrIndexingInProgress) {
			return nil, newMCPError(ErrorCodeIndexingInProgress, "ingestion in progress, try again later", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to update tracker", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.logger.Info("document unprocessed", zap.String("path", abs), zap.Bool("removed", removed))

	response := map[string]interface{}{
		"path":    abs,
		"removed": removed,
	}
	if !removed {
		response["message"] = "Document was not marked as processed."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// arguments returns the call arguments; a call without any is treated as empty
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// validateDirectory resolves path and checks that it is a readable directory
func validateDirectory(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", ErrPathNotFound
	}
	if err != nil {
		return "", ErrPathNotReadable
	}
	if !info.IsDir() {
		return "", ErrNotDirectory
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", ErrPathNotReadable
	}
	_ = f.Close()

	return abs, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getStringSlice accepts a JSON array of strings or a comma-separated string
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch val := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string items, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array of strings, got %T", val)
	}
}

// Validation helpers

var (
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
