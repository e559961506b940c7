package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestDocumentsTool returns the tool definition for ingest_documents
func ingestDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_documents",
		Description: "Ingest a directory of documents (.md, .markdown, .txt) into the search index. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to ingest. Defaults to the configured source root.",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, reprocess every file even if it is unchanged",
					"default":     false,
				},
			},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search ingested documents with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + text fused with RRF), vector (semantic only), or text (BM25 only)",
					"enum":        []string{"hybrid", "vector", "text", "keyword"},
					"default":     "hybrid",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"context_id": map[string]interface{}{
					"type":        "string",
					"description": "Only return chunks from this context (the document's parent directory name)",
				},
				"file_name": map[string]interface{}{
					"type":        "string",
					"description": "Glob on the file name, e.g. 'install*.md'",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Only return chunks carrying every one of these tags",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"chunk_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob on the chunk key 'file_name#index', e.g. 'guide.md#0'",
				},
			},
			Required: []string{"query"},
		},
	}
}

// listContextsTool returns the tool definition for list_contexts
func listContextsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_contexts",
		Description: "List the distinct document contexts present in the index",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index size, tracked files and whether an ingestion is running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// unprocessDocumentTool returns the tool definition for unprocess_document
func unprocessDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "unprocess_document",
		Description: "Forget that a document was processed so the next ingestion reprocesses it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the document file",
				},
			},
			Required: []string{"path"},
		},
	}
}
