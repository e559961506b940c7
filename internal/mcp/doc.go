// Package mcp implements the Model Context Protocol (MCP) server for docsearch.
//
// The MCP server exposes five tools to AI assistants:
//   - ingest_documents: Ingest a directory of documents into the index
//   - search_documents: Search ingested chunks with text, vector or hybrid retrieval
//   - list_contexts: List the document contexts present in the index
//   - get_status: Report index size and ingestion state
//   - unprocess_document: Forget a document so the next ingestion reprocesses it
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	docsearch serve
//
// # Tool: ingest_documents
//
//	Request:
//	{
//	  "name": "ingest_documents",
//	  "arguments": {
//	    "path": "/srv/docs",
//	    "force": false
//	  }
//	}
//
//	Response:
//	{
//	  "files_discovered": 120,
//	  "files_indexed": 4,
//	  "files_skipped": 116,
//	  "files_failed": 0,
//	  "chunks_created": 37,
//	  "records_uploaded": 37,
//	  "embedding_failures": 0,
//	  "duration_ms": 5120
//	}
//
// Without a path the configured source root is ingested.
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {
//	    "query": "how do I rotate credentials",
//	    "mode": "hybrid",
//	    "top_k": 5,
//	    "context_id": "ops",
//	    "tags": ["runbook"]
//	  }
//	}
//
//	Response:
//	{
//	  "effective_mode": "hybrid",
//	  "degraded": false,
//	  "total_results": 1,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.032,
//	      "file_name": "credentials.md",
//	      "chunk_index": 2,
//	      "title": "Credential rotation",
//	      "context_id": "ops",
//	      "content": "..."
//	    }
//	  ]
//	}
//
// A hybrid search whose query cannot be embedded falls back to text and
// reports "degraded": true. A vector search in the same situation fails with
// code -32005.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "docsearch": {
//	      "command": "/usr/local/bin/docsearch",
//	      "args": ["serve", "--config", "/etc/docsearch.yaml"],
//	      "env": {
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: Invalid params (missing/invalid arguments, empty search terms)
//   - -32603: Internal error (index, filesystem)
//   - -32001: Directory not found
//   - -32002: Ingestion in progress
//   - -32004: Empty query
//   - -32005: Query embedding unavailable
//
// Logging goes to stderr through zap; stdout carries the protocol only.
package mcp
