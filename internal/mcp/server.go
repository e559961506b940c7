package mcp

import (
	"context"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "docsearch-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	logger   *zap.Logger

	defaultRoot string
	defaultMode searcher.SearchMode
	defaultTopK int
	fileDelay   time.Duration

	provider string
	model    string
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger. Logs go wherever the logger writes, never stdout.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultRoot sets the directory ingested when ingest_documents has no path
func WithDefaultRoot(root string) Option {
	return func(s *Server) {
		s.defaultRoot = root
	}
}

// WithSearchDefaults sets the mode and top_k used when a search omits them
func WithSearchDefaults(mode searcher.SearchMode, topK int) Option {
	return func(s *Server) {
		if mode != "" {
			s.defaultMode = mode
		}
		if topK > 0 {
			s.defaultTopK = topK
		}
	}
}

// WithFileDelay sets the inter-file delay for ingestion runs
func WithFileDelay(d time.Duration) Option {
	return func(s *Server) {
		s.fileDelay = d
	}
}

// WithEmbedderInfo records the provider and model reported by get_status
func WithEmbedderInfo(provider, model string) Option {
	return func(s *Server) {
		s.provider = provider
		s.model = model
	}
}

// NewServer creates a new MCP server around an already wired indexer and
// searcher. The caller owns their lifetimes.
func NewServer(idx *indexer.Indexer, srch *searcher.Searcher, opts ...Option) *Server {
	s := &Server{
		indexer:     idx,
		searcher:    srch,
		logger:      zap.NewNop(),
		defaultMode: searcher.SearchModeHybrid,
		defaultTopK: 10,
		fileDelay:   indexer.DefaultFileDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()

	return s
}

// Serve runs the MCP protocol on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("MCP server ready, listening on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestDocumentsTool(), s.handleIngestDocuments)
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(listContextsTool(), s.handleListContexts)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(unprocessDocumentTool(), s.handleUnprocessDocument)
}
