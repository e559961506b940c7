package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dshills/docsearch-mcp/internal/storage"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + BM25 with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeText    SearchMode = "text"    // BM25 text search only
	SearchModeKeyword SearchMode = "keyword" // Alias for text
)

const (
	// MaxTopK caps the number of results per query
	MaxTopK = 100

	// DefaultCacheSize is the number of cached responses
	DefaultCacheSize = 1000

	// DefaultCacheTTL bounds how long a cached response is served
	DefaultCacheTTL = 10 * time.Minute
)

// QueryEmbedder turns query text into a vector. embedder.Coordinator satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query  string
	Mode   SearchMode
	Filter *types.SearchFilter
	TopK   int
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int

	// SearchMode is what was asked for, EffectiveMode what actually ran
	SearchMode    SearchMode
	EffectiveMode SearchMode
	Degraded      bool

	Duration time.Duration
	CacheHit bool
}

// IndexStats summarizes the index for status reporting
type IndexStats struct {
	Exists      bool
	RecordCount int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher answers text, vector and hybrid queries over an index
type Searcher struct {
	index    storage.Index
	embedder QueryEmbedder
	logger   *zap.Logger

	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheTTL time.Duration
	cacheMu  sync.RWMutex
}

// Option configures a Searcher
type Option func(*Searcher) error

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Searcher) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// WithCache sets the response cache size and TTL. A size of 0 disables caching.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Searcher) error {
		if size <= 0 {
			s.cache = nil
			return nil
		}
		cache, err := lru.New[[32]byte, *cacheEntry](size)
		if err != nil {
			return fmt.Errorf("failed to create LRU cache: %w", err)
		}
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
		return nil
	}
}

// New creates a Searcher. emb may be nil, in which case vector queries fail
// and hybrid queries degrade to text.
func New(index storage.Index, emb QueryEmbedder, opts ...Option) (*Searcher, error) {
	s := &Searcher{
		index:    index,
		embedder: emb,
		logger:   zap.NewNop(),
		cacheTTL: DefaultCacheTTL,
	}
	if err := WithCache(DefaultCacheSize, DefaultCacheTTL)(s); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	if cached := s.checkCache(req); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		return cached, nil
	}

	var (
		response *SearchResponse
		err      error
	)
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeText:
		response, err = s.textSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	response.SearchMode = req.Mode
	response.TotalResults = len(response.Results)
	response.Duration = time.Since(startTime)

	s.logger.Debug("search completed",
		zap.String("mode", string(req.Mode)),
		zap.String("effective_mode", string(response.EffectiveMode)),
		zap.Int("results", response.TotalResults),
		zap.Duration("duration", response.Duration))

	// Degraded responses are not cached so the next call retries the vector leg
	if !response.Degraded {
		s.storeInCache(req, response)
	}
	return response, nil
}

// hybridSearch runs both legs in the index. A failed query embedding
// degrades to text-only instead of failing the search.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vec, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		s.logger.Warn("query embedding failed, falling back to text search", zap.Error(err))
		resp, textErr := s.textSearch(ctx, req)
		if textErr != nil {
			return nil, textErr
		}
		resp.Degraded = true
		return resp, nil
	}

	results, err := s.query(ctx, storage.Query{
		Text:   req.Query,
		Vector: vec,
		Filter: req.Filter,
		TopK:   req.TopK,
	})
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, EffectiveMode: SearchModeHybrid}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vec, err := s.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	results, err := s.query(ctx, storage.Query{Vector: vec, Filter: req.Filter, TopK: req.TopK})
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, EffectiveMode: SearchModeVector}, nil
}

// textSearch performs only BM25 text search
func (s *Searcher) textSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	results, err := s.query(ctx, storage.Query{Text: req.Query, Filter: req.Filter, TopK: req.TopK})
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, EffectiveMode: SearchModeText}, nil
}

func (s *Searcher) query(ctx context.Context, q storage.Query) ([]types.SearchResult, error) {
	results, err := s.index.Query(ctx, q)
	if errors.Is(err, storage.ErrEmptyQuery) {
		return nil, types.NewInvalidQuery("query", "no searchable terms")
	}
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	return results, nil
}

// embedQuery returns an error that always matches types.ErrEmbeddingFailed
func (s *Searcher) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", types.ErrEmbeddingFailed)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, types.ErrEmbeddingFailed) {
			return nil, fmt.Errorf("failed to generate query embedding: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// ListContexts returns the distinct context IDs present in the index
func (s *Searcher) ListContexts(ctx context.Context) ([]string, error) {
	return s.index.ListDistinct(ctx, "context_id")
}

// Stats reports whether the index exists and how many records it holds
func (s *Searcher) Stats(ctx context.Context) (*IndexStats, error) {
	exists, err := s.index.Exists(ctx)
	if err != nil {
		return nil, err
	}
	stats := &IndexStats{Exists: exists}
	if !exists {
		return stats, nil
	}
	if stats.RecordCount, err = s.index.Count(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// validateRequest normalizes the request or returns an error matching types.ErrInvalidQuery
func validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.NewInvalidQuery("query", "cannot be empty")
	}

	if req.TopK <= 0 {
		return types.NewInvalidQuery("top_k", "must be positive")
	}
	if req.TopK > MaxTopK {
		req.TopK = MaxTopK
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode
	return nil
}

// ParseMode maps a user-supplied mode name to a SearchMode. Empty means hybrid.
func ParseMode(name string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(name))) {
	case "", SearchModeHybrid:
		return SearchModeHybrid, nil
	case SearchModeVector:
		return SearchModeVector, nil
	case SearchModeText, SearchModeKeyword:
		return SearchModeText, nil
	default:
		return "", types.NewInvalidQuery("mode", fmt.Sprintf("unsupported search mode %q", name))
	}
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	if s.cache == nil {
		return nil
	}
	hash := computeQueryHash(req)

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a copy of response
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached response. Called after ingestion.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r
		if r.Tags != nil {
			dst.Results[i].Tags = append([]string(nil), r.Tags...)
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a normalized search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString(fmt.Sprintf("|%d", req.TopK))

	if !req.Filter.IsEmpty() {
		f := req.Filter
		data.WriteString("|filter:")
		data.WriteString(f.ContextID)
		data.WriteString("|")
		data.WriteString(f.FileName)
		data.WriteString("|")
		data.WriteString(strings.Join(f.Tags, ","))
		data.WriteString("|")
		data.WriteString(f.ChunkPattern)
	}

	return sha256.Sum256([]byte(data.String()))
}
