package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hashing"

	// Default endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai"
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultOllamaBaseURL = "http://localhost:11434"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
	DefaultJitter     = 0.2

	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second

	// Consecutive failures before the circuit breaker opens
	BreakerThreshold = 5
)

// Environment variables read when no API key is configured
const (
	EnvProvider     = "DOCSEARCH_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// ProviderConfig configures a single provider
type ProviderConfig struct {
	APIKey    string
	Model     string        // Empty selects the provider default
	BaseURL   string        // Empty selects the provider default
	Dimension int           // Zero selects the provider default
	Timeout   time.Duration // HTTP timeout
	Cache     *Cache        // Optional
}

// APIError is a non-200 response from an embedding API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// apiFormat selects the request and response shape of an HTTP provider
type apiFormat int

const (
	formatOpenAI apiFormat = iota // POST /v1/embeddings {"input": [...]}
	formatOllama                  // POST /api/embed {"input": [...]}
)

// HTTPProvider implements Embedder against a remote embedding API. Calls go
// through a circuit breaker so an unavailable provider fails fast.
type HTTPProvider struct {
	name       string
	model      string
	apiKey     string
	endpoint   string
	dimension  int
	requestDim int // Sent as "dimensions" when non-zero
	format     apiFormat
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      *Cache
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(cfg ProviderConfig) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvJinaAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return newHTTPProvider(ProviderJina, cfg, DefaultJinaModel, DefaultJinaBaseURL+"/v1/embeddings", JinaDimension, formatOpenAI), nil
}

// NewOpenAIProvider creates an OpenAI embedder. BaseURL may point at any
// OpenAI-compatible server.
func NewOpenAIProvider(cfg ProviderConfig) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return newHTTPProvider(ProviderOpenAI, cfg, DefaultOpenAIModel, DefaultOpenAIBaseURL+"/v1/embeddings", OpenAIDimension, formatOpenAI), nil
}

// NewOllamaProvider creates an embedder backed by a local Ollama server
func NewOllamaProvider(cfg ProviderConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(EnvOllamaHost)
	}
	return newHTTPProvider(ProviderOllama, cfg, DefaultOllamaModel, DefaultOllamaBaseURL+"/api/embed", OllamaDimension, formatOllama), nil
}

func newHTTPProvider(name string, cfg ProviderConfig, defaultModel, defaultEndpoint string, defaultDim int, format apiFormat) *HTTPProvider {
	p := &HTTPProvider{
		name:      name,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		endpoint:  defaultEndpoint,
		dimension: defaultDim,
		format:    format,
		cache:     cfg.Cache,
	}

	if p.model == "" {
		p.model = defaultModel
	}

	if cfg.BaseURL != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		if format == formatOllama {
			p.endpoint = base + "/api/embed"
		} else {
			p.endpoint = base + "/v1/embeddings"
		}
	}

	if cfg.Dimension > 0 && cfg.Dimension != defaultDim {
		p.dimension = cfg.Dimension
		p.requestDim = cfg.Dimension
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p.httpClient = &http.Client{Timeout: timeout}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedder-" + name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerThreshold
		},
	})

	return p
}

// GenerateEmbedding generates a single embedding through the batch API
func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

// GenerateBatch embeds texts with one API call for the cache misses
func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missTexts []string
	var missIdx []int
	for i, text := range req.Texts {
		if p.cache != nil {
			if emb, ok := p.cache.Get(CacheKey(p.name, p.model, text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		out, err := p.breaker.Execute(func() (interface{}, error) {
			return p.callAPI(ctx, missTexts)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.name, err)
		}

		vectors := out.([][]float32)
		if len(vectors) != len(missTexts) {
			return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts", ErrProviderFailed, p.name, len(vectors), len(missTexts))
		}

		for j, vec := range vectors {
			i := missIdx[j]
			emb := &Embedding{
				Vector:    vec,
				Dimension: len(vec),
				Provider:  p.name,
				Model:     p.model,
				Hash:      ComputeHash(req.Texts[i]),
			}
			embeddings[i] = emb
			if p.cache != nil && len(vec) == p.dimension {
				p.cache.Set(CacheKey(p.name, p.model, req.Texts[i]), emb)
			}
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      p.model,
	}, nil
}

// callAPI posts texts and returns vectors in request order
func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": p.model,
	}
	if p.requestDim > 0 && p.format == formatOpenAI {
		reqBody["dimensions"] = p.requestDim
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if p.format == formatOllama {
		var apiResp struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return apiResp.Embeddings, nil
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	sort.SliceStable(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

// BreakerState returns the circuit breaker state ("closed", "open", "half-open")
func (p *HTTPProvider) BreakerState() string {
	return p.breaker.State().String()
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
