package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// openAIServer serves /v1/embeddings, returning data entries in reverse
// order to exercise index-based reordering.
func openAIServer(t *testing.T, dim int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dim)
			vec[0] = float32(len(req.Input[i]))
			data = append(data, map[string]interface{}{"index": i, "embedding": vec})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "data": data})
	}))
}

func TestOpenAIProvider(t *testing.T) {
	var calls int32
	server := openAIServer(t, OpenAIDimension, &calls)
	defer server.Close()

	provider, err := NewOpenAIProvider(ProviderConfig{APIKey: "test-key", BaseURL: server.URL, Cache: NewCache(10)})
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, ProviderOpenAI, provider.Provider())
	assert.Equal(t, DefaultOpenAIModel, provider.Model())
	assert.Equal(t, OpenAIDimension, provider.Dimension())

	ctx := context.Background()
	resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "bbb", "cc"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(3), resp.Embeddings[1].Vector[0])
	assert.Equal(t, float32(2), resp.Embeddings[2].Vector[0])

	// Cached texts are not sent again
	emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "bbb"})
	require.NoError(t, err)
	assert.Equal(t, float32(3), emb.Vector[0])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"a", "new"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestJinaProvider(t *testing.T) {
	var calls int32
	server := openAIServer(t, JinaDimension, &calls)
	defer server.Close()

	provider, err := NewJinaProvider(ProviderConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Len(t, emb.Vector, JinaDimension)
	assert.Equal(t, ProviderJina, emb.Provider)
}

func TestHTTPProvider_MissingAPIKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")

	_, err := NewOpenAIProvider(ProviderConfig{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewJinaProvider(ProviderConfig{})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestHTTPProvider_APIKeyFromEnv(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "env-key")
	provider, err := NewOpenAIProvider(ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "env-key", provider.apiKey)
}

func TestHTTPProvider_CustomDimension(t *testing.T) {
	var gotDims float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotDims, _ = req["dimensions"].(float64)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"index": 0, "embedding": make([]float32, 256)}},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: server.URL, Dimension: 256})
	require.NoError(t, err)
	assert.Equal(t, 256, provider.Dimension())

	_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, float64(256), gotDims)
}

func TestHTTPProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingFailed)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
}

func TestHTTPProvider_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestHTTPProvider_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < BreakerThreshold; i++ {
		_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", provider.BreakerState())

	_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(BreakerThreshold), atomic.LoadInt32(&calls))
}

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := make([][]float32, len(req.Input))
		for i := range out {
			out[i] = make([]float32, OllamaDimension)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": out})
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(ProviderConfig{BaseURL: server.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, provider.Model())

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Len(t, resp.Embeddings[1].Vector, OllamaDimension)
}

func TestHTTPProvider_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
