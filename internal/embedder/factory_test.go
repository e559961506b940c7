package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name      string
		provider  string
		jinaKey   string
		openaiKey string
		want      string
	}{
		{"explicit jina provider", "jina", "", "", ProviderJina},
		{"explicit ollama provider", "OLLAMA", "", "", ProviderOllama},
		{"explicit local provider", "local", "", "", ProviderLocal},
		{"jina key present", "", "test-key", "", ProviderJina},
		{"openai key present", "", "", "test-key", ProviderOpenAI},
		{"both keys, jina takes precedence", "", "jina-key", "openai-key", ProviderJina},
		{"no provider, no keys - fallback to local", "", "", "", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)

			if got := DetectProvider(); got != tt.want {
				t.Errorf("DetectProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	e, err := New(Config{Provider: "local", CacheSize: 10})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, e.Provider())

	e, err = New(Config{Provider: "openai", APIKey: "k", Model: "text-embedding-3-large", Dimension: 3072})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", e.Model())
	assert.Equal(t, 3072, e.Dimension())

	_, err = New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = New(Config{Provider: "word2vec"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)

	// Empty provider is auto-detected
	e, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, e.Provider())
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "openai-key")

	e, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, e.Provider())
	assert.Equal(t, OpenAIDimension, e.Dimension())
}
