package embedder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dshills/docsearch-mcp/pkg/types"
)

// DefaultBatchDelay is the default pause between consecutive batch calls
const DefaultBatchDelay = 200 * time.Millisecond

// Coordinator turns chunk texts into vectors. Batches are sent one at a time
// with a fixed minimum delay between them, and every failure is isolated to
// the texts it affects: those positions receive the zero-vector sentinel.
type Coordinator struct {
	embedder  Embedder
	dimension int
	batchSize int
	limiter   *rate.Limiter
	policy    BackoffPolicy
	rnd       func() float64
	logger    *zap.Logger

	failures atomic.Int64
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithBatchSize sets the number of texts per provider call
func WithBatchSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.batchSize = n
	}
}

// WithBatchDelay sets the minimum delay between batch calls. Zero disables it.
func WithBatchDelay(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.limiter = newLimiter(d)
	}
}

// WithBackoffPolicy sets the retry policy
func WithBackoffPolicy(p BackoffPolicy) CoordinatorOption {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithDimension overrides the expected vector dimension
func WithDimension(dim int) CoordinatorOption {
	return func(c *Coordinator) {
		if dim > 0 {
			c.dimension = dim
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// withRand replaces the jitter source
func withRand(rnd func() float64) CoordinatorOption {
	return func(c *Coordinator) {
		c.rnd = rnd
	}
}

// NewCoordinator creates a Coordinator over an embedding provider
func NewCoordinator(e Embedder, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		embedder:  e,
		dimension: e.Dimension(),
		batchSize: DefaultBatchSize,
		limiter:   newLimiter(DefaultBatchDelay),
		policy:    DefaultBackoffPolicy(),
		rnd:       rand.Float64,
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.batchSize > MaxBatchSize {
		c.batchSize = MaxBatchSize
	}

	return c
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// BatchResult holds one vector per input text. Failed lists the positions
// that received the sentinel.
type BatchResult struct {
	Vectors [][]float32
	Failed  []int
}

// FailureCount returns the number of sentinel substitutions
func (r *BatchResult) FailureCount() int {
	return len(r.Failed)
}

// Dimension returns the expected vector dimension
func (c *Coordinator) Dimension() int {
	return c.dimension
}

// Provider returns the provider name
func (c *Coordinator) Provider() string {
	return c.embedder.Provider()
}

// Model returns the model name
func (c *Coordinator) Model() string {
	return c.embedder.Model()
}

// Failures returns the total number of sentinel substitutions so far
func (c *Coordinator) Failures() int64 {
	return c.failures.Load()
}

// EmbedBatch embeds texts in order. The result always has exactly one vector
// per text; failed, blank or wrong-dimension entries get the zero vector.
func (c *Coordinator) EmbedBatch(ctx context.Context, texts []string) *BatchResult {
	res := &BatchResult{Vectors: make([][]float32, len(texts))}

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		if err := c.limiter.Wait(ctx); err != nil {
			for i := start; i < len(texts); i++ {
				c.substitute(res, i, err)
			}
			break
		}

		c.embedRange(ctx, texts, start, end, res)
	}

	sort.Ints(res.Failed)
	return res
}

// embedRange embeds texts[start:end] with one batch call, falling back to
// per-text calls when the batch call fails as a whole.
func (c *Coordinator) embedRange(ctx context.Context, texts []string, start, end int, res *BatchResult) {
	var batch []string
	var positions []int
	for i := start; i < end; i++ {
		if strings.TrimSpace(texts[i]) == "" {
			c.substitute(res, i, fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, ErrEmptyText))
			continue
		}
		batch = append(batch, texts[i])
		positions = append(positions, i)
	}
	if len(batch) == 0 {
		return
	}

	resp, err := retryWithBackoff(ctx, c.policy, c.rnd, func() (*BatchEmbeddingResponse, error) {
		return c.embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: batch})
	})
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty batch response", ErrProviderFailed)
	}
	if err == nil && len(resp.Embeddings) != len(batch) {
		err = fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Embeddings), len(batch))
	}

	if err == nil {
		for j, emb := range resp.Embeddings {
			c.accept(res, positions[j], emb)
		}
		return
	}

	c.logger.Warn("batch embedding failed, retrying texts individually",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))

	for _, i := range positions {
		vec, err := c.Embed(ctx, texts[i])
		if err != nil {
			c.substitute(res, i, err)
			continue
		}
		res.Vectors[i] = vec
	}
}

// accept stores emb at position i if it has the expected dimension
func (c *Coordinator) accept(res *BatchResult, i int, emb *Embedding) {
	var vec []float32
	if emb != nil {
		vec = emb.Vector
	}
	if err := ValidateVector(vec, c.dimension); err != nil {
		c.substitute(res, i, err)
		return
	}
	res.Vectors[i] = append([]float32(nil), vec...)
}

// substitute records a failure at position i and stores the sentinel
func (c *Coordinator) substitute(res *BatchResult, i int, err error) {
	res.Vectors[i] = ZeroVector(c.dimension)
	res.Failed = append(res.Failed, i)
	c.failures.Add(1)
	c.logger.Warn("substituting zero vector",
		zap.Int("position", i),
		zap.Error(err))
}

// Embed embeds a single text. Unlike EmbedBatch it returns an error instead
// of the sentinel; the error wraps types.ErrEmbeddingFailed.
func (c *Coordinator) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, ErrEmptyText)
	}

	emb, err := retryWithBackoff(ctx, c.policy, c.rnd, func() (*Embedding, error) {
		return c.embedder.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, err)
	}

	var vec []float32
	if emb != nil {
		vec = emb.Vector
	}
	if err := ValidateVector(vec, c.dimension); err != nil {
		return nil, err
	}

	return append([]float32(nil), vec...), nil
}

// Close releases the provider
func (c *Coordinator) Close() error {
	return c.embedder.Close()
}
