// Package embedder generates vector embeddings for chunk text and queries.
//
// Providers implement the Embedder interface. The Coordinator sits in front of
// a provider and is what the rest of the pipeline talks to.
//
// # Providers
//
//   - openai: OpenAI /v1/embeddings (text-embedding-3-small, 1536 dimensions)
//   - jina: Jina AI /v1/embeddings (jina-embeddings-v3, 1024 dimensions)
//   - ollama: a local Ollama server /api/embed (nomic-embed-text, 768 dimensions)
//   - local: offline hashing-trick vectors (384 dimensions), no network
//
// HTTP providers share one client implementation with an LRU cache keyed by
// provider, model and text hash, and a circuit breaker that opens after
// consecutive failures.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    os.Getenv("OPENAI_API_KEY"),
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err) // missing credentials stop the run
//	}
//
//	coord := embedder.NewCoordinator(emb,
//	    embedder.WithBatchSize(50),
//	    embedder.WithBatchDelay(200*time.Millisecond),
//	    embedder.WithLogger(logger),
//	)
//
//	res := coord.EmbedBatch(ctx, texts)
//	// len(res.Vectors) == len(texts), always
//
// # Failure Isolation
//
// EmbedBatch never fails as a whole. A failed batch call is retried per text;
// any text that still fails, is blank, or comes back with the wrong dimension
// gets a zero vector of the configured dimension and its position is listed
// in BatchResult.Failed.
//
// Embed, used for queries, returns an error wrapping types.ErrEmbeddingFailed
// instead.
//
// # Retry
//
// BackoffPolicy holds max attempts, base delay, growth and jitter. Its Delay
// method is pure:
//
//	p := embedder.DefaultBackoffPolicy()
//	p.Delay(2, rand.Float64) // ~200ms ± 20%
//
// Input validation errors, 4xx responses other than 429 and an open circuit
// breaker are not retried.
package embedder
