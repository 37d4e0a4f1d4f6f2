package memory

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"boternity/internal/config"
	"boternity/internal/embedding"
)

// Embedder turns text into vectors. embed offloads the blocking HTTP round
// trip onto a bounded pool so a burst of concurrent memory writes can't open
// an unbounded number of in-flight requests to the embedding endpoint.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
}

type httpEmbedder struct {
	cfg  config.EmbeddingConfig
	sem  *semaphore.Weighted
	dim  int
}

// NewHTTPEmbedder wraps the OpenAI-compatible embeddings endpoint described
// by cfg. maxInFlight bounds how many embedding HTTP calls may run at once;
// callers beyond that block until a slot frees up.
func NewHTTPEmbedder(cfg config.EmbeddingConfig, maxInFlight int) Embedder {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	dim, _ := DimensionFor(cfg.Model)
	return &httpEmbedder{cfg: cfg, sem: semaphore.NewWeighted(int64(maxInFlight)), dim: dim}
}

func (e *httpEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire embed slot: %w", err)
	}
	defer e.sem.Release(1)

	type result struct {
		vecs [][]float32
		err  error
	}
	done := make(chan result, 1)
	go func() {
		vecs, err := embedding.EmbedText(ctx, e.cfg, texts)
		done <- result{vecs: vecs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if e.dim == 0 && len(r.vecs) > 0 {
			e.dim = len(r.vecs[0])
		}
		return r.vecs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *httpEmbedder) ModelName() string { return e.cfg.Model }
func (e *httpEmbedder) Dimension() int    { return e.dim }
