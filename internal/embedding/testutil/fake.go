// Package testutil provides a deterministic embedding.Embedder for
// tests that need stable vectors without calling out to a real model.
package testutil

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/c360studio/insurekb/internal/embedding"
	"github.com/pgvector/pgvector-go"
)

// FakeEmbedder deterministically derives a vector from the sha256 of
// its input text, so identical text always produces identical
// embeddings and distinct text produces distinct ones. It never calls
// out to a model, which is what makes indexing and dedup tests fast
// and reproducible.
type FakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	model     string
	dimension int
}

// NewFakeEmbedder creates a fake embedder with embedding.Dimension
// output width.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{model: embedding.ModelName, dimension: embedding.Dimension}
}

// ModelName returns the configured model identifier.
func (f *FakeEmbedder) ModelName() string { return f.model }

// Dimension returns the configured output width.
func (f *FakeEmbedder) Dimension() int { return f.dimension }

// Embed derives a deterministic vector from text.
func (f *FakeEmbedder) Embed(_ context.Context, text string) (pgvector.Vector, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	return deterministicVector(text, f.dimension), nil
}

// EmbedBatch derives a deterministic vector for each text in order.
func (f *FakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// CallCount returns how many times Embed was invoked (EmbedBatch
// counts once per text).
func (f *FakeEmbedder) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// deterministicVector expands a sha256 digest of text into dim
// float32 components in [-1, 1] by cycling through the digest bytes.
func deterministicVector(text string, dim int) pgvector.Vector {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	for i := range vec {
		b := sum[i%len(sum)]
		vec[i] = (float32(b)/127.5 - 1)
	}
	return pgvector.NewVector(vec)
}

var _ embedding.Embedder = (*FakeEmbedder)(nil)
