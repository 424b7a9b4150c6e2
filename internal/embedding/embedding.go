// Package embedding provides the dense vector embedding contract used
// by indexing (§4.7) and GraphRAG retrieval (§4.9). All ML inference
// is invoked through an opaque Embedder; this package never trains or
// loads a model itself.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/c360studio/insurekb/internal/pkgerrs"
	"github.com/pgvector/pgvector-go"
)

// Dimension is the fixed output width of the primary embedding model
// (all-MiniLM-L6-v2). Every VectorEmbedding row and pgvector column in
// the schema is sized to this constant.
const Dimension = 384

// ModelName identifies the primary embedding model.
const ModelName = "all-MiniLM-L6-v2"

// Embedder turns text into dense vectors. Implementations must be
// safe for concurrent use; callers offload embedding calls to a
// worker pool since the underlying inference is CPU- or
// network-bound and must not block the cooperative I/O scheduler.
type Embedder interface {
	// Embed encodes a single text into a fixed-dimension vector.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// EmbedBatch encodes multiple texts in one call, preserving
	// input order in the returned slice. Implementations should
	// prefer this over repeated Embed calls when the underlying
	// model supports batching.
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)

	// ModelName returns the embedding model identifier persisted
	// alongside every VectorEmbedding row.
	ModelName() string

	// Dimension returns the fixed output width of this model.
	Dimension() int
}

// ContentHash computes the deterministic content hash stored on
// VectorEmbedding rows. Two identical templated texts always hash the
// same, so re-running indexing over unchanged input reproduces the
// same hash set. Hashes are not compared to skip re-embedding.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ValidateDimension returns a FatalError if a produced vector's
// length doesn't match the model's declared dimension. A dimension
// mismatch indicates model drift or a misconfigured endpoint and must
// halt the workflow rather than silently corrupt the index.
func ValidateDimension(vec pgvector.Vector, want int) error {
	if got := len(vec.Slice()); got != want {
		return pkgerrs.NewFatal(fmt.Errorf("embedding dimension mismatch: got %d, want %d", got, want))
	}
	return nil
}
