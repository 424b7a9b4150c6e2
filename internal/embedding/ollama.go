package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/insurekb/internal/pkgerrs"
	"github.com/pgvector/pgvector-go"
)

// OllamaEmbedder calls an Ollama-compatible /api/embeddings endpoint.
// It is the production Embedder for self-hosted all-MiniLM-L6-v2
// deployments; Anthropic and OpenAI do not expose this model so no
// provider fan-out is needed here the way llm.Client does it.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
}

// NewOllamaEmbedder creates an embedder against baseURL (default
// http://localhost:11434 when empty) serving model.
func NewOllamaEmbedder(baseURL, model string, dimension int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = ModelName
	}
	if dimension == 0 {
		dimension = Dimension
	}
	return &OllamaEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// ModelName returns the embedding model identifier.
func (o *OllamaEmbedder) ModelName() string { return o.model }

// Dimension returns the fixed output width of this model.
func (o *OllamaEmbedder) Dimension() int { return o.dimension }

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed encodes a single text into a fixed-dimension vector.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	body, err := json.Marshal(embeddingRequest{Model: o.model, Input: text})
	if err != nil {
		return pgvector.Vector{}, pkgerrs.NewFatal(fmt.Errorf("marshal embedding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return pgvector.Vector{}, pkgerrs.NewFatal(fmt.Errorf("create embedding request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return pgvector.Vector{}, pkgerrs.NewTransient(fmt.Errorf("embedding request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return pgvector.Vector{}, pkgerrs.NewTransient(fmt.Errorf("read embedding response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return pgvector.Vector{}, pkgerrs.NewTransient(fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, respBody))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return pgvector.Vector{}, pkgerrs.NewFatal(fmt.Errorf("parse embedding response: %w", err))
	}

	vec := pgvector.NewVector(parsed.Embedding)
	if err := ValidateDimension(vec, o.dimension); err != nil {
		return pgvector.Vector{}, err
	}
	return vec, nil
}

// EmbedBatch encodes multiple texts sequentially. The Ollama
// embeddings endpoint does not support batch input, so callers should
// dispatch this across a worker pool rather than relying on it to
// parallelize internally.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
