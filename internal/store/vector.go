package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// DeleteEmbeddingsForWorkflow deletes every embedding belonging to
// (document_id, workflow_id), implementing the re-embedding rule of
// §4.7: callers delete before writing new embeddings so a rerun never
// leaves stale vectors behind.
func (s *Store) DeleteEmbeddingsForWorkflow(ctx context.Context, documentID, workflowID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM vector_embeddings WHERE document_id = $1 AND workflow_id = $2`,
		documentID, workflowID)
	if err != nil {
		return fmt.Errorf("store: delete embeddings for workflow: %w", err)
	}
	return nil
}

// InsertVectorEmbedding writes one embedding row, idempotent on its
// (document_id, section_type, entity_id, embedding_model,
// embedding_version) unique key.
func (s *Store) InsertVectorEmbedding(ctx context.Context, v docmodel.VectorEmbedding) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vector_embeddings
			(id, document_id, workflow_id, source_chunk_id, section_type, entity_type, entity_id,
			 embedding_model, embedding_dim, embedding_version, embedding, content_hash,
			 effective_date, location_id)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''))
		ON CONFLICT (document_id, section_type, entity_id, embedding_model, embedding_version)
		DO UPDATE SET embedding = EXCLUDED.embedding, content_hash = EXCLUDED.content_hash`,
		v.ID, v.DocumentID, v.WorkflowID, v.SourceChunkID, v.SectionType, v.EntityType, v.EntityID,
		v.EmbeddingModel, v.EmbeddingDim, v.EmbeddingVersion, v.Embedding, v.ContentHash,
		v.EffectiveDate, v.LocationID)
	if err != nil {
		return fmt.Errorf("store: insert vector embedding: %w", err)
	}
	return nil
}

// SemanticSearchFilters narrows a semantic_search call (§4.2).
type SemanticSearchFilters struct {
	DocumentID   string
	WorkflowID   string
	SectionTypes []string
	EntityTypes  []docmodel.VectorEntityType
	MaxDistance  *float64
}

// SemanticMatch pairs an embedding row with its cosine distance to the
// query vector.
type SemanticMatch struct {
	Embedding docmodel.VectorEmbedding
	Distance  float64
}

// SemanticSearch runs an ivfflat cosine nearest-neighbor query over
// vector_embeddings, applying the optional scope/type/distance filters.
func (s *Store) SemanticSearch(ctx context.Context, query pgvector.Vector, topK int, filters SemanticSearchFilters) ([]SemanticMatch, error) {
	var conditions []string
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.DocumentID != "" {
		conditions = append(conditions, "document_id = "+next(filters.DocumentID))
	}
	if filters.WorkflowID != "" {
		conditions = append(conditions, "workflow_id = "+next(filters.WorkflowID))
	}
	if len(filters.SectionTypes) > 0 {
		conditions = append(conditions, "section_type = ANY("+next(filters.SectionTypes)+")")
	}
	if len(filters.EntityTypes) > 0 {
		conditions = append(conditions, "entity_type = ANY("+next(filters.EntityTypes)+")")
	}
	if filters.MaxDistance != nil {
		conditions = append(conditions, "embedding <=> $1 <= "+next(*filters.MaxDistance))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query_ := fmt.Sprintf(`
		SELECT id, document_id, COALESCE(workflow_id, ''), COALESCE(source_chunk_id, ''), section_type,
		       entity_type, entity_id, embedding_model, embedding_dim, embedding_version, embedding,
		       content_hash, effective_date, COALESCE(location_id, ''), embedding <=> $1 AS distance
		FROM vector_embeddings
		%s
		ORDER BY embedding <=> $1
		LIMIT %d`, where, topK)

	rows, err := s.pool.Query(ctx, query_, args...)
	if err != nil {
		return nil, fmt.Errorf("store: semantic search: %w", err)
	}
	defer rows.Close()

	var out []SemanticMatch
	for rows.Next() {
		var m SemanticMatch
		if err := rows.Scan(&m.Embedding.ID, &m.Embedding.DocumentID, &m.Embedding.WorkflowID,
			&m.Embedding.SourceChunkID, &m.Embedding.SectionType, &m.Embedding.EntityType, &m.Embedding.EntityID,
			&m.Embedding.EmbeddingModel, &m.Embedding.EmbeddingDim, &m.Embedding.EmbeddingVersion, &m.Embedding.Embedding,
			&m.Embedding.ContentHash, &m.Embedding.EffectiveDate, &m.Embedding.LocationID, &m.Distance); err != nil {
			return nil, fmt.Errorf("store: scan semantic match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
