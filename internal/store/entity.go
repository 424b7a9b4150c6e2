package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/entity"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

var _ entity.Repository = (*Store)(nil)

// GetCanonicalEntity looks up a canonical entity by its natural key
// (entity_type, canonical_key). Returns (nil, nil) when absent so
// callers can implement get-or-create without a sentinel-error branch.
func (s *Store) GetCanonicalEntity(ctx context.Context, entityType, canonicalKey string) (*docmodel.CanonicalEntity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, entity_type, canonical_key, attributes
		FROM canonical_entities WHERE entity_type = $1 AND canonical_key = $2`,
		entityType, canonicalKey)

	var e docmodel.CanonicalEntity
	var attrs []byte
	err := row.Scan(&e.ID, &e.EntityType, &e.CanonicalKey, &attrs)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get canonical entity: %w", err)
	}
	if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
		return nil, fmt.Errorf("store: unmarshal canonical entity attributes: %w", err)
	}
	return &e, nil
}

// CreateCanonicalEntity inserts a new canonical entity. A conflict on
// (entity_type, canonical_key) is treated as success: the deterministic
// id computation means two concurrent resolvers racing to create the
// same entity converge on the same row.
func (s *Store) CreateCanonicalEntity(ctx context.Context, e docmodel.CanonicalEntity) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("store: marshal canonical entity attributes: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO canonical_entities (id, entity_type, canonical_key, attributes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_type, canonical_key) DO NOTHING`,
		e.ID, e.EntityType, e.CanonicalKey, attrs)
	if err != nil {
		return fmt.Errorf("store: create canonical entity: %w", err)
	}
	return nil
}

// UpdateCanonicalEntityAttributes overwrites a canonical entity's
// attribute map with the resolver's monotonically-merged result.
func (s *Store) UpdateCanonicalEntityAttributes(ctx context.Context, id string, attrs map[string]any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("store: marshal canonical entity attributes: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE canonical_entities SET attributes = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("store: update canonical entity attributes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pkgerrs.ErrNotFound
	}
	return nil
}

// InsertEntityMention records a document-scoped occurrence of an entity.
func (s *Store) InsertEntityMention(ctx context.Context, m docmodel.EntityMention) error {
	fields, err := json.Marshal(m.ExtractedFields)
	if err != nil {
		return fmt.Errorf("store: marshal entity mention fields: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entity_mentions
			(id, document_id, entity_type, mention_text, extracted_fields, confidence,
			 source_document_chunk_id, source_stable_chunk_id, section_extraction_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.DocumentID, m.EntityType, m.MentionText, fields, m.Confidence,
		m.SourceDocumentChunkID, m.SourceStableChunkID, m.SectionExtractionID)
	if err != nil {
		return fmt.Errorf("store: insert entity mention: %w", err)
	}
	return nil
}

// InsertEntityEvidence binds a canonical entity to one mention.
func (s *Store) InsertEntityEvidence(ctx context.Context, e docmodel.EntityEvidence) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entity_evidence (id, canonical_entity_id, entity_mention_id, document_id, confidence, evidence_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.CanonicalEntityID, e.EntityMentionID, e.DocumentID, e.Confidence, e.EvidenceType)
	if err != nil {
		return fmt.Errorf("store: insert entity evidence: %w", err)
	}
	return nil
}

// ScopeEntityToWorkflow records that a canonical entity was touched
// while processing a given workflow, for workflow-scoped graph/query
// views.
func (s *Store) ScopeEntityToWorkflow(ctx context.Context, workflowID, canonicalEntityID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_entity_scope (workflow_id, canonical_entity_id)
		VALUES ($1, $2)
		ON CONFLICT (workflow_id, canonical_entity_id) DO NOTHING`,
		workflowID, canonicalEntityID)
	if err != nil {
		return fmt.Errorf("store: scope entity to workflow: %w", err)
	}
	return nil
}

// InsertEntityRelationship persists a directed edge between two
// canonical entities, deduplicated by (source, target, type) at the
// caller's layer before this call.
func (s *Store) InsertEntityRelationship(ctx context.Context, r docmodel.EntityRelationship) error {
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("store: marshal relationship evidence: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO entity_relationships
			(id, source_entity_id, target_entity_id, relationship_type, confidence,
			 evidence, extraction_batch, document_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_entity_id, target_entity_id, relationship_type) DO UPDATE SET
			confidence = GREATEST(entity_relationships.confidence, EXCLUDED.confidence),
			evidence = EXCLUDED.evidence`,
		r.ID, r.SourceEntityID, r.TargetEntityID, r.RelationshipType, r.Confidence,
		evidence, r.ExtractionBatch, r.DocumentID)
	if err != nil {
		return fmt.Errorf("store: insert entity relationship: %w", err)
	}
	return nil
}

// ScopeRelationshipToWorkflow records that a relationship was touched
// while processing a given workflow.
func (s *Store) ScopeRelationshipToWorkflow(ctx context.Context, workflowID, relationshipID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_relationship_scope (workflow_id, relationship_id)
		VALUES ($1, $2)
		ON CONFLICT (workflow_id, relationship_id) DO NOTHING`,
		workflowID, relationshipID)
	if err != nil {
		return fmt.Errorf("store: scope relationship to workflow: %w", err)
	}
	return nil
}

// ListEntitiesForWorkflow returns the canonical entities scoped to a
// workflow, for relationship extraction and graph projection.
func (s *Store) ListEntitiesForWorkflow(ctx context.Context, workflowID string) ([]docmodel.CanonicalEntity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ce.id, ce.entity_type, ce.canonical_key, ce.attributes
		FROM canonical_entities ce
		JOIN workflow_entity_scope wes ON wes.canonical_entity_id = ce.id
		WHERE wes.workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list entities for workflow: %w", err)
	}
	defer rows.Close()

	var out []docmodel.CanonicalEntity
	for rows.Next() {
		var e docmodel.CanonicalEntity
		var attrs []byte
		if err := rows.Scan(&e.ID, &e.EntityType, &e.CanonicalKey, &attrs); err != nil {
			return nil, fmt.Errorf("store: scan canonical entity: %w", err)
		}
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("store: unmarshal canonical entity attributes: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListCanonicalEntityIDsForSectionExtractions returns the distinct
// canonical entities evidenced by mentions sourced from the given
// section extractions, joining entity_mentions -> entity_evidence and
// reading each evidence row's canonical_entity_id. Used to seed graph expansion (§4.9 stage 5) from
// the entities actually present in the retrieved context, rather than
// from query-understanding's free-text entity guesses.
func (s *Store) ListCanonicalEntityIDsForSectionExtractions(ctx context.Context, sectionExtractionIDs []string) ([]string, error) {
	if len(sectionExtractionIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ee.canonical_entity_id
		FROM entity_mentions em
		JOIN entity_evidence ee ON ee.entity_mention_id = em.id
		WHERE em.section_extraction_id = ANY($1)`,
		sectionExtractionIDs)
	if err != nil {
		return nil, fmt.Errorf("store: list canonical entity ids for section extractions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan canonical entity id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListRelationshipsForWorkflow returns the relationships scoped to a
// workflow, for graph expansion (§4.9) and graph projection (§4.8).
func (s *Store) ListRelationshipsForWorkflow(ctx context.Context, workflowID string) ([]docmodel.EntityRelationship, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT er.id, er.source_entity_id, er.target_entity_id, er.relationship_type,
		       er.confidence, er.evidence, er.extraction_batch, er.document_id
		FROM entity_relationships er
		JOIN workflow_relationship_scope wrs ON wrs.relationship_id = er.id
		WHERE wrs.workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list relationships for workflow: %w", err)
	}
	defer rows.Close()

	var out []docmodel.EntityRelationship
	for rows.Next() {
		var r docmodel.EntityRelationship
		var evidence []byte
		if err := rows.Scan(&r.ID, &r.SourceEntityID, &r.TargetEntityID, &r.RelationshipType,
			&r.Confidence, &evidence, &r.ExtractionBatch, &r.DocumentID); err != nil {
			return nil, fmt.Errorf("store: scan entity relationship: %w", err)
		}
		if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
			return nil, fmt.Errorf("store: unmarshal relationship evidence: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
