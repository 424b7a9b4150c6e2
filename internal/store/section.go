package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// CreateSectionExtraction persists one Tier-2 extraction result,
// idempotent on (document_id, workflow_id, section_type, pipeline_run_id).
// Fails with pkgerrs.ValidationError if section_type is empty.
func (s *Store) CreateSectionExtraction(ctx context.Context, e docmodel.SectionExtraction) error {
	if e.SectionType == "" {
		return pkgerrs.NewValidation(fmt.Errorf("store: section_type is required"))
	}

	fields, err := json.Marshal(e.ExtractedFields)
	if err != nil {
		return fmt.Errorf("store: marshal extracted fields: %w", err)
	}
	sourceChunks, err := json.Marshal(e.SourceChunks)
	if err != nil {
		return fmt.Errorf("store: marshal source chunks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO section_extractions
			(id, document_id, workflow_id, pipeline_run_id, section_type, extracted_fields,
			 page_range_start, page_range_end, confidence, source_chunks, model_version, prompt_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (document_id, workflow_id, section_type, pipeline_run_id) DO UPDATE SET
			extracted_fields = EXCLUDED.extracted_fields,
			confidence = EXCLUDED.confidence,
			source_chunks = EXCLUDED.source_chunks`,
		e.ID, e.DocumentID, e.WorkflowID, e.PipelineRunID, e.SectionType, fields,
		e.PageRange.Start, e.PageRange.End, e.Confidence, sourceChunks, e.ModelVersion, e.PromptVersion)
	if err != nil {
		return fmt.Errorf("store: create section extraction: %w", err)
	}
	return nil
}

// ListSectionExtractions returns every section extraction for a
// document within a workflow, ordered by section_type for deterministic
// downstream processing.
func (s *Store) ListSectionExtractions(ctx context.Context, documentID, workflowID string) ([]docmodel.SectionExtraction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, workflow_id, pipeline_run_id, section_type, extracted_fields,
		       page_range_start, page_range_end, confidence, source_chunks, model_version, prompt_version
		FROM section_extractions
		WHERE document_id = $1 AND workflow_id = $2
		ORDER BY section_type`, documentID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list section extractions: %w", err)
	}
	defer rows.Close()

	var out []docmodel.SectionExtraction
	for rows.Next() {
		var e docmodel.SectionExtraction
		var fields, sourceChunks []byte
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.WorkflowID, &e.PipelineRunID, &e.SectionType, &fields,
			&e.PageRange.Start, &e.PageRange.End, &e.Confidence, &sourceChunks, &e.ModelVersion, &e.PromptVersion); err != nil {
			return nil, fmt.Errorf("store: scan section extraction: %w", err)
		}
		if err := json.Unmarshal(fields, &e.ExtractedFields); err != nil {
			return nil, fmt.Errorf("store: unmarshal extracted fields: %w", err)
		}
		if err := json.Unmarshal(sourceChunks, &e.SourceChunks); err != nil {
			return nil, fmt.Errorf("store: unmarshal source chunks: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
