package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// UpsertCitation writes a citation keyed by its (document_id,
// source_type, source_id) unique key; a rerun over the same source
// replaces the spans rather than duplicating the row.
func (s *Store) UpsertCitation(ctx context.Context, c docmodel.Citation) error {
	spans, err := json.Marshal(c.Spans)
	if err != nil {
		return fmt.Errorf("store: marshal citation spans: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO citations
			(id, document_id, source_type, source_id, spans, verbatim_text, primary_page,
			 page_range_start, page_range_end, extraction_confidence, extraction_method, clause_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		ON CONFLICT (document_id, source_type, source_id) DO UPDATE SET
			spans = EXCLUDED.spans,
			verbatim_text = EXCLUDED.verbatim_text,
			primary_page = EXCLUDED.primary_page,
			page_range_start = EXCLUDED.page_range_start,
			page_range_end = EXCLUDED.page_range_end,
			extraction_confidence = EXCLUDED.extraction_confidence,
			extraction_method = EXCLUDED.extraction_method,
			clause_reference = EXCLUDED.clause_reference`,
		c.ID, c.DocumentID, c.SourceType, c.SourceID, spans, c.VerbatimText, c.PrimaryPage,
		c.PageRange.Start, c.PageRange.End, c.ExtractionConfidence, c.ExtractionMethod, c.ClauseReference)
	if err != nil {
		return fmt.Errorf("store: upsert citation: %w", err)
	}
	return nil
}

// GetCitation returns the citation uniquely keyed by (document_id,
// source_type, source_id), or (nil, nil) if absent.
func (s *Store) GetCitation(ctx context.Context, documentID, sourceType, sourceID string) (*docmodel.Citation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_id, source_type, source_id, spans, verbatim_text, primary_page,
		       page_range_start, page_range_end, extraction_confidence, extraction_method, COALESCE(clause_reference, '')
		FROM citations WHERE document_id = $1 AND source_type = $2 AND source_id = $3`,
		documentID, sourceType, sourceID)

	var c docmodel.Citation
	var spans []byte
	err := row.Scan(&c.ID, &c.DocumentID, &c.SourceType, &c.SourceID, &spans, &c.VerbatimText, &c.PrimaryPage,
		&c.PageRange.Start, &c.PageRange.End, &c.ExtractionConfidence, &c.ExtractionMethod, &c.ClauseReference)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get citation: %w", err)
	}
	if err := json.Unmarshal(spans, &c.Spans); err != nil {
		return nil, fmt.Errorf("store: unmarshal citation spans: %w", err)
	}
	return &c, nil
}

// ListOCRTokens returns every OCR word on documentID within
// [pageStart, pageEnd], ordered by page then word_index, the order
// the citation mapper's Tier 1 pass needs for contiguous-subsequence
// matching.
func (s *Store) ListOCRTokens(ctx context.Context, documentID string, pageStart, pageEnd int) ([]docmodel.OCRToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_id, page_number, word_index, text, x0, y0, x1, y1
		FROM ocr_tokens
		WHERE document_id = $1 AND page_number BETWEEN $2 AND $3
		ORDER BY page_number, word_index`,
		documentID, pageStart, pageEnd)
	if err != nil {
		return nil, fmt.Errorf("store: list ocr tokens: %w", err)
	}
	defer rows.Close()

	var out []docmodel.OCRToken
	for rows.Next() {
		var t docmodel.OCRToken
		if err := rows.Scan(&t.DocumentID, &t.PageNumber, &t.WordIndex, &t.Text, &t.Box.X0, &t.Box.Y0, &t.Box.X1, &t.Box.Y1); err != nil {
			return nil, fmt.Errorf("store: scan ocr token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetDocumentPage returns page layout metadata for one page, or
// (nil, nil) if absent. The citation mapper calls it only to check that
// the page row exists; it does not read width/height/rotation.
func (s *Store) GetDocumentPage(ctx context.Context, documentID string, pageNumber int) (*docmodel.DocumentPage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_id, page_number, width_points, height_points, rotation, metadata
		FROM document_pages WHERE document_id = $1 AND page_number = $2`,
		documentID, pageNumber)

	var p docmodel.DocumentPage
	var metadata []byte
	err := row.Scan(&p.ID, &p.DocumentID, &p.PageNumber, &p.WidthPoints, &p.HeightPoints, &p.Rotation, &metadata)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get document page: %w", err)
	}
	if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal page metadata: %w", err)
	}
	return &p, nil
}
