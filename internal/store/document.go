package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// CreateDocument inserts a new document row with d's status as given;
// an existing id is left untouched.
func (s *Store) CreateDocument(ctx context.Context, d docmodel.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, file_path, mime_type, page_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.FilePath, d.MimeType, d.PageCount, d.Status, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create document: %w", err)
	}
	return nil
}

// GetDocument returns the document by id, or pkgerrs.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*docmodel.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, file_path, mime_type, page_count, status, created_at, updated_at
		FROM documents WHERE id = $1`, id)

	var d docmodel.Document
	err := row.Scan(&d.ID, &d.FilePath, &d.MimeType, &d.PageCount, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pkgerrs.ErrNotFound
		}
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	return &d, nil
}

// UpdateDocumentStatus transitions a document's status, e.g.
// "uploaded" -> "ocr_processing" -> "ocr_processed" -> "classified" -> "extracted".
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status docmodel.DocumentStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pkgerrs.ErrNotFound
	}
	return nil
}

// UpsertDocumentPage writes a page's geometry, idempotent on (document_id, page_number).
func (s *Store) UpsertDocumentPage(ctx context.Context, p docmodel.DocumentPage) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal page metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO document_pages (id, document_id, page_number, width_points, height_points, rotation, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, page_number) DO UPDATE SET
			width_points = EXCLUDED.width_points,
			height_points = EXCLUDED.height_points,
			rotation = EXCLUDED.rotation,
			metadata = EXCLUDED.metadata`,
		p.ID, p.DocumentID, p.PageNumber, p.WidthPoints, p.HeightPoints, p.Rotation, meta)
	if err != nil {
		return fmt.Errorf("store: upsert document page: %w", err)
	}
	return nil
}

// UpsertDocumentChunk writes a chunk keyed by its globally-unique,
// reproducible stable_chunk_id.
func (s *Store) UpsertDocumentChunk(ctx context.Context, c docmodel.DocumentChunk) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO document_chunks
			(id, document_id, stable_chunk_id, page_number, chunk_index, section_type,
			 effective_section_type, subsection_type, raw_text, token_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (stable_chunk_id) DO UPDATE SET
			section_type = EXCLUDED.section_type,
			effective_section_type = EXCLUDED.effective_section_type,
			subsection_type = EXCLUDED.subsection_type,
			raw_text = EXCLUDED.raw_text,
			token_count = EXCLUDED.token_count`,
		c.ID, c.DocumentID, c.StableChunkID, c.PageNumber, c.ChunkIndex, c.SectionType,
		c.EffectiveSectionType, c.SubsectionType, c.RawText, c.TokenCount)
	if err != nil {
		return fmt.Errorf("store: upsert document chunk: %w", err)
	}
	return nil
}

// ListDocumentChunks returns a document's chunks ordered by page then
// chunk index, matching the order the extraction service reads them in.
func (s *Store) ListDocumentChunks(ctx context.Context, documentID string) ([]docmodel.DocumentChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, stable_chunk_id, page_number, chunk_index, section_type,
		       effective_section_type, subsection_type, raw_text, token_count
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY page_number, chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list document chunks: %w", err)
	}
	defer rows.Close()

	var out []docmodel.DocumentChunk
	for rows.Next() {
		var c docmodel.DocumentChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.StableChunkID, &c.PageNumber, &c.ChunkIndex,
			&c.SectionType, &c.EffectiveSectionType, &c.SubsectionType, &c.RawText, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("store: scan document chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListDocumentTables returns a document's first-class extracted
// tables, for routing into relationship extraction (§4.5) alongside
// section text.
func (s *Store) ListDocumentTables(ctx context.Context, documentID string) ([]docmodel.DocumentTable, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, stable_table_id, document_id, page_number, table_index, table_type,
		       table_json, confidence, raw_markdown
		FROM document_tables
		WHERE document_id = $1
		ORDER BY page_number, table_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: list document tables: %w", err)
	}
	defer rows.Close()

	var out []docmodel.DocumentTable
	for rows.Next() {
		var t docmodel.DocumentTable
		var tableJSON []byte
		if err := rows.Scan(&t.ID, &t.StableTableID, &t.DocumentID, &t.PageNumber, &t.TableIndex,
			&t.TableType, &tableJSON, &t.Confidence, &t.RawMarkdown); err != nil {
			return nil, fmt.Errorf("store: scan document table: %w", err)
		}
		if err := json.Unmarshal(tableJSON, &t.TableJSON); err != nil {
			return nil, fmt.Errorf("store: unmarshal table json: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertDocumentTable writes a first-class table artifact keyed by its
// stable_table_id = f(doc, page, table_index).
func (s *Store) UpsertDocumentTable(ctx context.Context, t docmodel.DocumentTable) error {
	tableJSON, err := json.Marshal(t.TableJSON)
	if err != nil {
		return fmt.Errorf("store: marshal table json: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO document_tables
			(id, stable_table_id, document_id, page_number, table_index, table_type,
			 table_json, confidence, raw_markdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stable_table_id) DO UPDATE SET
			table_type = EXCLUDED.table_type,
			table_json = EXCLUDED.table_json,
			confidence = EXCLUDED.confidence,
			raw_markdown = EXCLUDED.raw_markdown`,
		t.ID, t.StableTableID, t.DocumentID, t.PageNumber, t.TableIndex, t.TableType,
		tableJSON, t.Confidence, t.RawMarkdown)
	if err != nil {
		return fmt.Errorf("store: upsert document table: %w", err)
	}
	return nil
}
