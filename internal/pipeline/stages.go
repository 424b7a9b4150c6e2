// Package pipeline wires the extraction, entity, relationship,
// citation, indexing, and graph-projection services into the five
// workflow.StageProcessor implementations the orchestrator of §4.1
// sequences per document.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/insurekb/internal/citation"
	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/entity"
	"github.com/c360studio/insurekb/internal/extraction"
	"github.com/c360studio/insurekb/internal/graphproj"
	"github.com/c360studio/insurekb/internal/indexing"
	"github.com/c360studio/insurekb/internal/pkgerrs"
	"github.com/c360studio/insurekb/internal/relationship"
	"github.com/c360studio/insurekb/internal/tablevalidation"
)

// pipelineRunID and model/prompt versions are pinned module-wide
// constants until a real versioned-resource loader exists (§9 design
// note: "prompts as versioned resources").
const (
	pipelineRunID = "run_v1"
	modelVersion  = "v1"
	promptVersion = "v1"
)

// Repository is every read/write the pipeline's stage processors need
// across the document/entity/relationship/extraction tables. It is
// satisfied by *store.Store.
type Repository interface {
	GetDocument(ctx context.Context, id string) (*docmodel.Document, error)
	ListDocumentChunks(ctx context.Context, documentID string) ([]docmodel.DocumentChunk, error)
	ListDocumentTables(ctx context.Context, documentID string) ([]docmodel.DocumentTable, error)

	CreateSectionExtraction(ctx context.Context, e docmodel.SectionExtraction) error
	ListSectionExtractions(ctx context.Context, documentID, workflowID string) ([]docmodel.SectionExtraction, error)

	entity.Repository
	ListEntitiesForWorkflow(ctx context.Context, workflowID string) ([]docmodel.CanonicalEntity, error)
	InsertEntityRelationship(ctx context.Context, r docmodel.EntityRelationship) error
	ScopeRelationshipToWorkflow(ctx context.Context, workflowID, relationshipID string) error
	ListRelationshipsForWorkflow(ctx context.Context, workflowID string) ([]docmodel.EntityRelationship, error)

	UpsertCitation(ctx context.Context, c docmodel.Citation) error
}

// ProcessedStage guards that the documents fed into a workflow have
// already been chunked by upstream ingestion (OCR/chunking is
// external per the Non-goals of §1 — this stage only verifies the
// prerequisite landed).
type ProcessedStage struct {
	repo Repository
}

func NewProcessedStage(repo Repository) *ProcessedStage { return &ProcessedStage{repo: repo} }

func (p *ProcessedStage) Process(ctx context.Context, workflowID, documentID string) error {
	chunks, err := p.repo.ListDocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("processed stage: list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return pkgerrs.NewValidation(fmt.Errorf("processed stage: document %s has no chunks", documentID))
	}
	return nil
}

// ClassifiedStage guards that every chunk has been assigned a
// section_type by upstream classification before extraction runs
// against it.
type ClassifiedStage struct {
	repo Repository
}

func NewClassifiedStage(repo Repository) *ClassifiedStage { return &ClassifiedStage{repo: repo} }

func (c *ClassifiedStage) Process(ctx context.Context, workflowID, documentID string) error {
	chunks, err := c.repo.ListDocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("classified stage: list chunks: %w", err)
	}
	for _, chunk := range chunks {
		if effectiveSectionType(chunk) == "" {
			return pkgerrs.NewValidation(fmt.Errorf("classified stage: chunk %s missing section_type", chunk.StableChunkID))
		}
	}
	return nil
}

// effectiveSectionType prefers the (possibly reclassified)
// EffectiveSectionType over the original SectionType.
func effectiveSectionType(c docmodel.DocumentChunk) string {
	if c.EffectiveSectionType != "" {
		return c.EffectiveSectionType
	}
	return c.SectionType
}

// ExtractedStage runs Tier-2 LLM section extraction (§4.3) over a
// document's classified chunks, grouped by section type, and persists
// the resulting SectionExtraction rows.
type ExtractedStage struct {
	repo    Repository
	service *extraction.Service
}

func NewExtractedStage(repo Repository, service *extraction.Service) *ExtractedStage {
	return &ExtractedStage{repo: repo, service: service}
}

func (e *ExtractedStage) Process(ctx context.Context, workflowID, documentID string) error {
	chunks, err := e.repo.ListDocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("extracted stage: list chunks: %w", err)
	}

	sections := make(map[string][]extraction.Chunk)
	for _, c := range chunks {
		st := effectiveSectionType(c)
		sections[st] = append(sections[st], extraction.Chunk{
			ChunkID:       c.ID,
			StableChunkID: c.StableChunkID,
			Text:          c.RawText,
		})
	}

	extractions, err := e.service.Extract(ctx, extraction.Request{
		DocumentID:    documentID,
		WorkflowID:    workflowID,
		PipelineRunID: pipelineRunID,
		ModelVersion:  modelVersion,
		PromptVersion: promptVersion,
		Sections:      sections,
	})
	if err != nil {
		return fmt.Errorf("extracted stage: %w", err)
	}

	for _, ext := range extractions {
		if err := e.repo.CreateSectionExtraction(ctx, ext); err != nil {
			return fmt.Errorf("extracted stage: persist %s: %w", ext.SectionType, err)
		}
	}
	return nil
}

// EnrichedStage is the entity/relationship core (§4.4, §4.5): it
// aggregates and resolves entity mentions out of the document's
// section extractions, then runs the two-pass relationship extractor
// over the resulting canonical entities.
type EnrichedStage struct {
	repo       Repository
	relService *relationship.Service
	logger     *slog.Logger
}

func NewEnrichedStage(repo Repository, relService *relationship.Service, logger *slog.Logger) *EnrichedStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrichedStage{repo: repo, relService: relService, logger: logger}
}

func (en *EnrichedStage) Process(ctx context.Context, workflowID, documentID string) error {
	extractions, err := en.repo.ListSectionExtractions(ctx, documentID, workflowID)
	if err != nil {
		return fmt.Errorf("enriched stage: list extractions: %w", err)
	}

	candidates := mentionCandidates(extractions)
	aggregated := entity.Aggregate(candidates)

	resolvedByTemp := make(map[string]relationship.CandidateEntity, len(aggregated.Candidates))
	for _, cand := range aggregated.Candidates {
		canonical, err := entity.Resolve(ctx, en.repo, entity.ResolveInput{
			Candidate:  cand,
			DocumentID: documentID,
			WorkflowID: workflowID,
		})
		if err != nil {
			return fmt.Errorf("enriched stage: resolve %s: %w", cand.EntityType, err)
		}
		resolvedByTemp[canonical.ID] = relationship.CandidateEntity{
			EntityID:        canonical.ID,
			CanonicalKey:    canonical.CanonicalKey,
			EntityType:      canonical.EntityType,
			NormalizedValue: cand.NormalizedValue,
			Attributes:      canonical.Attributes,
		}
	}

	entities := make([]relationship.CandidateEntity, 0, len(resolvedByTemp))
	for _, c := range resolvedByTemp {
		entities = append(entities, c)
	}

	chunks, err := en.repo.ListDocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("enriched stage: list chunks: %w", err)
	}

	tables, err := en.repo.ListDocumentTables(ctx, documentID)
	if err != nil {
		return fmt.Errorf("enriched stage: list tables: %w", err)
	}
	for _, t := range tables {
		validation := tablevalidation.ValidateTable(t, nil)
		if !validation.Passed {
			en.logger.Warn("enriched stage: table failed validation",
				"document_id", documentID, "table_id", t.ID, "table_type", t.TableType,
				"error_count", validation.Summary["error_count"])
		}
		for _, issue := range validation.Issues {
			if issue.Severity != tablevalidation.SeverityError {
				continue
			}
			en.logger.Warn("enriched stage: table validation issue",
				"document_id", documentID, "table_id", t.ID, "issue_type", issue.IssueType, "message", issue.Message)
		}
	}

	result, err := en.relService.Extract(ctx, relationship.Input{
		DocumentID: documentID,
		Sections:   relationshipSections(extractions, chunks),
		Tables:     relationshipTables(tables),
		Entities:   entities,
	})
	if err != nil {
		return fmt.Errorf("enriched stage: relationship extract: %w", err)
	}

	for _, r := range result.Relationships {
		r.DocumentID = documentID
		if err := en.repo.InsertEntityRelationship(ctx, r); err != nil {
			return fmt.Errorf("enriched stage: persist relationship: %w", err)
		}
		if err := en.repo.ScopeRelationshipToWorkflow(ctx, workflowID, r.ID); err != nil {
			return fmt.Errorf("enriched stage: scope relationship: %w", err)
		}
	}
	if result.Discarded > 0 {
		en.logger.Warn("enriched stage: discarded relationships with an unknown type or unreconciled entity", "document_id", documentID, "count", result.Discarded)
	}
	return nil
}

// SummarizedStage covers embedding, graph projection, and citation
// creation (§4.7, §4.8, §4.6): the final stage before a document's
// contribution is fully queryable.
type SummarizedStage struct {
	repo      Repository
	citations *citation.Mapper
	indexer   *indexing.Indexer
	projector *graphproj.Projector
}

func NewSummarizedStage(repo Repository, citations *citation.Mapper, indexer *indexing.Indexer, projector *graphproj.Projector) *SummarizedStage {
	return &SummarizedStage{repo: repo, citations: citations, indexer: indexer, projector: projector}
}

func (s *SummarizedStage) Process(ctx context.Context, workflowID, documentID string) error {
	extractions, err := s.repo.ListSectionExtractions(ctx, documentID, workflowID)
	if err != nil {
		return fmt.Errorf("summarized stage: list extractions: %w", err)
	}
	chunks, err := s.repo.ListDocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("summarized stage: list chunks: %w", err)
	}

	for _, ext := range extractions {
		quote, ok := evidenceQuote(ext)
		if !ok {
			continue
		}
		c, err := s.citations.Locate(ctx, citation.Request{
			DocumentID:   documentID,
			WorkflowID:   workflowID,
			SourceType:   "section_extraction",
			SourceID:     ext.ID,
			VerbatimText: quote,
			PageRange:    ext.PageRange,
		})
		if err != nil {
			return fmt.Errorf("summarized stage: locate citation for %s: %w", ext.SectionType, err)
		}
		if c != nil {
			if err := s.repo.UpsertCitation(ctx, *c); err != nil {
				return fmt.Errorf("summarized stage: persist citation: %w", err)
			}
		}
	}

	if err := s.indexer.Index(ctx, documentID, workflowID, extractions, chunks); err != nil {
		return fmt.Errorf("summarized stage: index: %w", err)
	}

	entities, err := s.repo.ListEntitiesForWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("summarized stage: list entities: %w", err)
	}
	relationships, err := s.repo.ListRelationshipsForWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("summarized stage: list relationships: %w", err)
	}
	if err := s.projector.Project(ctx, workflowID, entities, relationships); err != nil {
		return fmt.Errorf("summarized stage: project graph: %w", err)
	}
	return nil
}

// mentionCandidates flattens every extraction's extracted_fields.entities
// list into aggregator input.
func mentionCandidates(extractions []docmodel.SectionExtraction) []entity.MentionCandidate {
	var out []entity.MentionCandidate
	for _, ext := range extractions {
		for _, m := range entityMaps(ext.ExtractedFields["entities"]) {
			out = append(out, candidateFromMap(m, ext))
		}
	}
	return out
}

// entityMaps normalizes extracted_fields.entities to []map[string]any
// regardless of whether it arrived as a freshly-unmarshaled []any
// (from JSON) or the extraction service's native []map[string]any.
func entityMaps(raw any) []map[string]any {
	switch v := raw.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func candidateFromMap(m map[string]any, ext docmodel.SectionExtraction) entity.MentionCandidate {
	c := entity.MentionCandidate{
		SectionType:         ext.SectionType,
		Confidence:          ext.Confidence,
		Attributes:          m,
		SectionExtractionID: ext.ID,
	}
	if v, ok := m["entity_type"].(string); ok {
		c.EntityType = v
	}
	c.RawText = readableMentionText(m)
	if len(ext.SourceChunks.StableChunkIDs) > 0 {
		c.SourceChunkIDs = ext.SourceChunks.StableChunkIDs
	}
	c.Normalize()
	return c
}

// readableMentionText derives the human-readable name an Evidence quote
// should show for this mention, preferring a domain-specific title field
// over the bare normalized value: title > coverage_name > exclusion_name
// > name > term, then coverage_name > title > exclusion_name nested
// under attributes, and finally raw_value.
func readableMentionText(m map[string]any) string {
	for _, key := range []string{"title", "coverage_name", "exclusion_name", "name", "term"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	if attrs, ok := m["attributes"].(map[string]any); ok {
		for _, key := range []string{"coverage_name", "title", "exclusion_name"} {
			if v, ok := attrs[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if v, ok := m["raw_value"].(string); ok {
		return v
	}
	return ""
}

func relationshipSections(extractions []docmodel.SectionExtraction, chunks []docmodel.DocumentChunk) map[string][]relationship.Chunk {
	byStableID := make(map[string]docmodel.DocumentChunk, len(chunks))
	for _, c := range chunks {
		byStableID[c.StableChunkID] = c
	}

	out := make(map[string][]relationship.Chunk)
	for _, ext := range extractions {
		for _, id := range ext.SourceChunks.StableChunkIDs {
			c, ok := byStableID[id]
			if !ok {
				continue
			}
			out[ext.SectionType] = append(out[ext.SectionType], relationship.Chunk{ChunkID: id, Text: c.RawText})
		}
	}
	return out
}

// relationshipTables converts a document's first-class extracted
// tables into the routed rows the relationship extractor's batch
// builder keys off table_type, pulling the row list out of each
// table's table_json.rows.
func relationshipTables(tables []docmodel.DocumentTable) []relationship.Table {
	out := make([]relationship.Table, 0, len(tables))
	for _, t := range tables {
		var rows []map[string]any
		if raw, ok := t.TableJSON["rows"].([]any); ok {
			for _, r := range raw {
				if row, ok := r.(map[string]any); ok {
					rows = append(rows, row)
				}
			}
		}
		out = append(out, relationship.Table{
			TableType: string(t.TableType),
			TableID:   t.ID,
			Rows:      rows,
		})
	}
	return out
}

// evidenceQuote returns the extraction's top-level "quote" field, or
// else its "verbatim_text" field, to anchor a citation. The entities
// list is not searched; an extraction with neither field gets no
// citation.
func evidenceQuote(ext docmodel.SectionExtraction) (string, bool) {
	if v, ok := ext.ExtractedFields["quote"].(string); ok && v != "" {
		return v, true
	}
	if v, ok := ext.ExtractedFields["verbatim_text"].(string); ok && v != "" {
		return v, true
	}
	return "", false
}
