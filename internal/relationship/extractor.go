// Package relationship implements the two-pass relationship extractor
// of §4.5: semantic section batches run first, then a cross-batch
// synthesis call fills in edges the batches missed, before a single
// dedup pass collapses both into the final relationship set.
package relationship

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/llm"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// explicitConfidence and strongImplicitThreshold are the confidence
// band boundaries from §4.5: >=0.90 explicit, 0.70-0.89 strong
// implicit, <0.70 discarded or kept as a candidate for review.
const (
	explicitConfidence      = 0.90
	strongImplicitThreshold = 0.70
)

// chunkTextLimit matches the extraction package's per-chunk cap.
const chunkTextLimit = 2000

// maxOutputTokens is the §4.5 output token cap per LLM call.
const maxOutputTokens = 64000

// synthesisEntitiesPerType caps how many canonical entities of each
// type are offered to the cross-batch synthesis prompt.
const synthesisEntitiesPerType = 20

// Chunk is one unit of source text offered to the model.
type Chunk struct {
	ChunkID string
	Text    string
}

// Table is one routed table row set, tagged with its table_type and a
// stable reference id (sov_id/claim_id/table_id as appropriate).
type Table struct {
	TableType string
	TableID   string
	Rows      []map[string]any
}

// Input groups everything the extractor needs for one document: its
// section-grouped chunks, routed tables, and the canonical entities
// seen on it so far (from entity resolution).
type Input struct {
	DocumentID string
	Sections   map[string][]Chunk // section_type -> chunks
	Tables     []Table
	Entities   []CandidateEntity
}

// Result is the extractor's output: relationships meeting the
// persistence confidence band, candidates below it kept for review,
// and a count of model-returned relationships dropped because their
// type isn't in the closed vocabulary or an endpoint couldn't be
// reconciled to a canonical entity.
type Result struct {
	Relationships []docmodel.EntityRelationship
	Candidates    []docmodel.EntityRelationship
	Discarded     int
}

// Service runs the two-pass extraction.
type Service struct {
	completer llm.Completer
	logger    *slog.Logger
}

// New builds a relationship Service. logger defaults to slog.Default().
func New(completer llm.Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{completer: completer, logger: logger}
}

// llmRelationship is the shape the model returns per relationship.
type llmRelationship struct {
	SourceEntityID string                         `json:"source_entity_id"`
	TargetEntityID string                         `json:"target_entity_id"`
	Type           string                         `json:"type"`
	Confidence     float64                        `json:"confidence"`
	Evidence       []docmodel.RelationshipEvidence `json:"evidence"`
}

type llmRelationshipResponse struct {
	Relationships []llmRelationship `json:"relationships"`
}

// Extract runs the semantic batch pass followed by cross-batch
// synthesis, reconciles every source/target id against in.Entities,
// dedups, and splits results into persisted relationships versus
// review candidates by confidence band.
func (s *Service) Extract(ctx context.Context, in Input) (Result, error) {
	presentSections := make(map[string]bool, len(in.Sections))
	for st := range in.Sections {
		presentSections[st] = true
	}
	presentTables := make(map[string]bool, len(in.Tables))
	for _, t := range in.Tables {
		presentTables[t.TableType] = true
	}

	batches := BuildBatches(presentSections, presentTables)
	resolved := newResolver(in.Entities)

	var all []docmodel.EntityRelationship
	var discarded int
	batchRelationships := make(map[string][]docmodel.EntityRelationship, len(batches))

	for _, batch := range batches {
		rels, batchDiscarded, err := s.runBatch(ctx, in.DocumentID, batch, in.Sections, in.Tables, resolved)
		if err != nil {
			return Result{}, fmt.Errorf("relationship: batch %q: %w", batch.Name, err)
		}
		discarded += batchDiscarded
		batchRelationships[batch.Name] = rels
		all = append(all, rels...)
	}

	synthesisRels, synthesisDiscarded, err := s.runSynthesis(ctx, in.DocumentID, batches, in.Entities, batchRelationships, resolved)
	if err != nil {
		return Result{}, fmt.Errorf("relationship: synthesis: %w", err)
	}
	discarded += synthesisDiscarded
	all = append(all, synthesisRels...)

	deduped := Dedup(all)

	result := Result{Discarded: discarded}
	for _, r := range deduped {
		if !hasEvidence(r) {
			s.logger.Warn("relationship discarded for missing evidence",
				"document_id", in.DocumentID, "source", r.SourceEntityID, "target", r.TargetEntityID, "type", r.RelationshipType)
			continue
		}
		if r.Confidence < strongImplicitThreshold {
			result.Candidates = append(result.Candidates, r)
			continue
		}
		result.Relationships = append(result.Relationships, r)
	}

	return result, nil
}

func (s *Service) runBatch(ctx context.Context, documentID string, batch ResolvedBatch, sections map[string][]Chunk, tables []Table, resolved *resolver) ([]docmodel.EntityRelationship, int, error) {
	routedTables := make([]Table, 0)
	for _, t := range tables {
		for _, tt := range batch.TableTypes {
			if t.TableType == tt {
				routedTables = append(routedTables, t)
				break
			}
		}
	}

	prompt := buildBatchPrompt(documentID, batch, sections, routedTables, resolved.all)
	resp, err := s.completer.Complete(ctx, llm.Request{
		Capability: "relationship",
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt(batch.ExpectedTypes)},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return nil, 0, pkgerrs.NewTransient(err)
	}

	rels, discarded := s.parseResponse(resp.Content, documentID, batch.Name, resolved)
	return rels, discarded, nil
}

func (s *Service) runSynthesis(ctx context.Context, documentID string, batches []ResolvedBatch, entities []CandidateEntity, byBatch map[string][]docmodel.EntityRelationship, resolved *resolver) ([]docmodel.EntityRelationship, int, error) {
	if len(batches) == 0 {
		return nil, 0, nil
	}

	prompt := buildSynthesisPrompt(documentID, batches, entities, byBatch)
	resp, err := s.completer.Complete(ctx, llm.Request{
		Capability: "relationship",
		Messages: []llm.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return nil, 0, pkgerrs.NewTransient(err)
	}

	rels, discarded := s.parseResponse(resp.Content, documentID, "cross_batch_synthesis", resolved)
	for i := range rels {
		rels[i].ExtractionBatch = "cross_batch_synthesis"
	}
	return rels, discarded, nil
}

func (s *Service) parseResponse(content, documentID, batchName string, resolved *resolver) ([]docmodel.EntityRelationship, int) {
	raw := llm.ExtractJSON(content)
	if raw == "" {
		s.logger.Warn("relationship batch produced no parseable JSON", "document_id", documentID, "batch", batchName)
		return nil, 0
	}

	var parsed llmRelationshipResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		s.logger.Warn("relationship batch JSON parse failure", "document_id", documentID, "batch", batchName, "error", err)
		return nil, 0
	}

	var out []docmodel.EntityRelationship
	var discarded int
	for _, r := range parsed.Relationships {
		relType := docmodel.RelationshipType(strings.ToUpper(r.Type))
		if !docmodel.ValidRelationshipTypes[relType] {
			s.logger.Warn("relationship discarded: type not in closed vocabulary",
				"document_id", documentID, "batch", batchName, "type", r.Type)
			discarded++
			continue
		}

		sourceID, sourceOK := resolved.resolve(r.SourceEntityID)
		targetID, targetOK := resolved.resolve(r.TargetEntityID)
		if !sourceOK || !targetOK {
			s.logger.Warn("relationship discarded: entity reference could not be reconciled",
				"document_id", documentID, "batch", batchName, "source", r.SourceEntityID, "target", r.TargetEntityID)
			discarded++
			continue
		}

		out = append(out, docmodel.EntityRelationship{
			SourceEntityID:   sourceID,
			TargetEntityID:   targetID,
			RelationshipType: relType,
			Confidence:       r.Confidence,
			Evidence:         r.Evidence,
			ExtractionBatch:  batchName,
			DocumentID:       documentID,
		})
	}
	return out, discarded
}

func systemPrompt(expected []docmodel.RelationshipType) string {
	names := make([]string, 0, len(expected))
	for _, t := range expected {
		names = append(names, string(t))
	}
	var vocab []string
	for t := range docmodel.ValidRelationshipTypes {
		vocab = append(vocab, string(t))
	}
	sort.Strings(vocab)
	return fmt.Sprintf(
		"You extract relationships between insurance document entities. Valid relationship types: %s. This batch expects primarily: %s. Respond with JSON: {\"relationships\": [{\"source_entity_id\", \"target_entity_id\", \"type\", \"confidence\", \"evidence\": [{\"quote\"|\"table_id\"|\"sov_id\"|\"claim_id\"}]}]}. Only emit types from the valid list. Every relationship must carry at least one evidence item.",
		strings.Join(vocab, ", "), strings.Join(names, ", "))
}

const synthesisSystemPrompt = "You review relationships already extracted across semantic batches and propose any additional edges that are missing. Only propose edges not already present. Use the same JSON response shape and the same closed relationship vocabulary."

func buildBatchPrompt(documentID string, batch ResolvedBatch, sections map[string][]Chunk, tables []Table, entities []CandidateEntity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\nBatch: %s\n\n", documentID, batch.Name)

	fmt.Fprintf(&b, "Canonical entities:\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "- %s (%s): %s\n", e.EntityID, e.EntityType, e.NormalizedValue)
	}

	fmt.Fprintf(&b, "\nSection text:\n")
	for _, st := range batch.SectionTypes {
		fmt.Fprintf(&b, "## %s\n", st)
		for _, c := range sections[st] {
			text := c.Text
			if len(text) > chunkTextLimit {
				text = text[:chunkTextLimit]
			}
			fmt.Fprintf(&b, "[%s] %s\n", c.ChunkID, text)
		}
	}

	if len(tables) > 0 {
		fmt.Fprintf(&b, "\nTables:\n")
		for _, t := range tables {
			encoded, _ := json.Marshal(t.Rows)
			fmt.Fprintf(&b, "## %s (%s)\n%s\n", t.TableType, t.TableID, encoded)
		}
	}

	return b.String()
}

func buildSynthesisPrompt(documentID string, batches []ResolvedBatch, entities []CandidateEntity, byBatch map[string][]docmodel.EntityRelationship) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n\nCanonical entities by type (truncated):\n", documentID)

	byType := make(map[string][]CandidateEntity)
	for _, e := range entities {
		byType[e.EntityType] = append(byType[e.EntityType], e)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		list := byType[t]
		if len(list) > synthesisEntitiesPerType {
			list = list[:synthesisEntitiesPerType]
		}
		fmt.Fprintf(&b, "## %s\n", t)
		for _, e := range list {
			fmt.Fprintf(&b, "- %s: %s\n", e.EntityID, e.NormalizedValue)
		}
	}

	fmt.Fprintf(&b, "\nBatch manifest:\n")
	for _, batch := range batches {
		fmt.Fprintf(&b, "- %s (priority %d): sections=%v expected=%v\n", batch.Name, batch.Priority, batch.SectionTypes, batch.ExpectedTypes)
	}

	fmt.Fprintf(&b, "\nExisting relationships by batch:\n")
	for _, batch := range batches {
		fmt.Fprintf(&b, "## %s\n", batch.Name)
		for _, r := range byBatch[batch.Name] {
			fmt.Fprintf(&b, "- %s -[%s]-> %s\n", r.SourceEntityID, r.RelationshipType, r.TargetEntityID)
		}
	}

	return b.String()
}
