// Package extraction implements the section extraction service of
// §4.3: batched LLM calls that turn a document's chunks into
// structured SectionExtraction rows, one call potentially covering
// several section types at once to cut round-trips.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/llm"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// chunkTextLimit caps how much of a single chunk's text is inlined
// into the extraction prompt, matching the per-chunk limit the
// relationship extractor also applies.
const chunkTextLimit = 2000

// Chunk is one unit of source text offered to the model, tagged with
// the chunk id it came from so the resulting SectionExtraction can
// record its provenance.
type Chunk struct {
	ChunkID       string
	StableChunkID string
	Text          string
}

// Request groups a document's section-aligned chunks for one
// extraction call. A single Request may name multiple section types;
// the service asks the model to extract all of them together.
type Request struct {
	DocumentID    string
	WorkflowID    string
	PipelineRunID string
	ModelVersion  string
	PromptVersion string
	Sections      map[string][]Chunk // section_type -> chunks, in chunk order
}

// Service runs Tier-2 LLM extraction over section-grouped chunk text.
type Service struct {
	completer llm.Completer
	logger    *slog.Logger
}

// New builds an extraction Service. logger defaults to slog.Default()
// if nil.
func New(completer llm.Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{completer: completer, logger: logger}
}

// sectionLLMOutput is the structured shape the model is asked to
// return for every section type in the batch.
type sectionLLMOutput struct {
	Fields     map[string]any `json:"fields"`
	Entities   []map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
}

// Extract runs one batched LLM call across every section type in the
// request and returns one SectionExtraction per section. A response
// that does not parse as JSON yields an empty extraction for every
// section, and a section missing from the response yields an empty
// extraction for that section only — the service logs and continues
// rather than failing the whole batch.
func (s *Service) Extract(ctx context.Context, req Request) ([]docmodel.SectionExtraction, error) {
	if len(req.Sections) == 0 {
		return nil, pkgerrs.NewValidation(fmt.Errorf("extraction: at least one section is required"))
	}

	prompt := buildPrompt(req)
	resp, err := s.completer.Complete(ctx, llm.Request{
		Capability: "extraction",
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: 8192,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", pkgerrs.NewTransient(err))
	}

	raw := llm.ExtractJSON(resp.Content)
	var perSection map[string]sectionLLMOutput
	parseErr := error(nil)
	if raw == "" {
		parseErr = fmt.Errorf("no JSON object found in completion")
	} else if err := json.Unmarshal([]byte(raw), &perSection); err != nil {
		parseErr = err
	}

	out := make([]docmodel.SectionExtraction, 0, len(req.Sections))
	for sectionType, chunks := range req.Sections {
		result, ok := perSection[sectionType]
		if parseErr != nil || !ok {
			s.logger.Warn("section extraction parse failure, returning empty result",
				"document_id", req.DocumentID, "section_type", sectionType, "error", parseErr)
			out = append(out, emptyExtraction(req, sectionType, chunks))
			continue
		}

		fields := result.Fields
		if fields == nil {
			fields = make(map[string]any)
		}
		if _, present := fields["additional_data"]; !present {
			fields["additional_data"] = map[string]any{}
		}
		fields["entities"] = result.Entities

		out = append(out, docmodel.SectionExtraction{
			ID:              req.DocumentID + ":" + req.WorkflowID + ":" + sectionType + ":" + req.PipelineRunID,
			DocumentID:      req.DocumentID,
			WorkflowID:      req.WorkflowID,
			PipelineRunID:   req.PipelineRunID,
			SectionType:     sectionType,
			ExtractedFields: fields,
			Confidence:      result.Confidence,
			SourceChunks:    sourceChunksOf(chunks),
			ModelVersion:    req.ModelVersion,
			PromptVersion:   req.PromptVersion,
		})
	}

	return out, nil
}

func sourceChunksOf(chunks []Chunk) docmodel.SourceChunks {
	sc := docmodel.SourceChunks{
		ChunkIDs:       make([]string, 0, len(chunks)),
		StableChunkIDs: make([]string, 0, len(chunks)),
	}
	for _, c := range chunks {
		if c.ChunkID != "" {
			sc.ChunkIDs = append(sc.ChunkIDs, c.ChunkID)
		}
		if c.StableChunkID != "" {
			sc.StableChunkIDs = append(sc.StableChunkIDs, c.StableChunkID)
		}
	}
	return sc
}

func emptyExtraction(req Request, sectionType string, chunks []Chunk) docmodel.SectionExtraction {
	return docmodel.SectionExtraction{
		ID:              req.DocumentID + ":" + req.WorkflowID + ":" + sectionType + ":" + req.PipelineRunID,
		DocumentID:      req.DocumentID,
		WorkflowID:      req.WorkflowID,
		PipelineRunID:   req.PipelineRunID,
		SectionType:     sectionType,
		ExtractedFields: map[string]any{"entities": []map[string]any{}, "additional_data": map[string]any{}},
		Confidence:      0,
		SourceChunks:    sourceChunksOf(chunks),
		ModelVersion:    req.ModelVersion,
		PromptVersion:   req.PromptVersion,
	}
}

const systemPrompt = `You are an insurance document analyst. Extract structured fields and named entities for every requested section. Respond with a single JSON object keyed by section_type, each value shaped as {"fields": {...}, "entities": [...], "confidence": 0.0-1.0}. Preserve any field you cannot classify under "fields.additional_data". Never invent values not present in the source text.`

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n\nExtract the following sections:\n\n", req.DocumentID)
	for sectionType, chunks := range req.Sections {
		fmt.Fprintf(&b, "## Section: %s\n", sectionType)
		for _, chunk := range chunks {
			text := chunk.Text
			if len(text) > chunkTextLimit {
				text = text[:chunkTextLimit]
			}
			fmt.Fprintf(&b, "[chunk %s]\n%s\n\n", chunk.ChunkID, text)
		}
	}
	return b.String()
}
