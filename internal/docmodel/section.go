package docmodel

// PageRange bounds a section's location within a document.
type PageRange struct {
	Start int
	End   int
}

// SourceChunks records the chunks a section extraction was derived
// from, by both internal row id and stable id.
type SourceChunks struct {
	ChunkIDs       []string
	StableChunkIDs []string
}

// SectionExtraction is the output of Tier-2 LLM extraction for one
// section on one document.
type SectionExtraction struct {
	ID              string
	DocumentID      string
	WorkflowID      string
	PipelineRunID   string
	SectionType     string
	ExtractedFields map[string]any // includes an "entities" list and "additional_data" for unknown fields
	PageRange       PageRange
	Confidence      float64
	SourceChunks    SourceChunks
	ModelVersion    string
	PromptVersion   string
}

// Key returns the natural uniqueness key for a SectionExtraction:
// (document_id, workflow_id, section_type, pipeline_run_id).
func (s SectionExtraction) Key() SectionExtractionKey {
	return SectionExtractionKey{
		DocumentID:    s.DocumentID,
		WorkflowID:    s.WorkflowID,
		SectionType:   s.SectionType,
		PipelineRunID: s.PipelineRunID,
	}
}

// SectionExtractionKey is the natural key of a SectionExtraction row.
type SectionExtractionKey struct {
	DocumentID    string
	WorkflowID    string
	SectionType   string
	PipelineRunID string
}

// Entities returns the raw entity list carried in extracted_fields,
// or nil if the section has none.
func (s SectionExtraction) Entities() []map[string]any {
	raw, ok := s.ExtractedFields["entities"]
	if !ok {
		return nil
	}
	list, ok := raw.([]map[string]any)
	if !ok {
		return nil
	}
	return list
}
