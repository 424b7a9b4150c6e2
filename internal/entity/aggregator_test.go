package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_DedupKeepsHigherConfidenceAndUnionsChunks(t *testing.T) {
	raw := []MentionCandidate{
		{EntityType: "Coverage", RawText: "General Liability", Confidence: 0.9, SourceChunkIDs: []string{"c1"}},
		{EntityType: "Coverage", RawText: "general   liability", Confidence: 0.95, SourceChunkIDs: []string{"c2"}},
	}

	result := Aggregate(raw)

	assert.Len(t, result.Candidates, 1)
	got := result.Candidates[0]
	assert.Equal(t, 0.95, got.Confidence)
	assert.Equal(t, []string{"c1", "c2"}, got.SourceChunkIDs)
}

func TestAggregate_DropsLowQualityCandidates(t *testing.T) {
	raw := []MentionCandidate{
		{EntityType: "Coverage", RawText: "General Liability", Confidence: 0.9},
		{EntityType: "Coverage", RawText: "SECTION II", Confidence: 0.99},
		{EntityType: "Exclusion", RawText: "War", Confidence: 0.5},
	}

	result := Aggregate(raw)

	assert.Len(t, result.Candidates, 1)
	assert.Equal(t, "general liability", result.Candidates[0].NormalizedValue)
	assert.Equal(t, 1, result.Filtered.Dropped[FilterSectionReference])
	assert.Equal(t, 1, result.Filtered.Dropped[FilterLowConfidence])
}

func TestAggregate_DistinctEntityTypesNotMerged(t *testing.T) {
	raw := []MentionCandidate{
		{EntityType: "Coverage", RawText: "Flood", Confidence: 0.9},
		{EntityType: "Exclusion", RawText: "Flood", Confidence: 0.9},
	}

	result := Aggregate(raw)

	assert.Len(t, result.Candidates, 2)
}

func TestEnrichWithContext_MatchesByEntityID(t *testing.T) {
	candidates := []MentionCandidate{
		{EntityType: "Coverage", NormalizedValue: "general liability"},
	}
	context := []map[string]any{
		{"entity_id": EntityID("Coverage", "general liability"), "description": "covers third-party bodily injury"},
	}

	enriched := EnrichWithContext(candidates, context)

	assert.Equal(t, "covers third-party bodily injury", enriched[0].Attributes["description"])
}

func TestEnrichWithContext_FallsBackToNameMatch(t *testing.T) {
	candidates := []MentionCandidate{
		{EntityType: "Coverage", NormalizedValue: "general liability"},
	}
	context := []map[string]any{
		{"name": "General Liability", "description": "from name lookup"},
	}

	enriched := EnrichWithContext(candidates, context)

	assert.Equal(t, "from name lookup", enriched[0].Attributes["description"])
}

func TestEnrichWithContext_DoesNotOverwriteExistingAttribute(t *testing.T) {
	candidates := []MentionCandidate{
		{EntityType: "Coverage", NormalizedValue: "general liability", Attributes: map[string]any{"description": "original"}},
	}
	context := []map[string]any{
		{"name": "General Liability", "description": "from context"},
	}

	enriched := EnrichWithContext(candidates, context)

	assert.Equal(t, "original", enriched[0].Attributes["description"])
}

func TestEnrichWithContext_NoMatchLeavesCandidateUnchanged(t *testing.T) {
	candidates := []MentionCandidate{
		{EntityType: "Coverage", NormalizedValue: "general liability"},
	}

	enriched := EnrichWithContext(candidates, nil)

	assert.Nil(t, enriched[0].Attributes)
}

func TestAggregate_PreservesFirstSeenOrder(t *testing.T) {
	raw := []MentionCandidate{
		{EntityType: "Policy", RawText: "POL-001", Confidence: 0.9},
		{EntityType: "Insured", RawText: "Acme Corp", Confidence: 0.9},
	}

	result := Aggregate(raw)

	assert.Equal(t, "pol-001", result.Candidates[0].NormalizedValue)
	assert.Equal(t, "acme corp", result.Candidates[1].NormalizedValue)
}
