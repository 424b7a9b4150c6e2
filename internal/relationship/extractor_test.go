package relationship_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/llm"
	"github.com/c360studio/insurekb/internal/llm/testutil"
	"github.com/c360studio/insurekb/internal/relationship"
)

func baseInput() relationship.Input {
	return relationship.Input{
		DocumentID: "doc-1",
		Sections: map[string][]relationship.Chunk{
			"declarations": {{ChunkID: "c1", Text: "This policy is issued by Acme Insurance Co to Bolt Manufacturing."}},
			"coverages":    {{ChunkID: "c2", Text: "Coverage A: General Liability, limit $1,000,000."}},
		},
		Entities: []relationship.CandidateEntity{
			{EntityID: "policy_1", CanonicalKey: "canon-policy-1", EntityType: "Policy", NormalizedValue: "pol-001"},
			{EntityID: "organization_1", CanonicalKey: "canon-org-1", EntityType: "Organization", NormalizedValue: "acme insurance co"},
		},
	}
}

func TestExtract_ResolvesAndBandsByConfidence(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{
			{Content: `{"relationships": [{"source_entity_id": "policy_1", "target_entity_id": "organization_1", "type": "ISSUED_BY", "confidence": 0.95, "evidence": [{"quote": "issued by Acme"}]}]}`},
			{Content: `{"relationships": []}`},
		},
	}
	svc := relationship.New(mock, nil)

	result, err := svc.Extract(context.Background(), baseInput())

	require.NoError(t, err)
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, "policy_1", result.Relationships[0].SourceEntityID)
	assert.Equal(t, "organization_1", result.Relationships[0].TargetEntityID)
	assert.Empty(t, result.Candidates)
}

func TestExtract_LowConfidenceBecomesCandidate(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{
			{Content: `{"relationships": [{"source_entity_id": "policy_1", "target_entity_id": "organization_1", "type": "ISSUED_BY", "confidence": 0.5, "evidence": [{"quote": "maybe issued by Acme"}]}]}`},
			{Content: `{"relationships": []}`},
		},
	}
	svc := relationship.New(mock, nil)

	result, err := svc.Extract(context.Background(), baseInput())

	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
	require.Len(t, result.Candidates, 1)
}

func TestExtract_DiscardsRelationshipWithoutEvidence(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{
			{Content: `{"relationships": [{"source_entity_id": "policy_1", "target_entity_id": "organization_1", "type": "ISSUED_BY", "confidence": 0.95, "evidence": []}]}`},
			{Content: `{"relationships": []}`},
		},
	}
	svc := relationship.New(mock, nil)

	result, err := svc.Extract(context.Background(), baseInput())

	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
	assert.Empty(t, result.Candidates)
}

func TestExtract_DiscardsUnknownRelationshipType(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{
			{Content: `{"relationships": [{"source_entity_id": "policy_1", "target_entity_id": "organization_1", "type": "BOGUS_TYPE", "confidence": 0.95, "evidence": [{"quote": "x"}]}]}`},
			{Content: `{"relationships": []}`},
		},
	}
	svc := relationship.New(mock, nil)

	result, err := svc.Extract(context.Background(), baseInput())

	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
	assert.Equal(t, 1, result.Discarded)
}

func TestExtract_UnresolvableEntityReferenceIsDiscarded(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{
			{Content: `{"relationships": [{"source_entity_id": "nothing_like_this", "target_entity_id": "organization_1", "type": "ISSUED_BY", "confidence": 0.95, "evidence": [{"quote": "x"}]}]}`},
			{Content: `{"relationships": []}`},
		},
	}
	svc := relationship.New(mock, nil)

	result, err := svc.Extract(context.Background(), baseInput())

	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
	assert.Equal(t, 1, result.Discarded)
}
