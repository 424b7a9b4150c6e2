package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/insurekb/internal/docmodel"
)

func TestDedup_MergesByKeyUnionsEvidenceKeepsMaxConfidence(t *testing.T) {
	rels := []docmodel.EntityRelationship{
		{
			SourceEntityID: "policy_1", TargetEntityID: "org_1", RelationshipType: docmodel.RelIssuedBy,
			Confidence: 0.8, Evidence: []docmodel.RelationshipEvidence{{Quote: "issued by Acme"}},
		},
		{
			SourceEntityID: "policy_1", TargetEntityID: "org_1", RelationshipType: docmodel.RelIssuedBy,
			Confidence: 0.95, Evidence: []docmodel.RelationshipEvidence{{Quote: "issued by Acme"}, {TableID: "tbl-1"}},
		},
	}

	out := Dedup(rels)

	assert.Len(t, out, 1)
	assert.Equal(t, 0.95, out[0].Confidence)
	assert.Len(t, out[0].Evidence, 2, "duplicate quote should collapse, table reference should be unioned in")
}

func TestDedup_DistinctTypesNotMerged(t *testing.T) {
	rels := []docmodel.EntityRelationship{
		{SourceEntityID: "policy_1", TargetEntityID: "org_1", RelationshipType: docmodel.RelIssuedBy, Confidence: 0.9},
		{SourceEntityID: "policy_1", TargetEntityID: "org_1", RelationshipType: docmodel.RelBrokeredBy, Confidence: 0.9},
	}

	out := Dedup(rels)

	assert.Len(t, out, 2)
}

func TestHasEvidence_RequiresQuoteOrTableReference(t *testing.T) {
	withQuote := docmodel.EntityRelationship{Evidence: []docmodel.RelationshipEvidence{{Quote: "x"}}}
	withoutEvidence := docmodel.EntityRelationship{Evidence: []docmodel.RelationshipEvidence{{}}}

	assert.True(t, hasEvidence(withQuote))
	assert.False(t, hasEvidence(withoutEvidence))
}
