package graphproj

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/insurekb/internal/docmodel"
)

func TestLabel_CapitalizesEntityType(t *testing.T) {
	assert.Equal(t, "Organization", Label("organization"))
	assert.Equal(t, "Entity", Label(""))
}

func TestSanitizeRelationshipType_UppercasesAndReplacesNonAlphanumeric(t *testing.T) {
	assert.Equal(t, "HAS_COVERAGE", SanitizeRelationshipType("HAS_COVERAGE"))
	assert.Equal(t, "ISSUED_BY", SanitizeRelationshipType("issued-by"))
	assert.Equal(t, "X_Y_Z", SanitizeRelationshipType("x.y z"))
}

func TestApprovedProperties_DropsUnapprovedAndEmptyKeys(t *testing.T) {
	attrs := map[string]any{
		"policy_number":       "P-100",
		"carrier_name":        "",
		"not_a_schema_field":  "should be dropped",
		"policy_period_start": nil,
	}
	got := approvedProperties("policy", attrs)
	assert.Equal(t, map[string]any{"policy_number": "P-100"}, got)
}

func TestApprovedProperties_UnknownEntityTypeYieldsNoProperties(t *testing.T) {
	got := approvedProperties("widget", map[string]any{"name": "x"})
	assert.Empty(t, got)
}

func TestEvidenceString_PrefersQuoteThenTableThenSOVThenClaim(t *testing.T) {
	assert.Equal(t, `{"quote":"issued by Acme"}`, evidenceString(docmodel.RelationshipEvidence{Quote: "issued by Acme", TableID: "t1"}))
	assert.Equal(t, `{"table_id":"t1"}`, evidenceString(docmodel.RelationshipEvidence{TableID: "t1"}))
	assert.Equal(t, `{"sov_id":"s1"}`, evidenceString(docmodel.RelationshipEvidence{SOVID: "s1"}))
	assert.Equal(t, `{"claim_id":"c1"}`, evidenceString(docmodel.RelationshipEvidence{ClaimID: "c1"}))
	assert.Equal(t, "{}", evidenceString(docmodel.RelationshipEvidence{}))
}
