package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func candidates() []CandidateEntity {
	return []CandidateEntity{
		{EntityID: "policy_abc123", CanonicalKey: "canon-policy-1", EntityType: "Policy", NormalizedValue: "pol-001", Attributes: map[string]any{"id": "attr-policy-1"}},
		{EntityID: "organization_def456", CanonicalKey: "canon-org-1", EntityType: "Organization", NormalizedValue: "acme corp"},
	}
}

func TestResolve_ExactCanonicalKey(t *testing.T) {
	r := newResolver(candidates())
	id, ok := r.resolve("canon-policy-1")
	assert.True(t, ok)
	assert.Equal(t, "policy_abc123", id)
}

func TestResolve_AttributeID(t *testing.T) {
	r := newResolver(candidates())
	id, ok := r.resolve("attr-policy-1")
	assert.True(t, ok)
	assert.Equal(t, "policy_abc123", id)
}

func TestResolve_TypeValueForm(t *testing.T) {
	r := newResolver(candidates())
	id, ok := r.resolve("Organization:acme corp")
	assert.True(t, ok)
	assert.Equal(t, "organization_def456", id)
}

func TestResolve_CaseInsensitiveNormalizedValue(t *testing.T) {
	r := newResolver(candidates())
	id, ok := r.resolve("ACME CORP")
	assert.True(t, ok)
	assert.Equal(t, "organization_def456", id)
}

func TestResolve_SubstringContainment(t *testing.T) {
	r := newResolver(candidates())
	id, ok := r.resolve("Acme Corp Holdings")
	assert.True(t, ok)
	assert.Equal(t, "organization_def456", id)
}

func TestResolve_TempIDPassesThroughUnresolved(t *testing.T) {
	r := newResolver(candidates())
	id, ok := r.resolve("temp_9")
	assert.True(t, ok)
	assert.Equal(t, "temp_9", id)
}

func TestResolve_NoMatchReturnsFalse(t *testing.T) {
	r := newResolver(candidates())
	_, ok := r.resolve("xy")
	assert.False(t, ok)
}
