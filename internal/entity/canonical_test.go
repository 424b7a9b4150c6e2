package entity_test

import (
	"testing"

	"github.com/c360studio/insurekb/internal/entity"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalKeyDeterministic(t *testing.T) {
	a := entity.CanonicalKey("Coverage", "General Liability")
	b := entity.CanonicalKey("coverage", "general liability")
	assert.Equal(t, a, b, "canonical_key must be case-insensitive")
	assert.Len(t, a, 32)
}

func TestCanonicalKeyDistinctForDistinctValues(t *testing.T) {
	a := entity.CanonicalKey("Coverage", "General Liability")
	b := entity.CanonicalKey("Coverage", "Auto Liability")
	assert.NotEqual(t, a, b)
}

func TestEntityIDFormat(t *testing.T) {
	id := entity.EntityID("Coverage", "General Liability")
	assert.Regexp(t, `^coverage_[0-9a-f]{16}$`, id)
}

func TestEntityIDDeterministicAndCaseInsensitive(t *testing.T) {
	a := entity.EntityID("Policy", "POL-2024-001")
	b := entity.EntityID("policy", "pol-2024-001")
	assert.Equal(t, a, b)
}

func TestEntityIDDistinctFromCanonicalKey(t *testing.T) {
	key := entity.CanonicalKey("Coverage", "General Liability")
	id := entity.EntityID("Coverage", "General Liability")
	assert.NotEqual(t, key, id)
}
