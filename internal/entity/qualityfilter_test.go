package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPassesQualityFilter_NonFilteredTypeAlwaysPasses(t *testing.T) {
	summary := newFilterSummary()
	assert.True(t, passesQualityFilter("Policy", "X", 0.1, summary))
	assert.Empty(t, summary.Dropped)
}

func TestPassesQualityFilter_LowConfidenceDropped(t *testing.T) {
	summary := newFilterSummary()
	ok := passesQualityFilter("Coverage", "General Liability", 0.5, summary)
	assert.False(t, ok)
	assert.Equal(t, 1, summary.Dropped[FilterLowConfidence])
}

func TestPassesQualityFilter_GenericTermDropped(t *testing.T) {
	summary := newFilterSummary()
	ok := passesQualityFilter("Exclusion", "the policy", 0.99, summary)
	assert.False(t, ok)
	assert.Equal(t, 1, summary.Dropped[FilterGenericTerm])
}

func TestPassesQualityFilter_SectionReferenceDropped(t *testing.T) {
	summary := newFilterSummary()
	cases := []string{
		"SECTION II",
		"PART A",
		"PARAGRAPH 3",
		"4. Coverage",
		"A.2",
	}
	for _, c := range cases {
		ok := passesQualityFilter("Coverage", c, 0.99, summary)
		assert.False(t, ok, "expected %q to be dropped", c)
	}
	assert.Equal(t, len(cases), summary.Dropped[FilterSectionReference])
}

func TestPassesQualityFilter_TooShortAfterArticleStrip(t *testing.T) {
	summary := newFilterSummary()
	ok := passesQualityFilter("Coverage", "the Fire", 0.99, summary)
	assert.False(t, ok)
	assert.Equal(t, 1, summary.Dropped[FilterTooShort])
}

func TestPassesQualityFilter_ValidCandidatePasses(t *testing.T) {
	summary := newFilterSummary()
	ok := passesQualityFilter("Coverage", "General Liability", 0.9, summary)
	assert.True(t, ok)
	assert.Empty(t, summary.Dropped)
}
