package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBatches_SkipsBatchesWithNoPresentSections(t *testing.T) {
	present := map[string]bool{"coverages": true, "exclusions": true}
	tables := map[string]bool{}

	batches := BuildBatches(present, tables)

	var names []string
	for _, b := range batches {
		names = append(names, b.Name)
	}
	assert.Contains(t, names, "policy_coverage")
	assert.Contains(t, names, "coverage_exclusion")
	assert.NotContains(t, names, "policy_location")
	assert.NotContains(t, names, "policy_claim")
}

func TestBuildBatches_UnclaimedSectionBecomesFallback(t *testing.T) {
	present := map[string]bool{"declarations": true, "miscellaneous": true}
	tables := map[string]bool{}

	batches := BuildBatches(present, tables)

	var fallback *ResolvedBatch
	for i := range batches {
		if batches[i].Name == "fallback_miscellaneous" {
			fallback = &batches[i]
		}
	}
	// "miscellaneous" appears in no fixed batch's section list, so it
	// must fall back.
	if assert.NotNil(t, fallback) {
		assert.Equal(t, fallbackPriority, fallback.Priority)
		assert.Equal(t, []string{"miscellaneous"}, fallback.SectionTypes)
	}
}

func TestBuildBatches_OrderedByPriority(t *testing.T) {
	present := map[string]bool{"declarations": true, "sov": true, "coverages": true}
	tables := map[string]bool{}

	batches := BuildBatches(present, tables)

	for i := 1; i < len(batches); i++ {
		assert.LessOrEqual(t, batches[i-1].Priority, batches[i].Priority)
	}
}

func TestBuildBatches_RoutesTablesByType(t *testing.T) {
	present := map[string]bool{"declarations": true, "sov": true}
	tables := map[string]bool{"property_sov": true}

	batches := BuildBatches(present, tables)

	var location *ResolvedBatch
	for i := range batches {
		if batches[i].Name == "policy_location" {
			location = &batches[i]
		}
	}
	if assert.NotNil(t, location) {
		assert.Equal(t, []string{"property_sov"}, location.TableTypes)
	}
}
