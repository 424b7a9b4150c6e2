package indexing_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/insurekb/internal/indexing"
)

func TestTemplate_IsByteStableAcrossCalls(t *testing.T) {
	fields := map[string]any{
		"building_value": 1234567.891,
		"address":        "100 Main St",
		"effective_date": "2026-01-15",
	}

	first := indexing.Template("policy_location", fields)
	second := indexing.Template("policy_location", fields)
	assert.Equal(t, first, second)
}

func TestTemplate_RendersCurrencyCanonically(t *testing.T) {
	out := indexing.Template("policy_coverage", map[string]any{"premium": 12345.6})
	assert.Contains(t, out, "$12,345.60")
}

func TestTemplate_RendersDateCanonically(t *testing.T) {
	out := indexing.Template("policy_claim", map[string]any{"date_of_loss": "01/15/2026"})
	assert.Contains(t, out, "2026-01-15")
}

func TestTemplate_RendersMissingValueCanonically(t *testing.T) {
	out := indexing.Template("coverage_exclusion", map[string]any{"description": ""})
	assert.Contains(t, out, "Not specified")
}

func TestTemplate_AppendsContextKeywordsLine(t *testing.T) {
	out := indexing.Template("policy_location", map[string]any{"address": "100 Main St", "occupancy_type": "Warehouse"})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	last := lines[len(lines)-1]
	assert.True(t, strings.HasPrefix(last, "Context keywords: "))
	assert.Contains(t, last, "100 Main St")
	assert.Contains(t, last, "Warehouse")
}

func TestTemplate_IgnoresEntitiesAndAdditionalDataKeys(t *testing.T) {
	out := indexing.Template("policy_coverage", map[string]any{
		"entities":        []any{map[string]any{"ignored": true}},
		"additional_data": map[string]any{"ignored": true},
		"coverage_type":   "General Liability",
	})
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, "General Liability")
}
