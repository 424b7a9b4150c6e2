package graphrag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/insurekb/internal/docmodel"
)

func TestAssembleContext_FullTextWhenBudgetAllows(t *testing.T) {
	matches := []scoredMatch{
		{SourceID: "s1", Document: "doc.pdf", Text: "a short full text block", Embedding: docmodel.VectorEmbedding{SectionType: "policy_coverage"}},
	}
	got := assembleContext(matches, nil, 1000)
	assert.Equal(t, 1, got.IncludedCount)
	assert.Equal(t, 0, got.SummarizedCount)
	assert.Contains(t, got.Markdown, "a short full text block")
}

func TestAssembleContext_SummarizesWhenOverBudgetButDropsWhenExhausted(t *testing.T) {
	longText := strings.Repeat("word ", 500)
	matches := []scoredMatch{
		{SourceID: "s1", Document: "doc.pdf", Text: longText, Embedding: docmodel.VectorEmbedding{SectionType: "policy_coverage"}},
		{SourceID: "s2", Document: "doc.pdf", Text: longText, Embedding: docmodel.VectorEmbedding{SectionType: "policy_coverage"}},
	}
	got := assembleContext(matches, nil, 100)
	assert.LessOrEqual(t, got.IncludedCount+got.SummarizedCount, 2)
	assert.NotContains(t, got.Markdown, "s3")
}

func TestAssembleContext_AppendsGraphFactsWhenBudgetAllows(t *testing.T) {
	got := assembleContext(nil, []string{"policy_1 HAS_COVERAGE coverage_1"}, 1000)
	assert.Contains(t, got.Markdown, "Related entities")
	assert.Contains(t, got.Markdown, "HAS_COVERAGE")
}

func TestEstimateTokens_RoughlyFourCharsPerToken(t *testing.T) {
	assert.Equal(t, 2, estimateTokens("12345678"))
}
