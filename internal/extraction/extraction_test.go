package extraction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/extraction"
	"github.com/c360studio/insurekb/internal/llm"
	"github.com/c360studio/insurekb/internal/llm/testutil"
)

func baseRequest() extraction.Request {
	return extraction.Request{
		DocumentID:    "doc-1",
		WorkflowID:    "wf-1",
		PipelineRunID: "run-1",
		ModelVersion:  "test-model",
		PromptVersion: "v1",
		Sections: map[string][]extraction.Chunk{
			"coverage":  {{ChunkID: "c1", StableChunkID: "s1", Text: "The policy provides general liability coverage."}},
			"exclusion": {{ChunkID: "c2", StableChunkID: "s2", Text: "War and nuclear hazard are excluded."}},
		},
	}
}

func TestExtract_ParsesPerSectionResults(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{{
			Content: `{
				"coverage": {"fields": {"limit": "1000000"}, "entities": [{"name": "General Liability"}], "confidence": 0.92},
				"exclusion": {"fields": {}, "entities": [{"name": "War"}], "confidence": 0.88}
			}`,
			Model: "test-model",
		}},
	}
	svc := extraction.New(mock, nil)

	results, err := svc.Extract(context.Background(), baseRequest())

	require.NoError(t, err)
	require.Len(t, results, 2)

	byType := make(map[string]int)
	for i, r := range results {
		byType[r.SectionType] = i
	}

	coverage := results[byType["coverage"]]
	assert.Equal(t, 0.92, coverage.Confidence)
	assert.Equal(t, "1000000", coverage.ExtractedFields["limit"])
	assert.Equal(t, []string{"c1"}, coverage.SourceChunks.ChunkIDs)
	assert.NotNil(t, coverage.ExtractedFields["additional_data"])

	exclusion := results[byType["exclusion"]]
	assert.Equal(t, 0.88, exclusion.Confidence)
}

func TestExtract_JSONParseFailureReturnsEmptyResultsForAllSections(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{{Content: "not json at all", Model: "test-model"}},
	}
	svc := extraction.New(mock, nil)

	results, err := svc.Extract(context.Background(), baseRequest())

	require.NoError(t, err, "a parse failure must not fail the whole batch")
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, float64(0), r.Confidence)
		assert.Equal(t, []map[string]any{}, r.ExtractedFields["entities"])
	}
}

func TestExtract_MissingSectionInResponseReturnsEmptyForThatSectionOnly(t *testing.T) {
	mock := &testutil.MockCompleter{
		Responses: []*llm.Response{{
			Content: `{"coverage": {"fields": {}, "entities": [], "confidence": 0.8}}`,
			Model:   "test-model",
		}},
	}
	svc := extraction.New(mock, nil)

	results, err := svc.Extract(context.Background(), baseRequest())

	require.NoError(t, err)
	require.Len(t, results, 2)

	var exclusion *struct{ confidence float64 }
	for _, r := range results {
		if r.SectionType == "exclusion" {
			assert.Equal(t, float64(0), r.Confidence)
			exclusion = &struct{ confidence float64 }{r.Confidence}
		}
	}
	require.NotNil(t, exclusion)
}

func TestExtract_RequiresAtLeastOneSection(t *testing.T) {
	mock := &testutil.MockCompleter{}
	svc := extraction.New(mock, nil)

	_, err := svc.Extract(context.Background(), extraction.Request{DocumentID: "doc-1"})

	require.Error(t, err)
	assert.Equal(t, 0, mock.CallCount())
}

func TestExtract_CompleterErrorSurfacesAsTransient(t *testing.T) {
	mock := &testutil.MockCompleter{Err: assertErr{}}
	svc := extraction.New(mock, nil)

	_, err := svc.Extract(context.Background(), baseRequest())

	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "provider unavailable" }
