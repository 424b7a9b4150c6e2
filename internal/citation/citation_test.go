package citation_test

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/citation"
	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding/testutil"
	"github.com/c360studio/insurekb/internal/store"
)

type fakeRepo struct {
	tokens  []docmodel.OCRToken
	pages   map[int]*docmodel.DocumentPage
	matches []store.SemanticMatch
}

func (f *fakeRepo) ListOCRTokens(context.Context, string, int, int) ([]docmodel.OCRToken, error) {
	return f.tokens, nil
}

func (f *fakeRepo) GetDocumentPage(_ context.Context, _ string, pageNumber int) (*docmodel.DocumentPage, error) {
	return f.pages[pageNumber], nil
}

func (f *fakeRepo) SemanticSearch(context.Context, pgvector.Vector, int, store.SemanticSearchFilters) ([]store.SemanticMatch, error) {
	return f.matches, nil
}

func wordToken(page, idx int, text string, x0 float64) docmodel.OCRToken {
	return docmodel.OCRToken{
		DocumentID: "doc-1", PageNumber: page, WordIndex: idx, Text: text,
		Box: docmodel.BoundingBox{X0: x0, Y0: 100, X1: x0 + 10, Y1: 112},
	}
}

func TestLocate_Tier1ExactMatchFindsContiguousRun(t *testing.T) {
	repo := &fakeRepo{
		tokens: []docmodel.OCRToken{
			wordToken(1, 0, "This", 0),
			wordToken(1, 1, "policy", 10),
			wordToken(1, 2, "is", 20),
			wordToken(1, 3, "issued", 30),
			wordToken(1, 4, "by", 40),
			wordToken(1, 5, "Acme", 50),
		},
		pages: map[int]*docmodel.DocumentPage{1: {ID: "p1", DocumentID: "doc-1", PageNumber: 1, WidthPoints: 612, HeightPoints: 792}},
	}
	mapper := citation.New(repo, testutil.NewFakeEmbedder())

	got, err := mapper.Locate(context.Background(), citation.Request{
		DocumentID:   "doc-1",
		SourceType:   "entity_relationship",
		SourceID:     "rel-1",
		VerbatimText: "issued by Acme",
		PageRange:    docmodel.PageRange{Start: 1, End: 1},
	})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, docmodel.MethodTier1ExactMatch, got.ExtractionMethod)
	assert.InDelta(t, 0.95, got.ExtractionConfidence, 0.0001)
	require.Len(t, got.Spans, 1)
	assert.Equal(t, 1, got.PrimaryPage)
}

func TestLocate_FallsBackToTier2WhenTier1Fails(t *testing.T) {
	repo := &fakeRepo{
		tokens: []docmodel.OCRToken{wordToken(1, 0, "Unrelated", 0), wordToken(1, 1, "text", 10)},
		pages:  map[int]*docmodel.DocumentPage{},
		matches: []store.SemanticMatch{
			{Embedding: docmodel.VectorEmbedding{EntityType: docmodel.VectorEntityChunk}, Distance: 0.2},
		},
	}
	mapper := citation.New(repo, testutil.NewFakeEmbedder())

	got, err := mapper.Locate(context.Background(), citation.Request{
		DocumentID:   "doc-1",
		SourceType:   "entity_relationship",
		SourceID:     "rel-1",
		VerbatimText: "issued by Acme",
		PageRange:    docmodel.PageRange{Start: 1, End: 1},
	})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, docmodel.MethodTier2Semantic, got.ExtractionMethod)
	assert.InDelta(t, 0.8, got.ExtractionConfidence, 0.0001)
}

func TestLocate_Tier2ReturnsNilWhenDistanceTooFar(t *testing.T) {
	repo := &fakeRepo{
		matches: []store.SemanticMatch{{Distance: 0.9}},
	}
	mapper := citation.New(repo, testutil.NewFakeEmbedder())

	got, err := mapper.Locate(context.Background(), citation.Request{
		DocumentID:   "doc-1",
		VerbatimText: "issued by Acme",
	})

	require.NoError(t, err)
	assert.Nil(t, got)
}
