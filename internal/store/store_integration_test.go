//go:build integration

package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding/testutil"
	"github.com/c360studio/insurekb/internal/store"
)

// setupPostgresContainer starts a pgvector-enabled Postgres container
// and applies the repository schema, returning a ready-to-use Store.
func setupPostgresContainer(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "insurekb",
			"POSTGRES_PASSWORD": "insurekb",
			"POSTGRES_DB":       "insurekb_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://insurekb:insurekb@%s:%s/insurekb_test?sslmode=disable", host, port.Port())

	s, err := store.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	schema, err := os.ReadFile("migrations/0001_schema.sql")
	require.NoError(t, err)
	_, err = s.Pool().Exec(ctx, string(schema))
	require.NoError(t, err)

	return s
}

func TestStore_DocumentLifecycle(t *testing.T) {
	s := setupPostgresContainer(t)
	ctx := context.Background()

	doc := docmodel.Document{
		ID:        "doc_1",
		FilePath:  "s3://bucket/policy.pdf",
		MimeType:  "application/pdf",
		PageCount: 12,
		Status:    docmodel.DocumentUploaded,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NoError(t, s.CreateDocument(ctx, doc), "idempotent re-create must not error")

	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.ID, docmodel.DocumentClassified))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, docmodel.DocumentClassified, got.Status)
}

func TestStore_CanonicalEntityGetOrCreateIsIdempotent(t *testing.T) {
	s := setupPostgresContainer(t)
	ctx := context.Background()

	e := docmodel.CanonicalEntity{
		ID:           "coverage_abc123",
		EntityType:   "Coverage",
		CanonicalKey: "deadbeef",
		Attributes:   map[string]any{"description": "general liability"},
	}
	require.NoError(t, s.CreateCanonicalEntity(ctx, e))
	require.NoError(t, s.CreateCanonicalEntity(ctx, e), "duplicate create must be a no-op")

	got, err := s.GetCanonicalEntity(ctx, "Coverage", "deadbeef")
	require.NoError(t, err)
	require.Equal(t, "general liability", got.Attributes["description"])
}

func TestStore_SemanticSearchReturnsNearestNeighborFirst(t *testing.T) {
	s := setupPostgresContainer(t)
	ctx := context.Background()

	doc := docmodel.Document{ID: "doc_vec", FilePath: "x", MimeType: "application/pdf", Status: docmodel.DocumentUploaded, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateDocument(ctx, doc))

	embedder := testutil.NewFakeEmbedder()
	near, err := embedder.Embed(ctx, "flood exclusion clause")
	require.NoError(t, err)
	far, err := embedder.Embed(ctx, "a completely unrelated sentence about shipping rates")
	require.NoError(t, err)

	require.NoError(t, s.InsertVectorEmbedding(ctx, docmodel.VectorEmbedding{
		ID: "ve1", DocumentID: doc.ID, SectionType: "exclusions", EntityType: docmodel.VectorEntityExclusion,
		EntityID: "exclusions_1", EmbeddingModel: "all-MiniLM-L6-v2", EmbeddingDim: 384, EmbeddingVersion: "v1",
		Embedding: near, ContentHash: "h1",
	}))
	require.NoError(t, s.InsertVectorEmbedding(ctx, docmodel.VectorEmbedding{
		ID: "ve2", DocumentID: doc.ID, SectionType: "exclusions", EntityType: docmodel.VectorEntityExclusion,
		EntityID: "exclusions_2", EmbeddingModel: "all-MiniLM-L6-v2", EmbeddingDim: 384, EmbeddingVersion: "v1",
		Embedding: far, ContentHash: "h2",
	}))

	query, err := embedder.Embed(ctx, "flood exclusion clause")
	require.NoError(t, err)

	matches, err := s.SemanticSearch(ctx, query, 2, store.SemanticSearchFilters{DocumentID: doc.ID})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "exclusions_1", matches[0].Embedding.EntityID)
}
