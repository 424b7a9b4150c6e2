package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// Repository is the narrow persistence port this package needs, kept
// separate from store.Store so indexing never imports the store
// package directly.
type Repository interface {
	DeleteEmbeddingsForWorkflow(ctx context.Context, documentID, workflowID string) error
	InsertVectorEmbedding(ctx context.Context, v docmodel.VectorEmbedding) error
	UpsertEmbeddingSyncState(ctx context.Context, st docmodel.EmbeddingSyncState) error
	GetStaleEmbeddings(ctx context.Context, currentVersion string) ([]docmodel.EmbeddingSyncState, error)
}

// Indexer drives §4.7: templating, entity- and chunk-level embedding,
// and sync-state bookkeeping.
type Indexer struct {
	repo     Repository
	embedder embedding.Embedder
	version  string
	logger   *slog.Logger
}

// New builds an Indexer. version is the embedding_version stamped on
// every row this Indexer writes, so a future model/version bump shows
// up in get_stale_embeddings without touching already-current rows.
func New(repo Repository, embedder embedding.Embedder, version string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{repo: repo, embedder: embedder, version: version, logger: logger}
}

// Index runs the full re-embedding pass for one document's workflow
// run: delete any embeddings the previous run wrote, then re-derive
// entity-level and chunk-level embeddings from scratch. This is the
// re-embedding rule of §4.7 — delete-then-write avoids any drift
// between what's templated now and what was templated last run.
func (ix *Indexer) Index(ctx context.Context, documentID, workflowID string, extractions []docmodel.SectionExtraction, chunks []docmodel.DocumentChunk) error {
	if err := ix.repo.DeleteEmbeddingsForWorkflow(ctx, documentID, workflowID); err != nil {
		return err
	}
	if err := ix.indexEntities(ctx, documentID, workflowID, extractions); err != nil {
		return err
	}
	return ix.indexChunks(ctx, documentID, workflowID, chunks)
}

// indexEntities templates and embeds the entity list (or, for
// single-record section types with no entity list, the whole record)
// of every section extraction.
func (ix *Indexer) indexEntities(ctx context.Context, documentID, workflowID string, extractions []docmodel.SectionExtraction) error {
	for _, ext := range extractions {
		records, isList := entityRecords(ext.ExtractedFields)
		if !isList {
			records = []map[string]any{ext.ExtractedFields}
		}
		for i, rec := range records {
			text := Template(ext.SectionType, rec)
			vec, err := ix.embedder.Embed(ctx, text)
			if err != nil {
				return pkgerrs.NewTransient(fmt.Errorf("indexing: embed entity: %w", err))
			}
			if err := embedding.ValidateDimension(vec, ix.embedder.Dimension()); err != nil {
				return err
			}
			v := docmodel.VectorEmbedding{
				ID:               uuid.NewString(),
				DocumentID:       documentID,
				WorkflowID:       workflowID,
				SectionType:      ext.SectionType,
				EntityType:       entityVectorType(ext.SectionType),
				EntityID:         fmt.Sprintf("%s_%s", ext.SectionType, entitySuffix(rec, i)),
				EmbeddingModel:   ix.embedder.ModelName(),
				EmbeddingDim:     ix.embedder.Dimension(),
				EmbeddingVersion: ix.version,
				Embedding:        vec,
				ContentHash:      embedding.ContentHash(text),
			}
			if err := ix.repo.InsertVectorEmbedding(ctx, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexChunks embeds every chunk's contextualized text in one batch
// call and records sync state per chunk.
func (ix *Indexer) indexChunks(ctx context.Context, documentID, workflowID string, chunks []docmodel.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = contextualize(c)
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return pkgerrs.NewTransient(fmt.Errorf("indexing: embed batch: %w", err))
	}
	if len(vectors) != len(chunks) {
		return pkgerrs.NewFatal(fmt.Errorf("indexing: embed batch returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	now := time.Now().UTC()
	for i, c := range chunks {
		if err := embedding.ValidateDimension(vectors[i], ix.embedder.Dimension()); err != nil {
			return err
		}
		v := docmodel.VectorEmbedding{
			ID:               uuid.NewString(),
			DocumentID:       documentID,
			WorkflowID:       workflowID,
			SourceChunkID:    c.ID,
			SectionType:      c.SectionType,
			EntityType:       docmodel.VectorEntityChunk,
			EntityID:         c.StableChunkID,
			EmbeddingModel:   ix.embedder.ModelName(),
			EmbeddingDim:     ix.embedder.Dimension(),
			EmbeddingVersion: ix.version,
			Embedding:        vectors[i],
			ContentHash:      embedding.ContentHash(texts[i]),
		}
		if err := ix.repo.InsertVectorEmbedding(ctx, v); err != nil {
			return err
		}

		st := docmodel.EmbeddingSyncState{
			ChunkID:          c.ID,
			EmbeddingModel:   ix.embedder.ModelName(),
			EmbeddingVersion: ix.version,
			VectorDimension:  ix.embedder.Dimension(),
			SyncStatus:       docmodel.SyncSynced,
			LastSyncedAt:     &now,
		}
		if err := ix.repo.UpsertEmbeddingSyncState(ctx, st); err != nil {
			return err
		}
	}
	ix.logger.Info("indexing: chunk embeddings synced", "document_id", documentID, "count", len(chunks))
	return nil
}

// StaleChunks returns the chunks whose embedding_version lags the
// Indexer's configured version, so a model/version bump can be
// applied incrementally instead of reprocessing whole documents.
func (ix *Indexer) StaleChunks(ctx context.Context) ([]docmodel.EmbeddingSyncState, error) {
	return ix.repo.GetStaleEmbeddings(ctx, ix.version)
}

// contextualize builds the contextualized chunk text: section header,
// page number, and raw text, per §4.7's chunk-level embedding contract.
func contextualize(c docmodel.DocumentChunk) string {
	header := c.EffectiveSectionType
	if header == "" {
		header = c.SectionType
	}
	return fmt.Sprintf("Section: %s\nPage: %d\n\n%s", header, c.PageNumber, c.RawText)
}

// entityRecords returns a section extraction's entity list normalized
// to map[string]any, plus whether the fields actually carried one.
// json.Unmarshal into map[string]any produces nested arrays as
// []interface{}, so this handles that shape alongside the doc model's
// declared []map[string]any.
func entityRecords(fields map[string]any) ([]map[string]any, bool) {
	raw, ok := fields["entities"]
	if !ok {
		return nil, false
	}
	switch list := raw.(type) {
	case []map[string]any:
		return list, true
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// entitySuffix derives the deterministic entity_id suffix: the
// entity's own stable key if its processor assigned one, otherwise
// its position in the list.
func entitySuffix(rec map[string]any, index int) string {
	for _, key := range []string{"stable_key", "id", "entity_id"} {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("%d", index)
}

// entityVectorType maps a section type to the closed VectorEntityType
// vocabulary it belongs to: exclusion and location section types map
// to their own kind, and every other section type maps to coverage.
func entityVectorType(sectionType string) docmodel.VectorEntityType {
	switch sectionType {
	case "coverage_exclusion", "coverage_exclusions", "exclusion", "exclusions":
		return docmodel.VectorEntityExclusion
	case "policy_location", "policy_locations", "location", "locations":
		return docmodel.VectorEntityLocation
	default:
		return docmodel.VectorEntityCoverage
	}
}
