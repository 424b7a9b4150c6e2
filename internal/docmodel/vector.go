package docmodel

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// VectorEntityType enumerates the artifact kinds a VectorEmbedding can
// be attached to.
type VectorEntityType string

const (
	VectorEntityChunk     VectorEntityType = "chunk"
	VectorEntityCoverage  VectorEntityType = "coverage"
	VectorEntityExclusion VectorEntityType = "exclusion"
	VectorEntityLocation  VectorEntityType = "location"
)

// VectorEmbedding is a dense vector associated with an artifact:
// either a DocumentChunk (entity_type=chunk) or a section-level entity
// (entity_type = section-specific, e.g. coverage/exclusion/location).
type VectorEmbedding struct {
	ID               string
	DocumentID       string
	WorkflowID       string // optional
	SourceChunkID    string // optional
	SectionType      string
	EntityType       VectorEntityType
	EntityID         string // stable_chunk_id for chunks; "<section>_<suffix>" otherwise
	EmbeddingModel   string
	EmbeddingDim     int
	EmbeddingVersion string
	Embedding        pgvector.Vector
	ContentHash      string // sha256 over the templated text
	EffectiveDate    *time.Time
	LocationID       string
}

// UniqueKey returns the tuple that uniquely identifies a
// VectorEmbedding row: (document_id, section_type, entity_id,
// embedding_model, embedding_version).
func (v VectorEmbedding) UniqueKey() [5]string {
	return [5]string{v.DocumentID, v.SectionType, v.EntityID, v.EmbeddingModel, v.EmbeddingVersion}
}

// SyncStatus is shared by EmbeddingSyncState and GraphSyncState.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// EmbeddingSyncState tracks whether a chunk's embedding is current
// with the configured model/version.
type EmbeddingSyncState struct {
	ChunkID          string
	EmbeddingModel   string
	EmbeddingVersion string
	VectorDimension  int
	SyncStatus       SyncStatus
	LastSyncedAt     *time.Time
	SyncError        string
}

// MarkForResync resets the state to pending and clears any error,
// causing the next sync pass to re-embed this chunk.
func (s *EmbeddingSyncState) MarkForResync() {
	s.SyncStatus = SyncPending
	s.SyncError = ""
}

// GraphSyncState tracks whether a canonical entity's graph projection
// is current.
type GraphSyncState struct {
	EntityID     string
	EntityType   string
	Neo4jNodeID  string
	SyncStatus   SyncStatus
	LastSyncedAt *time.Time
	SyncError    string
}

// MarkForResync resets the state to pending and clears any error.
func (s *GraphSyncState) MarkForResync() {
	s.SyncStatus = SyncPending
	s.SyncError = ""
}
