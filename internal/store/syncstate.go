package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// UpsertEmbeddingSyncState writes a chunk's sync state, keyed on
// chunk_id.
func (s *Store) UpsertEmbeddingSyncState(ctx context.Context, st docmodel.EmbeddingSyncState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embedding_sync_state
			(chunk_id, embedding_model, embedding_version, vector_dimension, sync_status, last_synced_at, sync_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id) DO UPDATE SET
			embedding_model = EXCLUDED.embedding_model,
			embedding_version = EXCLUDED.embedding_version,
			vector_dimension = EXCLUDED.vector_dimension,
			sync_status = EXCLUDED.sync_status,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_error = EXCLUDED.sync_error`,
		st.ChunkID, st.EmbeddingModel, st.EmbeddingVersion, st.VectorDimension, st.SyncStatus, st.LastSyncedAt, st.SyncError)
	if err != nil {
		return fmt.Errorf("store: upsert embedding sync state: %w", err)
	}
	return nil
}

// GetStaleEmbeddings returns every chunk sync row whose
// embedding_version differs from currentVersion, per §4.7's
// get_stale_embeddings contract.
func (s *Store) GetStaleEmbeddings(ctx context.Context, currentVersion string) ([]docmodel.EmbeddingSyncState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, embedding_model, embedding_version, vector_dimension, sync_status, last_synced_at, sync_error
		FROM embedding_sync_state WHERE embedding_version != $1`, currentVersion)
	if err != nil {
		return nil, fmt.Errorf("store: get stale embeddings: %w", err)
	}
	defer rows.Close()

	var out []docmodel.EmbeddingSyncState
	for rows.Next() {
		var st docmodel.EmbeddingSyncState
		if err := rows.Scan(&st.ChunkID, &st.EmbeddingModel, &st.EmbeddingVersion, &st.VectorDimension, &st.SyncStatus, &st.LastSyncedAt, &st.SyncError); err != nil {
			return nil, fmt.Errorf("store: scan embedding sync state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetEmbeddingSyncState returns one chunk's sync state, or (nil, nil)
// if it has never been synced.
func (s *Store) GetEmbeddingSyncState(ctx context.Context, chunkID string) (*docmodel.EmbeddingSyncState, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT chunk_id, embedding_model, embedding_version, vector_dimension, sync_status, last_synced_at, sync_error
		FROM embedding_sync_state WHERE chunk_id = $1`, chunkID)

	var st docmodel.EmbeddingSyncState
	err := row.Scan(&st.ChunkID, &st.EmbeddingModel, &st.EmbeddingVersion, &st.VectorDimension, &st.SyncStatus, &st.LastSyncedAt, &st.SyncError)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get embedding sync state: %w", err)
	}
	return &st, nil
}

// UpsertGraphSyncState writes a canonical entity's graph projection
// sync state, keyed on entity_id.
func (s *Store) UpsertGraphSyncState(ctx context.Context, st docmodel.GraphSyncState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO graph_sync_state (entity_id, entity_type, neo4j_node_id, sync_status, last_synced_at, sync_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			neo4j_node_id = EXCLUDED.neo4j_node_id,
			sync_status = EXCLUDED.sync_status,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_error = EXCLUDED.sync_error`,
		st.EntityID, st.EntityType, st.Neo4jNodeID, st.SyncStatus, st.LastSyncedAt, st.SyncError)
	if err != nil {
		return fmt.Errorf("store: upsert graph sync state: %w", err)
	}
	return nil
}

// ListPendingGraphSync returns every canonical entity whose graph
// projection sync_status isn't "synced".
func (s *Store) ListPendingGraphSync(ctx context.Context) ([]docmodel.GraphSyncState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id, entity_type, neo4j_node_id, sync_status, last_synced_at, sync_error
		FROM graph_sync_state WHERE sync_status != $1`, docmodel.SyncSynced)
	if err != nil {
		return nil, fmt.Errorf("store: list pending graph sync: %w", err)
	}
	defer rows.Close()

	var out []docmodel.GraphSyncState
	for rows.Next() {
		var st docmodel.GraphSyncState
		if err := rows.Scan(&st.EntityID, &st.EntityType, &st.Neo4jNodeID, &st.SyncStatus, &st.LastSyncedAt, &st.SyncError); err != nil {
			return nil, fmt.Errorf("store: scan graph sync state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
