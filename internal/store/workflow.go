package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// CreateWorkflow inserts a new workflow row with w's status as given;
// an existing id is left untouched.
func (s *Store) CreateWorkflow(ctx context.Context, w docmodel.Workflow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflows (id, workflow_definition_id, workflow_name, status, created_at, updated_at, external_handle)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		w.ID, w.WorkflowDefinitionID, w.WorkflowName, w.Status, w.CreatedAt, w.UpdatedAt, w.ExternalHandle)
	if err != nil {
		return fmt.Errorf("store: create workflow: %w", err)
	}
	return nil
}

// AddWorkflowDocument attaches a document to a workflow, idempotent on
// (workflow_id, document_id).
func (s *Store) AddWorkflowDocument(ctx context.Context, wd docmodel.WorkflowDocument) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_documents (id, workflow_id, document_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id, document_id) DO NOTHING`,
		wd.ID, wd.WorkflowID, wd.DocumentID)
	if err != nil {
		return fmt.Errorf("store: add workflow document: %w", err)
	}
	return nil
}

// UpdateWorkflowStatus sets the workflow's terminal or in-flight status.
func (s *Store) UpdateWorkflowStatus(ctx context.Context, id string, status docmodel.WorkflowStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE workflows SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("store: update workflow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pkgerrs.ErrNotFound
	}
	return nil
}

// StartDocumentStage transitions a (workflow, document, stage) row from
// pending to running, setting started_at. Retries of a failed stage
// keep the original started_at.
func (s *Store) StartDocumentStage(ctx context.Context, r docmodel.WorkflowDocumentStageRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_document_stage_runs (id, workflow_id, document_id, stage, status, started_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (workflow_id, document_id, stage) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = COALESCE(workflow_document_stage_runs.started_at, EXCLUDED.started_at),
			error_message = ''`,
		r.ID, r.WorkflowID, r.DocumentID, r.Stage, docmodel.StageRunRunning)
	if err != nil {
		return fmt.Errorf("store: start document stage: %w", err)
	}
	return nil
}

// CompleteDocumentStage marks a (workflow, document, stage) row
// completed and clears any error message.
func (s *Store) CompleteDocumentStage(ctx context.Context, workflowID, documentID string, stage docmodel.Stage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_document_stage_runs
		SET status = $4, completed_at = now(), error_message = ''
		WHERE workflow_id = $1 AND document_id = $2 AND stage = $3`,
		workflowID, documentID, stage, docmodel.StageRunCompleted)
	if err != nil {
		return fmt.Errorf("store: complete document stage: %w", err)
	}
	return nil
}

// FailDocumentStage marks a (workflow, document, stage) row failed with
// a recorded error message; the stage may be retried later via
// StartDocumentStage.
func (s *Store) FailDocumentStage(ctx context.Context, workflowID, documentID string, stage docmodel.Stage, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_document_stage_runs
		SET status = $4, completed_at = now(), error_message = $5
		WHERE workflow_id = $1 AND document_id = $2 AND stage = $3`,
		workflowID, documentID, stage, docmodel.StageRunFailed, errMsg)
	if err != nil {
		return fmt.Errorf("store: fail document stage: %w", err)
	}
	return nil
}

// AggregateWorkflowStage computes the workflow-level status of a stage
// by reading every per-document row under an exclusive row lock, so
// two concurrent document completions can't race to compute the same
// aggregate (§4.1 concurrency & ordering).
func (s *Store) AggregateWorkflowStage(ctx context.Context, workflowID string, stage docmodel.Stage) (docmodel.StageRunStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("store: begin aggregate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT status FROM workflow_document_stage_runs
		WHERE workflow_id = $1 AND stage = $2
		FOR UPDATE`, workflowID, stage)
	if err != nil {
		return "", fmt.Errorf("store: lock stage rows: %w", err)
	}

	var runs []docmodel.WorkflowDocumentStageRun
	for rows.Next() {
		var status docmodel.StageRunStatus
		if err := rows.Scan(&status); err != nil {
			rows.Close()
			return "", fmt.Errorf("store: scan stage status: %w", err)
		}
		runs = append(runs, docmodel.WorkflowDocumentStageRun{Status: status})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("store: iterate stage rows: %w", err)
	}

	aggregate := docmodel.AggregateStageStatus(runs)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_stage_runs (id, workflow_id, stage, status, started_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (workflow_id, stage) DO UPDATE SET status = EXCLUDED.status`,
		workflowID+":"+string(stage), workflowID, stage, aggregate)
	if err != nil {
		return "", fmt.Errorf("store: write stage aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("store: commit aggregate transaction: %w", err)
	}
	return aggregate, nil
}

// GetWorkflow returns a workflow by id, or pkgerrs.ErrNotFound.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*docmodel.Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_definition_id, workflow_name, status, created_at, updated_at, completed_at, external_handle
		FROM workflows WHERE id = $1`, id)

	var w docmodel.Workflow
	err := row.Scan(&w.ID, &w.WorkflowDefinitionID, &w.WorkflowName, &w.Status, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt, &w.ExternalHandle)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pkgerrs.ErrNotFound
		}
		return nil, fmt.Errorf("store: get workflow: %w", err)
	}
	return &w, nil
}

// ListWorkflowDocuments returns the document ids attached to a workflow.
func (s *Store) ListWorkflowDocuments(ctx context.Context, workflowID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT document_id FROM workflow_documents WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list workflow documents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan workflow document: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListDocumentStageRuns returns every per-document stage row for a
// workflow, for the event stream to diff against its own dedup set.
func (s *Store) ListDocumentStageRuns(ctx context.Context, workflowID string) ([]docmodel.WorkflowDocumentStageRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, document_id, stage, status, started_at, completed_at, error_message
		FROM workflow_document_stage_runs WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list document stage runs: %w", err)
	}
	defer rows.Close()

	var out []docmodel.WorkflowDocumentStageRun
	for rows.Next() {
		var r docmodel.WorkflowDocumentStageRun
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.DocumentID, &r.Stage, &r.Status, &r.StartedAt, &r.CompletedAt, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("store: scan document stage run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRunEvent appends an event row. Ids are caller-generated; a
// duplicate id is a no-op so retried emitters stay idempotent.
func (s *Store) InsertRunEvent(ctx context.Context, e docmodel.WorkflowRunEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("store: marshal run event data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_run_events (id, workflow_id, event_type, timestamp, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.WorkflowID, e.EventType, e.Timestamp, data)
	if err != nil {
		return fmt.Errorf("store: insert run event: %w", err)
	}
	return nil
}

// ListRunEvents returns every append-only event recorded for a
// workflow, oldest first.
func (s *Store) ListRunEvents(ctx context.Context, workflowID string) ([]docmodel.WorkflowRunEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, event_type, timestamp, data
		FROM workflow_run_events WHERE workflow_id = $1 ORDER BY timestamp ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("store: list run events: %w", err)
	}
	defer rows.Close()

	var out []docmodel.WorkflowRunEvent
	for rows.Next() {
		var e docmodel.WorkflowRunEvent
		var data []byte
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.EventType, &e.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("store: scan run event: %w", err)
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("store: unmarshal run event data: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
