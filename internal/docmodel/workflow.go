package docmodel

import "time"

// Stage is one step of the fixed per-document pipeline.
type Stage string

const (
	StageProcessed  Stage = "processed"
	StageClassified Stage = "classified"
	StageExtracted  Stage = "extracted"
	StageEnriched   Stage = "enriched"
	StageSummarized Stage = "summarized"
)

// Stages is the fixed, ordered stage sequence every document advances
// through.
var Stages = []Stage{StageProcessed, StageClassified, StageExtracted, StageEnriched, StageSummarized}

// WorkflowStatus is the overall status of a Workflow.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowPartial   WorkflowStatus = "partial"
	WorkflowFailed    WorkflowStatus = "failed"
)

// Workflow is one logical run over one or more documents.
type Workflow struct {
	ID                   string
	WorkflowDefinitionID string
	WorkflowName         string
	Status               WorkflowStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	// ExternalHandle optionally identifies a durable-workflow-engine
	// run (e.g. Temporal); the orchestrator treats it opaquely.
	ExternalHandle string
}

// WorkflowDocument joins a workflow to one of its documents.
type WorkflowDocument struct {
	ID         string
	WorkflowID string
	DocumentID string
}

// StageRunStatus is the status of a per-document or aggregate stage run.
type StageRunStatus string

const (
	StageRunPending   StageRunStatus = "pending"
	StageRunRunning   StageRunStatus = "running"
	StageRunCompleted StageRunStatus = "completed"
	StageRunPartial   StageRunStatus = "partial" // aggregate-only
	StageRunFailed    StageRunStatus = "failed"
)

// WorkflowStageRun is the aggregate status of one stage across every
// document in a workflow.
type WorkflowStageRun struct {
	ID          string
	WorkflowID  string
	Stage       Stage
	Status      StageRunStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// WorkflowDocumentStageRun is the per-document status for one stage in
// one workflow.
type WorkflowDocumentStageRun struct {
	ID           string
	WorkflowID   string
	DocumentID   string
	Stage        Stage
	Status       StageRunStatus // pending, running, completed, failed (no partial)
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// WorkflowEntityScope is an idempotent membership of a canonical
// entity in a workflow's contributed set.
type WorkflowEntityScope struct {
	WorkflowID        string
	CanonicalEntityID string
}

// WorkflowRelationshipScope is an idempotent membership of a
// relationship in a workflow's contributed set.
type WorkflowRelationshipScope struct {
	WorkflowID     string
	RelationshipID string
}

// WorkflowRunEventType enumerates the append-only event kinds emitted
// during a workflow run.
type WorkflowRunEventType string

const (
	EventHeartbeat         WorkflowRunEventType = "heartbeat"
	EventWorkflowProgress  WorkflowRunEventType = "workflow_progress"
	EventStageStarted      WorkflowRunEventType = "stage_started"
	EventStageCompleted    WorkflowRunEventType = "stage_completed"
	EventStageFailed       WorkflowRunEventType = "stage_failed"
	EventWorkflowCompleted WorkflowRunEventType = "workflow_completed"
	EventWorkflowFailed    WorkflowRunEventType = "workflow_failed"
)

// WorkflowRunEvent is an append-only progress record the event stream
// derives its output from.
type WorkflowRunEvent struct {
	ID         string
	WorkflowID string
	EventType  WorkflowRunEventType
	Timestamp  time.Time
	Data       map[string]any
}

// AggregateStageStatus computes the workflow-level status for a stage
// from its per-document stage rows, per §4.1's aggregate rule:
//
//	c == N            -> completed
//	c+f == N && f > 0 -> partial
//	otherwise         -> running
func AggregateStageStatus(rows []WorkflowDocumentStageRun) StageRunStatus {
	n := len(rows)
	if n == 0 {
		return StageRunPending
	}

	var completed, failed int
	for _, r := range rows {
		switch r.Status {
		case StageRunCompleted:
			completed++
		case StageRunFailed:
			failed++
		}
	}

	switch {
	case completed == n:
		return StageRunCompleted
	case completed+failed == n && failed > 0:
		return StageRunPartial
	default:
		return StageRunRunning
	}
}
