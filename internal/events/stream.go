// Package events derives a monotonically ordered stream of workflow
// progress events by polling persisted state (§4.10). Nothing is
// pushed: a Stream re-reads the workflow's stage rows and run-event
// rows on every tick, diffs them against a per-subscriber dedup set,
// and emits only what it hasn't emitted before.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// defaultPollInterval is the heartbeat cadence when nothing new has
// happened.
const defaultPollInterval = 2 * time.Second

// eventChannelBuffer bounds the outgoing channel so a slow subscriber
// can't block the poll loop indefinitely.
const eventChannelBuffer = 256

// Repository is the narrow read surface a Stream needs.
type Repository interface {
	GetWorkflow(ctx context.Context, id string) (*docmodel.Workflow, error)
	ListDocumentStageRuns(ctx context.Context, workflowID string) ([]docmodel.WorkflowDocumentStageRun, error)
	ListRunEvents(ctx context.Context, workflowID string) ([]docmodel.WorkflowRunEvent, error)
}

// Stream polls one workflow's persisted state and emits events on a
// channel until the workflow reaches a terminal status or the caller
// cancels the context.
type Stream struct {
	repo         Repository
	workflowID   string
	pollInterval time.Duration
	logger       *slog.Logger

	events  chan docmodel.WorkflowRunEvent
	dropped int64

	seenStageStatus map[string]docmodel.StageRunStatus
	seenRunEventIDs map[string]bool
}

// New builds a Stream for one workflow. pollInterval of 0 uses the
// §4.10 default of 2s.
func New(repo Repository, workflowID string, pollInterval time.Duration, logger *slog.Logger) *Stream {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		repo:            repo,
		workflowID:      workflowID,
		pollInterval:    pollInterval,
		logger:          logger,
		events:          make(chan docmodel.WorkflowRunEvent, eventChannelBuffer),
		seenStageStatus: map[string]docmodel.StageRunStatus{},
		seenRunEventIDs: map[string]bool{},
	}
}

// Events returns the channel events are delivered on. It is closed
// when Run returns.
func (s *Stream) Events() <-chan docmodel.WorkflowRunEvent {
	return s.events
}

// DroppedEvents reports how many events were discarded because a
// subscriber wasn't draining the channel fast enough.
func (s *Stream) DroppedEvents() int64 {
	return s.dropped
}

// Run polls until the workflow reaches a terminal status, the context
// is cancelled, or a repository error makes further polling pointless.
// It closes Events() before returning.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		terminal, err := s.poll(ctx)
		if err != nil {
			return err
		}
		if terminal {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll runs one observation cycle: diff stage rows, diff run events,
// emit a heartbeat if nothing new surfaced, and report whether the
// workflow has reached a terminal status.
func (s *Stream) poll(ctx context.Context) (terminal bool, err error) {
	wf, err := s.repo.GetWorkflow(ctx, s.workflowID)
	if err != nil {
		return false, fmt.Errorf("events: get workflow: %w", err)
	}

	stageRuns, err := s.repo.ListDocumentStageRuns(ctx, s.workflowID)
	if err != nil {
		return false, fmt.Errorf("events: list document stage runs: %w", err)
	}

	runEvents, err := s.repo.ListRunEvents(ctx, s.workflowID)
	if err != nil {
		return false, fmt.Errorf("events: list run events: %w", err)
	}

	now := time.Now()
	emitted := 0
	emitted += s.emitStageTransitions(stageRuns, now)
	emitted += s.emitRunEvents(runEvents)

	if isTerminal(wf.Status) {
		s.emitTerminal(wf, now)
		return true, nil
	}

	if emitted == 0 {
		s.send(docmodel.WorkflowRunEvent{
			WorkflowID: s.workflowID,
			EventType:  docmodel.EventHeartbeat,
			Timestamp:  now,
		})
	}
	return false, nil
}

// emitStageTransitions diffs each per-document stage row's status
// against the last status seen for that row's id, emitting a
// stage_started / stage_completed / stage_failed event on any change.
func (s *Stream) emitStageTransitions(rows []docmodel.WorkflowDocumentStageRun, now time.Time) int {
	emitted := 0
	for _, r := range rows {
		if s.seenStageStatus[r.ID] == r.Status {
			continue
		}
		s.seenStageStatus[r.ID] = r.Status

		eventType, ok := stageEventType(r.Status)
		if !ok {
			continue
		}

		s.send(docmodel.WorkflowRunEvent{
			WorkflowID: s.workflowID,
			EventType:  eventType,
			Timestamp:  now,
			Data: map[string]any{
				"document_id":   r.DocumentID,
				"stage":         string(r.Stage),
				"status":        string(r.Status),
				"error_message": r.ErrorMessage,
			},
		})
		emitted++
	}
	return emitted
}

// emitRunEvents forwards any append-only event row not yet observed
// by this subscriber session.
func (s *Stream) emitRunEvents(rows []docmodel.WorkflowRunEvent) int {
	emitted := 0
	for _, e := range rows {
		if s.seenRunEventIDs[e.ID] {
			continue
		}
		s.seenRunEventIDs[e.ID] = true
		s.send(e)
		emitted++
	}
	return emitted
}

// emitTerminal sends the final workflow_completed/workflow_failed
// event once, derived from workflow.status rather than a stage row.
func (s *Stream) emitTerminal(wf *docmodel.Workflow, now time.Time) {
	const terminalKey = "__workflow_terminal__"
	if s.seenRunEventIDs[terminalKey] {
		return
	}
	s.seenRunEventIDs[terminalKey] = true

	eventType := docmodel.EventWorkflowCompleted
	if wf.Status == docmodel.WorkflowFailed {
		eventType = docmodel.EventWorkflowFailed
	}
	s.send(docmodel.WorkflowRunEvent{
		WorkflowID: s.workflowID,
		EventType:  eventType,
		Timestamp:  now,
		Data:       map[string]any{"status": string(wf.Status)},
	})
}

// send delivers an event non-blockingly; a full channel means the
// subscriber is behind, so the event is dropped and counted rather
// than stalling the poll loop.
func (s *Stream) send(e docmodel.WorkflowRunEvent) {
	select {
	case s.events <- e:
	default:
		s.dropped++
		s.logger.Warn("events: dropped event, subscriber not draining", "workflow_id", s.workflowID, "event_type", e.EventType)
	}
}

// isTerminal reports whether a workflow has stopped advancing.
// Partial counts as terminal: per §4.1 it means no later stage
// remains to run, so polling further would only ever re-observe the
// same state.
func isTerminal(status docmodel.WorkflowStatus) bool {
	return status == docmodel.WorkflowCompleted || status == docmodel.WorkflowPartial || status == docmodel.WorkflowFailed
}

func stageEventType(status docmodel.StageRunStatus) (docmodel.WorkflowRunEventType, bool) {
	switch status {
	case docmodel.StageRunRunning:
		return docmodel.EventStageStarted, true
	case docmodel.StageRunCompleted:
		return docmodel.EventStageCompleted, true
	case docmodel.StageRunFailed:
		return docmodel.EventStageFailed, true
	default:
		return "", false
	}
}
