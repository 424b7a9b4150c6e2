package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// fakeRepo serves a pre-scripted sequence of polls: call N of
// GetWorkflow/ListDocumentStageRuns/ListRunEvents returns states[min(N,len-1)].
type fakeRepo struct {
	mu     sync.Mutex
	states []pollState
	call   int
}

type pollState struct {
	workflow  docmodel.Workflow
	stageRuns []docmodel.WorkflowDocumentStageRun
	runEvents []docmodel.WorkflowRunEvent
}

func (f *fakeRepo) current() pollState {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.call
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	f.call++
	return f.states[idx]
}

func (f *fakeRepo) GetWorkflow(context.Context, string) (*docmodel.Workflow, error) {
	s := f.current()
	wf := s.workflow
	return &wf, nil
}

func (f *fakeRepo) ListDocumentStageRuns(context.Context, string) ([]docmodel.WorkflowDocumentStageRun, error) {
	f.mu.Lock()
	idx := f.call - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	out := f.states[idx].stageRuns
	f.mu.Unlock()
	return out, nil
}

func (f *fakeRepo) ListRunEvents(context.Context, string) ([]docmodel.WorkflowRunEvent, error) {
	f.mu.Lock()
	idx := f.call - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(f.states) {
		idx = len(f.states) - 1
	}
	out := f.states[idx].runEvents
	f.mu.Unlock()
	return out, nil
}

func collect(t *testing.T, s *Stream, timeout time.Duration) []docmodel.WorkflowRunEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var got []docmodel.WorkflowRunEvent
	for e := range s.Events() {
		got = append(got, e)
	}
	require.NoError(t, <-done)
	return got
}

func TestRun_EmitsStageStartedThenCompleted(t *testing.T) {
	repo := &fakeRepo{states: []pollState{
		{
			workflow:  docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowRunning},
			stageRuns: []docmodel.WorkflowDocumentStageRun{{ID: "run-1", DocumentID: "doc-1", Stage: docmodel.StageProcessed, Status: docmodel.StageRunRunning}},
		},
		{
			workflow:  docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowRunning},
			stageRuns: []docmodel.WorkflowDocumentStageRun{{ID: "run-1", DocumentID: "doc-1", Stage: docmodel.StageProcessed, Status: docmodel.StageRunCompleted}},
		},
		{
			workflow:  docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowCompleted},
			stageRuns: []docmodel.WorkflowDocumentStageRun{{ID: "run-1", DocumentID: "doc-1", Stage: docmodel.StageProcessed, Status: docmodel.StageRunCompleted}},
		},
	}}

	s := New(repo, "wf-1", 5*time.Millisecond, nil)
	got := collect(t, s, time.Second)

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, docmodel.EventStageStarted, got[0].EventType)
	assert.Equal(t, docmodel.EventStageCompleted, got[1].EventType)
	assert.Equal(t, docmodel.EventWorkflowCompleted, got[len(got)-1].EventType)
}

func TestRun_EmitsHeartbeatWhenNothingNew(t *testing.T) {
	state := pollState{workflow: docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowRunning}}
	repo := &fakeRepo{states: []pollState{state, state, state}}

	s := New(repo, "wf-1", 5*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	var got []docmodel.WorkflowRunEvent
	for e := range s.Events() {
		got = append(got, e)
	}
	require.NotEmpty(t, got)
	for _, e := range got {
		assert.Equal(t, docmodel.EventHeartbeat, e.EventType)
	}
}

func TestRun_DedupsRepeatedStageStatusAcrossPolls(t *testing.T) {
	stageRuns := []docmodel.WorkflowDocumentStageRun{{ID: "run-1", DocumentID: "doc-1", Stage: docmodel.StageProcessed, Status: docmodel.StageRunCompleted}}
	state := pollState{workflow: docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowRunning}, stageRuns: stageRuns}
	repo := &fakeRepo{states: []pollState{state, state, state}}

	s := New(repo, "wf-1", 5*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	stageCompletedCount := 0
	for e := range s.Events() {
		if e.EventType == docmodel.EventStageCompleted {
			stageCompletedCount++
		}
	}
	assert.Equal(t, 1, stageCompletedCount)
}

func TestRun_ForwardsAppendOnlyRunEventsOnce(t *testing.T) {
	evt := docmodel.WorkflowRunEvent{ID: "evt-1", WorkflowID: "wf-1", EventType: docmodel.EventWorkflowProgress, Data: map[string]any{"pct": 50}}
	state := pollState{workflow: docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowRunning}, runEvents: []docmodel.WorkflowRunEvent{evt}}
	repo := &fakeRepo{states: []pollState{state, state}}

	s := New(repo, "wf-1", 5*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	progressCount := 0
	for e := range s.Events() {
		if e.EventType == docmodel.EventWorkflowProgress {
			progressCount++
		}
	}
	assert.Equal(t, 1, progressCount)
}

func TestRun_StopsOnFailedWorkflowWithWorkflowFailedEvent(t *testing.T) {
	repo := &fakeRepo{states: []pollState{
		{workflow: docmodel.Workflow{ID: "wf-1", Status: docmodel.WorkflowFailed}},
	}}

	s := New(repo, "wf-1", 5*time.Millisecond, nil)
	got := collect(t, s, time.Second)

	require.NotEmpty(t, got)
	assert.Equal(t, docmodel.EventWorkflowFailed, got[len(got)-1].EventType)
}
