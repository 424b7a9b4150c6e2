package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/pkgerrs"
	"github.com/c360studio/insurekb/internal/workflow"
)

type fakeRepo struct {
	mu              sync.Mutex
	documents       []string
	stageStatus     map[string]docmodel.StageRunStatus // documentID:stage
	workflowStatus  docmodel.WorkflowStatus
	completedStages []string
	failedStages    []string
}

func newFakeRepo(documents ...string) *fakeRepo {
	return &fakeRepo{documents: documents, stageStatus: make(map[string]docmodel.StageRunStatus)}
}

func (f *fakeRepo) GetWorkflow(context.Context, string) (*docmodel.Workflow, error) { return nil, nil }

func (f *fakeRepo) ListWorkflowDocuments(context.Context, string) ([]string, error) {
	return f.documents, nil
}

func (f *fakeRepo) StartDocumentStage(_ context.Context, r docmodel.WorkflowDocumentStageRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageStatus[r.DocumentID+":"+string(r.Stage)] = docmodel.StageRunRunning
	return nil
}

func (f *fakeRepo) CompleteDocumentStage(_ context.Context, _ string, documentID string, stage docmodel.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageStatus[documentID+":"+string(stage)] = docmodel.StageRunCompleted
	f.completedStages = append(f.completedStages, documentID+":"+string(stage))
	return nil
}

func (f *fakeRepo) FailDocumentStage(_ context.Context, _ string, documentID string, stage docmodel.Stage, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageStatus[documentID+":"+string(stage)] = docmodel.StageRunFailed
	f.failedStages = append(f.failedStages, documentID+":"+string(stage))
	return nil
}

func (f *fakeRepo) AggregateWorkflowStage(_ context.Context, _ string, stage docmodel.Stage) (docmodel.StageRunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []docmodel.WorkflowDocumentStageRun
	for _, d := range f.documents {
		rows = append(rows, docmodel.WorkflowDocumentStageRun{Status: f.stageStatus[d+":"+string(stage)]})
	}
	return docmodel.AggregateStageStatus(rows), nil
}

func (f *fakeRepo) UpdateWorkflowStatus(_ context.Context, _ string, status docmodel.WorkflowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflowStatus = status
	return nil
}

type fakeProcessor struct {
	fail    map[string]bool
	calls   int
	callsMu sync.Mutex
}

func (p *fakeProcessor) Process(_ context.Context, _, documentID string) error {
	p.callsMu.Lock()
	p.calls++
	p.callsMu.Unlock()
	if p.fail[documentID] {
		return fmt.Errorf("boom")
	}
	return nil
}

func allStageProcessors(p workflow.StageProcessor) map[docmodel.Stage]workflow.StageProcessor {
	m := make(map[docmodel.Stage]workflow.StageProcessor)
	for _, s := range docmodel.Stages {
		m[s] = p
	}
	return m
}

func TestRunWorkflow_AllDocumentsSucceedCompletesWorkflow(t *testing.T) {
	repo := newFakeRepo("doc1", "doc2")
	processor := &fakeProcessor{fail: map[string]bool{}}
	orch := workflow.New(repo, allStageProcessors(processor))

	err := orch.RunWorkflow(context.Background(), "wf1")

	require.NoError(t, err)
	assert.Equal(t, docmodel.WorkflowCompleted, repo.workflowStatus)
	assert.Len(t, repo.completedStages, 2*len(docmodel.Stages))
}

func TestRunWorkflow_FailedDocumentStopsAdvancingButSiblingContinues(t *testing.T) {
	repo := newFakeRepo("doc1", "doc2")
	processor := &fakeProcessor{fail: map[string]bool{"doc1": true}}
	orch := workflow.New(repo, allStageProcessors(processor), workflow.WithRetryPolicy(workflow.RetryPolicy{MaxRetries: 1}))

	err := orch.RunWorkflow(context.Background(), "wf1")

	require.NoError(t, err)
	assert.Equal(t, docmodel.WorkflowPartial, repo.workflowStatus)

	assert.Contains(t, repo.failedStages, "doc1:"+string(docmodel.StageProcessed))
	for _, stage := range docmodel.Stages[1:] {
		assert.NotContains(t, repo.failedStages, "doc1:"+string(stage), "doc1 must not advance past its first failed stage")
	}
	assert.Contains(t, repo.completedStages, "doc2:"+string(docmodel.StageSummarized), "doc2 should complete every stage")
}

func TestRunWorkflow_MissingProcessorErrors(t *testing.T) {
	repo := newFakeRepo("doc1")
	orch := workflow.New(repo, map[docmodel.Stage]workflow.StageProcessor{})

	err := orch.RunWorkflow(context.Background(), "wf1")

	require.Error(t, err)
}

type transientThenSuccessProcessor struct {
	mu       sync.Mutex
	attempts int
}

func (p *transientThenSuccessProcessor) Process(context.Context, string, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.attempts < 2 {
		return pkgerrs.NewTransient(fmt.Errorf("rate limited"))
	}
	return nil
}

func TestRunWorkflow_RetriesTransientFailureUntilSuccess(t *testing.T) {
	repo := newFakeRepo("doc1")
	processor := &transientThenSuccessProcessor{}
	orch := workflow.New(repo, allStageProcessors(processor),
		workflow.WithRetryPolicy(workflow.RetryPolicy{MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 1, MaxBackoff: time.Millisecond}))

	err := orch.RunWorkflow(context.Background(), "wf1")

	require.NoError(t, err)
	assert.Equal(t, docmodel.WorkflowCompleted, repo.workflowStatus)
}
