// Package workflow implements the orchestrator of §4.1: it advances
// every document in a workflow through the fixed stage sequence
// (processed, classified, extracted, enriched, summarized), persists
// per-document and aggregate progress through the repository layer,
// and survives process restarts because all state lives there rather
// than in memory.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// Repository is the subset of the repository layer the orchestrator
// needs to advance and persist stage state.
type Repository interface {
	GetWorkflow(ctx context.Context, id string) (*docmodel.Workflow, error)
	ListWorkflowDocuments(ctx context.Context, workflowID string) ([]string, error)
	StartDocumentStage(ctx context.Context, r docmodel.WorkflowDocumentStageRun) error
	CompleteDocumentStage(ctx context.Context, workflowID, documentID string, stage docmodel.Stage) error
	FailDocumentStage(ctx context.Context, workflowID, documentID string, stage docmodel.Stage, errMsg string) error
	AggregateWorkflowStage(ctx context.Context, workflowID string, stage docmodel.Stage) (docmodel.StageRunStatus, error)
	UpdateWorkflowStatus(ctx context.Context, id string, status docmodel.WorkflowStatus) error
}

// StageProcessor runs one stage of the pipeline against one document.
// Implementations live in the extraction/entity/relationship/indexing/
// graphproj packages; the orchestrator only sequences them.
type StageProcessor interface {
	Process(ctx context.Context, workflowID, documentID string) error
}

// RetryPolicy bounds how the orchestrator retries a transient stage
// failure before giving up on that document for the stage.
type RetryPolicy struct {
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy matches §4.1's failure policy: capped exponential
// backoff up to 3 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= p.BackoffMultiplier
	}
	d := time.Duration(float64(p.BackoffBase) * multiplier)
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

// Orchestrator advances documents through the fixed stage sequence,
// running stages for independent documents concurrently while keeping
// each document's own stages strictly ordered.
type Orchestrator struct {
	repo         Repository
	processors   map[docmodel.Stage]StageProcessor
	retry        RetryPolicy
	maxInFlight  int
	stageTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithMaxInFlight bounds how many documents a single stage processes
// concurrently. Default 8.
func WithMaxInFlight(n int) Option {
	return func(o *Orchestrator) { o.maxInFlight = n }
}

// WithStageTimeout overrides the per-stage upper envelope. Default 30m.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

// New builds an Orchestrator from a repository and the stage
// processors keyed by the stage they implement. Every stage in
// docmodel.Stages must have a processor.
func New(repo Repository, processors map[docmodel.Stage]StageProcessor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:         repo,
		processors:   processors,
		retry:        DefaultRetryPolicy(),
		maxInFlight:  8,
		stageTimeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// errCancelled is the error message written to error_message when a
// stage is aborted by a cancelled context.
const errCancelled = "cancelled"

// RunWorkflow advances every document attached to workflowID through
// the fixed stage sequence, stage by stage. A document that fails a
// stage does not advance further, but siblings continue — this is the
// partial-progress semantics of §4.1. A FatalError from any document
// instead halts the run: siblings are cancelled and RunWorkflow returns
// the error without updating the workflow status. Otherwise the
// workflow's own status is updated after every stage based on the
// aggregate rule.
func (o *Orchestrator) RunWorkflow(ctx context.Context, workflowID string) error {
	documentIDs, err := o.repo.ListWorkflowDocuments(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("workflow: list documents: %w", err)
	}

	var failedMu sync.Mutex
	failed := make(map[string]bool, len(documentIDs))

	for _, stage := range docmodel.Stages {
		processor, ok := o.processors[stage]
		if !ok {
			return fmt.Errorf("workflow: no processor registered for stage %q", stage)
		}

		stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		group, groupCtx := errgroup.WithContext(stageCtx)
		group.SetLimit(o.maxInFlight)

		failedMu.Lock()
		pending := make([]string, 0, len(documentIDs))
		for _, documentID := range documentIDs {
			if !failed[documentID] {
				pending = append(pending, documentID)
			}
		}
		failedMu.Unlock()

		var stageFailedMu sync.Mutex
		var stageFailed []string

		for _, documentID := range pending {
			documentID := documentID
			group.Go(func() error {
				ok, err := o.runStage(groupCtx, workflowID, documentID, stage, processor)
				if err != nil {
					return err
				}
				if !ok {
					stageFailedMu.Lock()
					stageFailed = append(stageFailed, documentID)
					stageFailedMu.Unlock()
				}
				return nil
			})
		}

		runErr := group.Wait()
		cancel()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("workflow: stage %q: %w", stage, runErr)
		}

		failedMu.Lock()
		for _, documentID := range stageFailed {
			failed[documentID] = true
		}
		failedMu.Unlock()

		aggregate, err := o.repo.AggregateWorkflowStage(ctx, workflowID, stage)
		if err != nil {
			return fmt.Errorf("workflow: aggregate stage %q: %w", stage, err)
		}
		if aggregate == docmodel.StageRunPartial {
			if err := o.repo.UpdateWorkflowStatus(ctx, workflowID, docmodel.WorkflowPartial); err != nil {
				return fmt.Errorf("workflow: update status partial: %w", err)
			}
		}
	}

	failedMu.Lock()
	anyFailed := len(failed) > 0
	failedMu.Unlock()
	if !anyFailed {
		return o.repo.UpdateWorkflowStatus(ctx, workflowID, docmodel.WorkflowCompleted)
	}
	return o.repo.UpdateWorkflowStatus(ctx, workflowID, docmodel.WorkflowPartial)
}

// runStage drives one document through one stage, with cancellation
// checks and bounded retry of transient failures. The returned bool is
// false when the document failed the stage. A repository write failure
// is returned as an error, and so is a FatalError (after the stage row
// is marked failed), which halts the whole run; any other stage failure
// is confined to its document and never aborts its siblings.
func (o *Orchestrator) runStage(ctx context.Context, workflowID, documentID string, stage docmodel.Stage, processor StageProcessor) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, o.repo.FailDocumentStage(ctx, workflowID, documentID, stage, errCancelled)
	}

	if err := o.repo.StartDocumentStage(ctx, docmodel.WorkflowDocumentStageRun{
		ID:         workflowID + ":" + documentID + ":" + string(stage),
		WorkflowID: workflowID,
		DocumentID: documentID,
		Stage:      stage,
	}); err != nil {
		return false, fmt.Errorf("start stage: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= o.retry.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, o.repo.FailDocumentStage(ctx, workflowID, documentID, stage, errCancelled)
		}

		lastErr = processor.Process(ctx, workflowID, documentID)
		if lastErr == nil {
			return true, o.repo.CompleteDocumentStage(ctx, workflowID, documentID, stage)
		}
		if pkgerrs.IsFatal(lastErr) {
			if err := o.repo.FailDocumentStage(ctx, workflowID, documentID, stage, lastErr.Error()); err != nil {
				return false, err
			}
			return false, lastErr
		}
		if !pkgerrs.IsTransient(lastErr) {
			break
		}
		if attempt <= o.retry.MaxRetries {
			select {
			case <-ctx.Done():
				return false, o.repo.FailDocumentStage(ctx, workflowID, documentID, stage, errCancelled)
			case <-time.After(o.retry.backoff(attempt)):
			}
		}
	}

	return false, o.repo.FailDocumentStage(ctx, workflowID, documentID, stage, lastErr.Error())
}
