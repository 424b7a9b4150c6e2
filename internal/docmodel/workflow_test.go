package docmodel_test

import (
	"testing"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/stretchr/testify/assert"
)

func rows(statuses ...docmodel.StageRunStatus) []docmodel.WorkflowDocumentStageRun {
	out := make([]docmodel.WorkflowDocumentStageRun, len(statuses))
	for i, s := range statuses {
		out[i] = docmodel.WorkflowDocumentStageRun{Status: s}
	}
	return out
}

func TestAggregateStageStatus_AllCompleted(t *testing.T) {
	got := docmodel.AggregateStageStatus(rows(docmodel.StageRunCompleted, docmodel.StageRunCompleted))
	assert.Equal(t, docmodel.StageRunCompleted, got)
}

func TestAggregateStageStatus_PartialFailure(t *testing.T) {
	got := docmodel.AggregateStageStatus(rows(docmodel.StageRunCompleted, docmodel.StageRunFailed))
	assert.Equal(t, docmodel.StageRunPartial, got)
}

func TestAggregateStageStatus_StillRunning(t *testing.T) {
	got := docmodel.AggregateStageStatus(rows(docmodel.StageRunCompleted, docmodel.StageRunRunning))
	assert.Equal(t, docmodel.StageRunRunning, got)
}

func TestAggregateStageStatus_AllPending(t *testing.T) {
	got := docmodel.AggregateStageStatus(rows(docmodel.StageRunPending, docmodel.StageRunPending))
	assert.Equal(t, docmodel.StageRunRunning, got)
}

func TestAggregateStageStatus_AllFailed(t *testing.T) {
	got := docmodel.AggregateStageStatus(rows(docmodel.StageRunFailed, docmodel.StageRunFailed))
	assert.Equal(t, docmodel.StageRunPartial, got)
}

func TestAggregateStageStatus_Empty(t *testing.T) {
	got := docmodel.AggregateStageStatus(nil)
	assert.Equal(t, docmodel.StageRunPending, got)
}

func TestEntityRelationship_DedupKey(t *testing.T) {
	r := docmodel.EntityRelationship{
		SourceEntityID:   "policy_abc",
		TargetEntityID:   "coverage_xyz",
		RelationshipType: docmodel.RelHasCoverage,
	}
	assert.Equal(t, [3]string{"policy_abc", "coverage_xyz", "HAS_COVERAGE"}, r.DedupKey())
}

func TestValidRelationshipTypes(t *testing.T) {
	assert.True(t, docmodel.ValidRelationshipTypes[docmodel.RelHasCoverage])
	assert.False(t, docmodel.ValidRelationshipTypes[docmodel.RelationshipType("INVENTED_TYPE")])
}
