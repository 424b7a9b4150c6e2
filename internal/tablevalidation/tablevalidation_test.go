package tablevalidation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/tablevalidation"
)

func TestValidateSOV_FlagsTIVMismatch(t *testing.T) {
	rows := []map[string]any{
		{"location_number": "1", "building_value": 100000.0, "contents_value": 20000.0, "address": "1 Main St"},
	}
	declared := 500000.0

	got := tablevalidation.ValidateSOV(rows, &declared)

	assert.False(t, got.Passed)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "tiv_mismatch", got.Issues[0].IssueType)
	assert.Equal(t, tablevalidation.SeverityError, got.Issues[0].Severity)
}

func TestValidateSOV_PassesWhenTIVAgrees(t *testing.T) {
	rows := []map[string]any{
		{"location_number": "1", "building_value": 100000.0, "contents_value": 20000.0, "address": "1 Main St"},
		{"location_number": "2", "building_value": 380000.0, "address": "2 Main St"},
	}
	declared := 500000.0

	got := tablevalidation.ValidateSOV(rows, &declared)

	assert.True(t, got.Passed)
	assert.Empty(t, got.Issues)
	assert.Equal(t, 500000.0, got.Summary["total_tiv"])
}

func TestValidateSOV_FlagsNegativeValue(t *testing.T) {
	rows := []map[string]any{
		{"location_number": "1", "building_value": -100.0, "address": "1 Main St"},
	}

	got := tablevalidation.ValidateSOV(rows, nil)

	assert.False(t, got.Passed)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "negative_value", got.Issues[0].IssueType)
	assert.Equal(t, 0, got.Issues[0].RowIndex)
}

func TestValidateSOV_FlagsMissingAddressAsWarningOnly(t *testing.T) {
	rows := []map[string]any{
		{"location_number": "1", "building_value": 1000.0},
	}

	got := tablevalidation.ValidateSOV(rows, nil)

	assert.True(t, got.Passed)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "missing_address", got.Issues[0].IssueType)
	assert.Equal(t, tablevalidation.SeverityWarning, got.Issues[0].Severity)
}

func TestValidateSOV_FlagsDuplicateLocationNumber(t *testing.T) {
	rows := []map[string]any{
		{"location_number": "1", "address": "1 Main St"},
		{"location_number": "1", "address": "1 Main St Annex"},
	}

	got := tablevalidation.ValidateSOV(rows, nil)

	require.Len(t, got.Issues, 1)
	assert.Equal(t, "duplicate_location", got.Issues[0].IssueType)
	assert.Equal(t, 1, got.Issues[0].RowIndex)
}

func TestValidateLossRun_FlagsPaidExceedsReserved(t *testing.T) {
	rows := []map[string]any{
		{"claim_number": "C-1", "paid_amount": 5000.0, "reserved_amount": 2000.0},
	}

	got := tablevalidation.ValidateLossRun(rows)

	assert.False(t, got.Passed)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "paid_exceeds_reserved", got.Issues[0].IssueType)
}

func TestValidateLossRun_FlagsDuplicateClaimNumber(t *testing.T) {
	rows := []map[string]any{
		{"claim_number": "C-1", "paid_amount": 100.0, "reserved_amount": 200.0},
		{"claim_number": "C-1", "paid_amount": 50.0, "reserved_amount": 100.0},
	}

	got := tablevalidation.ValidateLossRun(rows)

	assert.False(t, got.Passed)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "duplicate_claim_number", got.Issues[0].IssueType)
	assert.Equal(t, 1, got.Issues[0].RowIndex)
}

func TestValidateLossRun_PassesCleanSchedule(t *testing.T) {
	rows := []map[string]any{
		{"claim_number": "C-1", "paid_amount": 100.0, "reserved_amount": 200.0},
		{"claim_number": "C-2", "paid_amount": 50.0, "reserved_amount": 50.0},
	}

	got := tablevalidation.ValidateLossRun(rows)

	assert.True(t, got.Passed)
	assert.Equal(t, 150.0, got.Summary["total_paid"])
	assert.Equal(t, 250.0, got.Summary["total_reserved"])
}

func TestValidateTable_DispatchesOnTableType(t *testing.T) {
	sov := docmodel.DocumentTable{
		TableType: docmodel.TablePropertySOV,
		TableJSON: map[string]any{"rows": []any{
			map[string]any{"location_number": "1", "building_value": -1.0},
		}},
	}

	got := tablevalidation.ValidateTable(sov, nil)

	require.Len(t, got.Issues, 2)
	assert.Equal(t, "negative_value", got.Issues[0].IssueType)
}

func TestValidateTable_PassesTypesWithNoRuleSet(t *testing.T) {
	schedule := docmodel.DocumentTable{
		TableType: docmodel.TablePremiumSchedule,
		TableJSON: map[string]any{"rows": []any{map[string]any{"premium": 1000.0}}},
	}

	got := tablevalidation.ValidateTable(schedule, nil)

	assert.True(t, got.Passed)
	assert.Empty(t, got.Issues)
}
