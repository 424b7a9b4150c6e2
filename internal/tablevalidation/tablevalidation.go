// Package tablevalidation applies business-rule checks to first-class
// extracted tables (§4.4's SOV and loss-run table types): TIV totals
// and negative-value checks on property schedules, paid-vs-incurred
// and duplicate-claim checks on loss runs. It operates on the raw
// table_json rows a DocumentTable carries rather than a typed
// per-table-kind model, since upstream extraction is free to add
// fields without this package needing a matching migration.
package tablevalidation

import (
	"fmt"
	"math"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// Severity classifies how serious a validation issue is. An error
// fails the table; a warning or info note doesn't.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one business-rule violation found in a table.
type Issue struct {
	IssueType     string
	Severity      Severity
	Message       string
	RowIndex      int // -1 when the issue isn't row-scoped
	ExpectedValue any
	ActualValue   any
}

// Result is one table's validation outcome.
type Result struct {
	Passed  bool
	Issues  []Issue
	Summary map[string]any
}

// tivTolerance allows the same rounding slack the original business
// rule does when comparing a table's computed TIV to a declared total.
const tivTolerance = 0.01

// ValidateTable dispatches to the rule set for t's table type. Tables
// with no defined rule set (premium_schedule, coverage_schedule) pass
// unconditionally with an empty issue list.
func ValidateTable(t docmodel.DocumentTable, declaredTIV *float64) Result {
	rows := tableRows(t)
	switch t.TableType {
	case docmodel.TablePropertySOV:
		return ValidateSOV(rows, declaredTIV)
	case docmodel.TableLossRun:
		return ValidateLossRun(rows)
	default:
		return Result{Passed: true, Summary: map[string]any{"rows": len(rows)}}
	}
}

func tableRows(t docmodel.DocumentTable) []map[string]any {
	raw, ok := t.TableJSON["rows"].([]any)
	if !ok {
		return nil
	}
	rows := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if row, ok := r.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// ValidateSOV checks a property schedule's rows for TIV agreement
// against an optional declared total, negative building/contents/TIV
// values, missing addresses, and duplicate location numbers.
func ValidateSOV(rows []map[string]any, declaredTIV *float64) Result {
	var issues []Issue

	var totalTIV float64
	for _, row := range rows {
		totalTIV += rowTIV(row)
	}

	if declaredTIV != nil && math.Abs(totalTIV-*declaredTIV) > tivTolerance {
		issues = append(issues, Issue{
			IssueType:     "tiv_mismatch",
			Severity:      SeverityError,
			Message:       fmt.Sprintf("total TIV mismatch: expected %.2f, actual %.2f", *declaredTIV, totalTIV),
			RowIndex:      -1,
			ExpectedValue: *declaredTIV,
			ActualValue:   totalTIV,
		})
	}

	for idx, row := range rows {
		for _, field := range []string{"building_value", "contents_value", "business_income"} {
			v, ok := floatField(row, field)
			if ok && v < 0 {
				issues = append(issues, Issue{
					IssueType:   "negative_value",
					Severity:    SeverityError,
					Message:     fmt.Sprintf("negative %s: %.2f", field, v),
					RowIndex:    idx,
					ActualValue: v,
				})
			}
		}
		if addr, _ := row["address"].(string); addr == "" {
			issues = append(issues, Issue{
				IssueType: "missing_address",
				Severity:  SeverityWarning,
				Message:   "missing address",
				RowIndex:  idx,
			})
		}
	}

	seenLocations := map[string]bool{}
	for idx, row := range rows {
		loc, _ := row["location_number"].(string)
		if loc == "" {
			continue
		}
		if seenLocations[loc] {
			issues = append(issues, Issue{
				IssueType: "duplicate_location",
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("duplicate location number: %s", loc),
				RowIndex:  idx,
			})
			continue
		}
		seenLocations[loc] = true
	}

	return Result{
		Passed: !hasSeverity(issues, SeverityError),
		Issues: issues,
		Summary: map[string]any{
			"total_locations":         len(rows),
			"total_tiv":               totalTIV,
			"unique_location_numbers": len(seenLocations),
			"error_count":             countSeverity(issues, SeverityError),
			"warning_count":           countSeverity(issues, SeverityWarning),
		},
	}
}

// rowTIV sums building/contents/business-income into the per-location
// total insured value when the row doesn't carry a precomputed figure.
func rowTIV(row map[string]any) float64 {
	if v, ok := floatField(row, "total_insured_value"); ok {
		return v
	}
	var total float64
	for _, field := range []string{"building_value", "contents_value", "business_income"} {
		if v, ok := floatField(row, field); ok {
			total += v
		}
	}
	return total
}

// ValidateLossRun checks a loss-run schedule's rows for paid amounts
// exceeding reserved/incurred, and duplicate claim numbers.
func ValidateLossRun(rows []map[string]any) Result {
	var issues []Issue
	var totalPaid, totalReserved float64

	seenClaims := map[string]bool{}
	for idx, row := range rows {
		paid, hasPaid := floatField(row, "paid_amount")
		reserved, hasReserved := floatField(row, "reserved_amount")
		if hasPaid {
			totalPaid += paid
		}
		if hasReserved {
			totalReserved += reserved
		}
		if hasPaid && hasReserved && paid > reserved {
			issues = append(issues, Issue{
				IssueType:     "paid_exceeds_reserved",
				Severity:      SeverityError,
				Message:       fmt.Sprintf("paid amount (%.2f) exceeds reserved (%.2f)", paid, reserved),
				RowIndex:      idx,
				ExpectedValue: reserved,
				ActualValue:   paid,
			})
		}

		claimNumber, _ := row["claim_number"].(string)
		if claimNumber == "" {
			continue
		}
		if seenClaims[claimNumber] {
			issues = append(issues, Issue{
				IssueType: "duplicate_claim_number",
				Severity:  SeverityError,
				Message:   fmt.Sprintf("duplicate claim number: %s", claimNumber),
				RowIndex:  idx,
			})
			continue
		}
		seenClaims[claimNumber] = true
	}

	return Result{
		Passed: !hasSeverity(issues, SeverityError),
		Issues: issues,
		Summary: map[string]any{
			"total_claims":         len(rows),
			"total_paid":           totalPaid,
			"total_reserved":       totalReserved,
			"unique_claim_numbers": len(seenClaims),
			"error_count":          countSeverity(issues, SeverityError),
			"warning_count":        countSeverity(issues, SeverityWarning),
		},
	}
}

func floatField(row map[string]any, key string) (float64, bool) {
	switch v := row[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func hasSeverity(issues []Issue, sev Severity) bool {
	return countSeverity(issues, sev) > 0
}

func countSeverity(issues []Issue, sev Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}
