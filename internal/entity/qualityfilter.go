package entity

import (
	"regexp"
	"strings"
)

// genericTerms are generic section-reference names that never make
// useful Coverage/Exclusion entities.
var genericTerms = map[string]bool{
	"the policy": true,
	"coverage":   true,
	"exclusion":  true,
	"section":    true,
	"part":       true,
}

// sectionReferencePatterns match names that are really structural
// references ("SECTION II", "PART A", ...) rather than entity names.
var sectionReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^SECTION [IVX\d]+`),
	regexp.MustCompile(`(?i)^PART [A-Z\d]+`),
	regexp.MustCompile(`(?i)^PARAGRAPH `),
	regexp.MustCompile(`(?i)^\d+\. [A-Z]`),
	regexp.MustCompile(`(?i)^[A-Z]\.\d+`),
}

var leadingArticle = regexp.MustCompile(`(?i)^(the|a|an)\s+`)

// FilterReason names why a candidate was dropped by the quality
// filter, for the per-document filter summary.
type FilterReason string

const (
	FilterLowConfidence      FilterReason = "low_confidence"
	FilterGenericTerm        FilterReason = "generic_term"
	FilterSectionReference   FilterReason = "section_reference"
	FilterTooShort           FilterReason = "too_short"
)

// qualityFilteredTypes are the only entity types the quality filter
// applies to (§4.4).
var qualityFilteredTypes = map[string]bool{
	"Coverage":  true,
	"Exclusion": true,
}

// FilterSummary counts drops per reason across a document's candidates.
type FilterSummary struct {
	Dropped map[FilterReason]int
}

func newFilterSummary() *FilterSummary {
	return &FilterSummary{Dropped: make(map[FilterReason]int)}
}

func (f *FilterSummary) record(reason FilterReason) {
	f.Dropped[reason]++
}

// passesQualityFilter applies the four §4.4 quality rules to a
// Coverage/Exclusion candidate's normalized name and confidence.
// Entity types outside qualityFilteredTypes always pass.
func passesQualityFilter(entityType, normalizedValue string, confidence float64, summary *FilterSummary) bool {
	if !qualityFilteredTypes[entityType] {
		return true
	}

	if confidence < 0.85 {
		summary.record(FilterLowConfidence)
		return false
	}

	trimmed := strings.TrimSpace(normalizedValue)
	if genericTerms[strings.ToLower(trimmed)] {
		summary.record(FilterGenericTerm)
		return false
	}

	for _, pattern := range sectionReferencePatterns {
		if pattern.MatchString(trimmed) {
			summary.record(FilterSectionReference)
			return false
		}
	}

	stripped := leadingArticle.ReplaceAllString(trimmed, "")
	if len(stripped) < 5 {
		summary.record(FilterTooShort)
		return false
	}

	return true
}
