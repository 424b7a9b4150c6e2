package relationship

import (
	"sort"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// fallbackPriority is the priority assigned to single-section batches
// built from sections no fixed batch definition claims.
const fallbackPriority = 99

// batchDef is one fixed, priority-ordered semantic batch from §4.5.
type batchDef struct {
	name          string
	sectionTypes  []string
	expectedTypes []docmodel.RelationshipType
	tableTypes    []string
	priority      int
}

// fixedBatches is the closed, priority-ordered batch list. Order here
// is also tie-break order when priorities match.
var fixedBatches = []batchDef{
	{
		name:          "policy_identity",
		sectionTypes:  []string{"declarations"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelIssuedBy, docmodel.RelHasInsured, docmodel.RelBrokeredBy},
		tableTypes:    []string{"premium_schedule"},
		priority:      1,
	},
	{
		name:          "policy_coverage",
		sectionTypes:  []string{"declarations", "coverages"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelHasCoverage},
		tableTypes:    []string{"coverage_schedule", "premium_schedule"},
		priority:      2,
	},
	{
		name:          "coverage_condition",
		sectionTypes:  []string{"coverages", "conditions"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelSubjectTo},
		priority:      3,
	},
	{
		name:          "coverage_exclusion",
		sectionTypes:  []string{"coverages", "exclusions"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelExcludes},
		priority:      4,
	},
	{
		name:          "policy_location",
		sectionTypes:  []string{"declarations", "sov"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelHasLocation},
		tableTypes:    []string{"property_sov"},
		priority:      5,
	},
	{
		name:          "policy_claim",
		sectionTypes:  []string{"declarations", "loss_runs"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelHasClaim},
		tableTypes:    []string{"loss_run"},
		priority:      6,
	},
	{
		name:          "coverage_endorsement",
		sectionTypes:  []string{"coverages", "endorsements"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelModifiedBy},
		priority:      7,
	},
	{
		name:          "coverage_definition",
		sectionTypes:  []string{"coverages", "definitions"},
		expectedTypes: []docmodel.RelationshipType{docmodel.RelDefinedIn},
		priority:      8,
	},
}

// ResolvedBatch is a batchDef narrowed to the sections/tables actually
// present on one document.
type ResolvedBatch struct {
	Name          string
	SectionTypes  []string
	ExpectedTypes []docmodel.RelationshipType
	TableTypes    []string
	Priority      int
}

// BuildBatches resolves the fixed batch list against the section
// types and table types present on a document. A fixed batch is
// included only with the subset of its section types that are
// present; a batch with none present is skipped entirely. Any present
// section type no fixed batch claims becomes its own single-section
// fallback batch at priority 99.
func BuildBatches(presentSections map[string]bool, presentTableTypes map[string]bool) []ResolvedBatch {
	claimed := make(map[string]bool)
	out := make([]ResolvedBatch, 0, len(fixedBatches))

	for _, def := range fixedBatches {
		var sections []string
		for _, st := range def.sectionTypes {
			if presentSections[st] {
				sections = append(sections, st)
				claimed[st] = true
			}
		}
		if len(sections) == 0 {
			continue
		}

		var tables []string
		for _, tt := range def.tableTypes {
			if presentTableTypes[tt] {
				tables = append(tables, tt)
			}
		}

		out = append(out, ResolvedBatch{
			Name:          def.name,
			SectionTypes:  sections,
			ExpectedTypes: def.expectedTypes,
			TableTypes:    tables,
			Priority:      def.priority,
		})
	}

	var leftover []string
	for st := range presentSections {
		if !claimed[st] {
			leftover = append(leftover, st)
		}
	}
	sort.Strings(leftover)
	for _, st := range leftover {
		out = append(out, ResolvedBatch{
			Name:         "fallback_" + st,
			SectionTypes: []string{st},
			Priority:     fallbackPriority,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
