// Package model provides capability-based model selection for the LLM
// calls made throughout the pipeline. Instead of hardcoding model
// names, callers specify a capability ("extraction", "relationship",
// "retrieval") and the registry resolves it to an available model with
// a fallback chain.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityExtraction is for section extraction (§4.3): structured
	// field extraction from chunk text.
	CapabilityExtraction Capability = "extraction"

	// CapabilityRelationship is for the two-pass relationship extractor
	// (§4.5): semantic batch calls and the cross-batch synthesis pass.
	CapabilityRelationship Capability = "relationship"

	// CapabilityRetrieval is for GraphRAG response generation (§4.9
	// step 7) and query understanding (§4.9 step 1).
	CapabilityRetrieval Capability = "retrieval"

	// CapabilityFast is for quick, low-stakes calls such as intent
	// classification.
	CapabilityFast Capability = "fast"
)

// StageCapabilities maps pipeline stages to their default capability.
// Used when a caller does not specify an explicit capability.
var StageCapabilities = map[string]Capability{
	"extracted":  CapabilityExtraction,
	"enriched":   CapabilityRelationship,
	"summarized": CapabilityFast,
	"retrieval":  CapabilityRetrieval,
}

// CapabilityForStage returns the default capability for a pipeline
// stage name, falling back to CapabilityFast for unknown stages.
func CapabilityForStage(stage string) Capability {
	if capVal, ok := StageCapabilities[stage]; ok {
		return capVal
	}
	return CapabilityFast
}

// IsValid reports whether c is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityExtraction, CapabilityRelationship, CapabilityRetrieval, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string { return string(c) }

// ParseCapability converts a string to a Capability, returning empty
// for unrecognized values.
func ParseCapability(s string) Capability {
	capVal := Capability(s)
	if capVal.IsValid() {
		return capVal
	}
	return ""
}
