package docmodel

// EvidenceType classifies how an EntityEvidence row was produced.
type EvidenceType string

const (
	EvidenceExtracted    EvidenceType = "extracted"
	EvidenceInferred     EvidenceType = "inferred"
	EvidenceHumanVerified EvidenceType = "human_verified"
)

// EntityMention is a document-scoped occurrence of an entity.
type EntityMention struct {
	ID                    string
	DocumentID            string
	EntityType            string
	MentionText           string
	ExtractedFields       map[string]any // includes normalized_value and raw attributes
	Confidence            float64
	SourceDocumentChunkID string // optional
	SourceStableChunkID   string // optional
	SectionExtractionID   string // optional
}

// NormalizedValue returns the normalized_value field from
// ExtractedFields, or "" if absent.
func (m EntityMention) NormalizedValue() string {
	v, _ := m.ExtractedFields["normalized_value"].(string)
	return v
}

// CanonicalEntity is the deduplicated identity an entity resolves to.
type CanonicalEntity struct {
	ID           string
	EntityType   string
	CanonicalKey string // deterministic, see entity.CanonicalKey
	Attributes   map[string]any
}

// EntityEvidence is an M:N binding of a CanonicalEntity to one
// EntityMention.
type EntityEvidence struct {
	ID                string
	CanonicalEntityID string
	EntityMentionID   string
	DocumentID        string
	Confidence        float64
	EvidenceType      EvidenceType
}

// RelationshipType is a member of the closed relationship vocabulary
// the relationship extractor is allowed to emit (§4.5).
type RelationshipType string

const (
	RelIssuedBy        RelationshipType = "ISSUED_BY"
	RelHasInsured       RelationshipType = "HAS_INSURED"
	RelBrokeredBy       RelationshipType = "BROKERED_BY"
	RelHasCoverage      RelationshipType = "HAS_COVERAGE"
	RelSubjectTo        RelationshipType = "SUBJECT_TO"
	RelExcludes         RelationshipType = "EXCLUDES"
	RelHasLocation      RelationshipType = "HAS_LOCATION"
	RelHasClaim         RelationshipType = "HAS_CLAIM"
	RelModifiedBy       RelationshipType = "MODIFIED_BY"
	RelDefinedIn        RelationshipType = "DEFINED_IN"
)

// ValidRelationshipTypes is the closed vocabulary; anything else is
// discarded with a warning per §4.5.
var ValidRelationshipTypes = map[RelationshipType]bool{
	RelIssuedBy:    true,
	RelHasInsured:  true,
	RelBrokeredBy:  true,
	RelHasCoverage: true,
	RelSubjectTo:   true,
	RelExcludes:    true,
	RelHasLocation: true,
	RelHasClaim:    true,
	RelModifiedBy:  true,
	RelDefinedIn:   true,
}

// RelationshipEvidence is one piece of grounding for an
// EntityRelationship: a verbatim quote or a table reference.
type RelationshipEvidence struct {
	Quote   string `json:"quote,omitempty"`
	TableID string `json:"table_id,omitempty"`
	SOVID   string `json:"sov_id,omitempty"`
	ClaimID string `json:"claim_id,omitempty"`
}

// EntityRelationship is a directed edge between two CanonicalEntity rows.
type EntityRelationship struct {
	ID               string
	SourceEntityID   string
	TargetEntityID   string
	RelationshipType RelationshipType
	Confidence       float64
	Evidence         []RelationshipEvidence
	ExtractionBatch  string // e.g. "cross_batch_synthesis"
	DocumentID       string
}

// DedupKey is the key relationship dedup groups on: (source, target, type).
func (r EntityRelationship) DedupKey() [3]string {
	return [3]string{r.SourceEntityID, r.TargetEntityID, string(r.RelationshipType)}
}
