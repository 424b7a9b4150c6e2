package entity

import (
	"context"
	"fmt"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// Repository is the subset of the repository layer (§4.2) the resolver
// needs: get-or-create on canonical entities plus writes for the
// mention/evidence/scope rows each resolution produces.
type Repository interface {
	GetCanonicalEntity(ctx context.Context, entityType, canonicalKey string) (*docmodel.CanonicalEntity, error)
	CreateCanonicalEntity(ctx context.Context, e docmodel.CanonicalEntity) error
	UpdateCanonicalEntityAttributes(ctx context.Context, id string, attrs map[string]any) error
	InsertEntityMention(ctx context.Context, m docmodel.EntityMention) error
	InsertEntityEvidence(ctx context.Context, e docmodel.EntityEvidence) error
	ScopeEntityToWorkflow(ctx context.Context, workflowID, canonicalEntityID string) error
}

// ResolveInput is one deduplicated aggregator candidate plus the
// document/workflow context it's being resolved within.
type ResolveInput struct {
	Candidate  MentionCandidate
	DocumentID string
	WorkflowID string
}

// Resolve implements get_or_create against the canonical entity graph
// for a single aggregated candidate: finds or creates the
// CanonicalEntity, merges attributes monotonically, and writes the
// EntityMention/EntityEvidence/WorkflowEntityScope rows that record
// this document's contribution.
func Resolve(ctx context.Context, repo Repository, in ResolveInput) (*docmodel.CanonicalEntity, error) {
	canonicalKey := CanonicalKey(in.Candidate.EntityType, in.Candidate.NormalizedValue)
	entityID := EntityID(in.Candidate.EntityType, in.Candidate.NormalizedValue)

	existing, err := repo.GetCanonicalEntity(ctx, in.Candidate.EntityType, canonicalKey)
	if err != nil {
		return nil, fmt.Errorf("resolve: lookup canonical entity: %w", err)
	}

	var canonical docmodel.CanonicalEntity
	if existing == nil {
		canonical = docmodel.CanonicalEntity{
			ID:           entityID,
			EntityType:   in.Candidate.EntityType,
			CanonicalKey: canonicalKey,
			Attributes:   copyAttributes(in.Candidate.Attributes),
		}
		if err := repo.CreateCanonicalEntity(ctx, canonical); err != nil {
			return nil, fmt.Errorf("resolve: create canonical entity: %w", err)
		}
	} else {
		canonical = *existing
		merged := MergeAttributes(canonical.Attributes, in.Candidate.Attributes)
		if !attributesEqual(canonical.Attributes, merged) {
			if err := repo.UpdateCanonicalEntityAttributes(ctx, canonical.ID, merged); err != nil {
				return nil, fmt.Errorf("resolve: update canonical entity attributes: %w", err)
			}
			canonical.Attributes = merged
		}
	}

	mentionID := canonical.ID + ":" + in.DocumentID
	extractedFields := copyAttributes(in.Candidate.Attributes)
	extractedFields["normalized_value"] = in.Candidate.NormalizedValue

	var sourceChunkID string
	if len(in.Candidate.SourceChunkIDs) > 0 {
		sourceChunkID = in.Candidate.SourceChunkIDs[0]
	}

	mention := docmodel.EntityMention{
		ID:                    mentionID,
		DocumentID:            in.DocumentID,
		EntityType:            in.Candidate.EntityType,
		MentionText:           in.Candidate.RawText,
		ExtractedFields:       extractedFields,
		Confidence:            in.Candidate.Confidence,
		SourceDocumentChunkID: sourceChunkID,
		SectionExtractionID:   in.Candidate.SectionExtractionID,
	}
	if err := repo.InsertEntityMention(ctx, mention); err != nil {
		return nil, fmt.Errorf("resolve: insert entity mention: %w", err)
	}

	evidence := docmodel.EntityEvidence{
		ID:                mentionID + ":evidence",
		CanonicalEntityID: canonical.ID,
		EntityMentionID:   mentionID,
		DocumentID:        in.DocumentID,
		Confidence:        in.Candidate.Confidence,
		EvidenceType:      docmodel.EvidenceExtracted,
	}
	if err := repo.InsertEntityEvidence(ctx, evidence); err != nil {
		return nil, fmt.Errorf("resolve: insert entity evidence: %w", err)
	}

	if in.WorkflowID != "" {
		if err := repo.ScopeEntityToWorkflow(ctx, in.WorkflowID, canonical.ID); err != nil {
			return nil, fmt.Errorf("resolve: scope entity to workflow: %w", err)
		}
	}

	return &canonical, nil
}

// longTextKeys get the "keep longer string" merge rule instead of
// first-writer-wins.
var longTextKeys = map[string]bool{
	"description":  true,
	"source_text":  true,
	"definition_text": true,
}

// MergeAttributes applies the monotonic attribute merge rule: unset
// attributes are adopted from the incoming candidate, long-text
// attributes keep whichever value is longer, and everything else is
// first-writer-wins (existing value never overwritten).
func MergeAttributes(existing, incoming map[string]any) map[string]any {
	merged := copyAttributes(existing)
	for k, v := range incoming {
		cur, present := merged[k]
		if !present || cur == nil || cur == "" {
			merged[k] = v
			continue
		}
		if longTextKeys[k] {
			curStr, curOK := cur.(string)
			newStr, newOK := v.(string)
			if curOK && newOK && len(newStr) > len(curStr) {
				merged[k] = v
			}
		}
	}
	return merged
}

func copyAttributes(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func attributesEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
