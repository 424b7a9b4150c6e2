package relationship

import (
	"strings"
)

// CandidateEntity is the canonical-entity view the relationship
// extractor reconciles source/target identifiers against. It mirrors
// the fields of docmodel.CanonicalEntity plus the derived
// NormalizedValue every candidate in the aggregator already carries.
type CandidateEntity struct {
	EntityID        string
	CanonicalKey    string
	EntityType      string
	NormalizedValue string
	Attributes      map[string]any
}

// resolver indexes a batch's canonical entity list for the
// reconciliation order of §4.5: the model is hardest to trip up when
// it echoes back the stable entity_id it was shown, so that's tried
// first, followed by canonical_key, attributes.id/entity_id, type:value
// form, case-insensitive normalized value, substring containment, and
// finally temp-id pass-through.
type resolver struct {
	byEntityID        map[string]CandidateEntity
	byCanonicalKey    map[string]CandidateEntity
	byAttributeID     map[string]CandidateEntity
	byTypeValue       map[string]CandidateEntity
	byNormalizedValue map[string]CandidateEntity
	all               []CandidateEntity
	tempIDs           map[string]CandidateEntity
}

func newResolver(candidates []CandidateEntity) *resolver {
	r := &resolver{
		byEntityID:        make(map[string]CandidateEntity),
		byCanonicalKey:    make(map[string]CandidateEntity),
		byAttributeID:     make(map[string]CandidateEntity),
		byTypeValue:       make(map[string]CandidateEntity),
		byNormalizedValue: make(map[string]CandidateEntity),
		tempIDs:           make(map[string]CandidateEntity),
		all:               candidates,
	}
	for _, c := range candidates {
		if c.EntityID != "" {
			r.byEntityID[c.EntityID] = c
		}
		if c.CanonicalKey != "" {
			r.byCanonicalKey[c.CanonicalKey] = c
		}
		if c.Attributes != nil {
			if id, ok := c.Attributes["id"].(string); ok && id != "" {
				r.byAttributeID[id] = c
			}
			if id, ok := c.Attributes["entity_id"].(string); ok && id != "" {
				r.byAttributeID[id] = c
			}
		}
		r.byTypeValue[strings.ToLower(c.EntityType+":"+c.NormalizedValue)] = c
		r.byNormalizedValue[strings.ToLower(c.NormalizedValue)] = c
	}
	return r
}

// resolve binds a raw source/target identifier from an LLM response
// to a canonical entity_id, trying each reconciliation step in order.
// The second return is false when nothing matched.
func (r *resolver) resolve(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	if c, ok := r.byEntityID[raw]; ok {
		return c.EntityID, true
	}
	if c, ok := r.byCanonicalKey[raw]; ok {
		return c.EntityID, true
	}
	if c, ok := r.byAttributeID[raw]; ok {
		return c.EntityID, true
	}
	if c, ok := r.byTypeValue[strings.ToLower(raw)]; ok {
		return c.EntityID, true
	}
	if c, ok := r.byNormalizedValue[strings.ToLower(raw)]; ok {
		return c.EntityID, true
	}
	if len(raw) > 3 {
		lower := strings.ToLower(raw)
		for _, c := range r.all {
			if strings.Contains(strings.ToLower(c.NormalizedValue), lower) || strings.Contains(lower, strings.ToLower(c.NormalizedValue)) {
				return c.EntityID, true
			}
		}
	}
	if strings.HasPrefix(raw, "temp_") {
		if c, ok := r.tempIDs[raw]; ok {
			return c.EntityID, true
		}
		// Canonical entities were sparse when this temp id was minted;
		// there's nothing to reconcile it against yet, so it passes
		// through unresolved rather than being silently dropped.
		return raw, true
	}

	return "", false
}
