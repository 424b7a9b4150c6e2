package relationship

import "github.com/c360studio/insurekb/internal/docmodel"

// Dedup groups relationships by (source, target, type), unioning
// their evidence (deduped by quote/table reference) and keeping the
// max confidence seen across duplicates. Runs after both the batch
// pass and the synthesis pass, per §4.5.
func Dedup(rels []docmodel.EntityRelationship) []docmodel.EntityRelationship {
	byKey := make(map[[3]string]*docmodel.EntityRelationship)
	order := make([][3]string, 0, len(rels))

	for _, r := range rels {
		k := r.DedupKey()
		existing, ok := byKey[k]
		if !ok {
			stored := r
			stored.Evidence = dedupEvidence(r.Evidence)
			byKey[k] = &stored
			order = append(order, k)
			continue
		}

		existing.Evidence = dedupEvidence(append(existing.Evidence, r.Evidence...))
		if r.Confidence > existing.Confidence {
			existing.Confidence = r.Confidence
		}
		if existing.ExtractionBatch == "" {
			existing.ExtractionBatch = r.ExtractionBatch
		}
	}

	out := make([]docmodel.EntityRelationship, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func dedupEvidence(evidence []docmodel.RelationshipEvidence) []docmodel.RelationshipEvidence {
	seen := make(map[string]bool, len(evidence))
	out := make([]docmodel.RelationshipEvidence, 0, len(evidence))
	for _, e := range evidence {
		key := e.Quote + "|" + e.TableID + "|" + e.SOVID + "|" + e.ClaimID
		if key == "|||" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// hasEvidence reports whether a relationship carries at least one
// quote or table reference, the minimum persistence requirement.
func hasEvidence(r docmodel.EntityRelationship) bool {
	for _, e := range r.Evidence {
		if e.Quote != "" || e.TableID != "" || e.SOVID != "" || e.ClaimID != "" {
			return true
		}
	}
	return false
}
