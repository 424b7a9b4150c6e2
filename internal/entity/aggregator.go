package entity

import (
	"sort"
	"strings"
)

// MentionCandidate is a raw entity mention surfaced by section
// extraction, before dedup and resolution against the canonical graph.
type MentionCandidate struct {
	EntityType          string
	RawText             string
	NormalizedValue     string
	Confidence          float64
	SourceChunkIDs      []string
	SectionType         string
	Attributes          map[string]any
	SectionExtractionID string
}

// Normalize lowercases and collapses whitespace in the candidate's raw
// text to produce its normalized_value, matching the normalization the
// resolver later uses to compute canonical_key/entity_id.
func (m *MentionCandidate) Normalize() {
	fields := strings.Fields(m.RawText)
	m.NormalizedValue = strings.ToLower(strings.Join(fields, " "))
}

func (m MentionCandidate) key() string {
	return EntityID(m.EntityType, m.NormalizedValue)
}

// AggregateResult is the output of aggregating a document's raw mention
// candidates: deduplicated candidates plus the filter summary recording
// what the quality filter dropped.
type AggregateResult struct {
	Candidates []MentionCandidate
	Filtered   *FilterSummary
}

// Aggregate normalizes, quality-filters, and deduplicates a batch of
// raw mention candidates for one document. Dedup key is entity_id
// (entity_type + normalized_value); among duplicates the candidate
// with the highest confidence wins, but source_chunk_ids are unioned
// across all duplicates so evidence isn't lost to the merge.
func Aggregate(raw []MentionCandidate) AggregateResult {
	summary := newFilterSummary()
	byKey := make(map[string]*MentionCandidate)
	order := make([]string, 0, len(raw))

	for _, c := range raw {
		candidate := c
		if candidate.NormalizedValue == "" {
			candidate.Normalize()
		}

		if !passesQualityFilter(candidate.EntityType, candidate.NormalizedValue, candidate.Confidence, summary) {
			continue
		}

		k := candidate.key()
		existing, ok := byKey[k]
		if !ok {
			order = append(order, k)
			stored := candidate
			byKey[k] = &stored
			continue
		}

		existing.SourceChunkIDs = unionStrings(existing.SourceChunkIDs, candidate.SourceChunkIDs)
		if candidate.Confidence > existing.Confidence {
			chunks := existing.SourceChunkIDs
			*existing = candidate
			existing.SourceChunkIDs = chunks
		}
	}

	out := make([]MentionCandidate, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}

	return AggregateResult{Candidates: out, Filtered: summary}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// enrichableKeys are merged into a candidate's attributes by
// EnrichWithContext without overwriting a value the candidate already
// carries.
var enrichableKeys = []string{"description", "source_text", "definition_text"}

// EnrichWithContext merges rich-context records (effective_coverages,
// effective_exclusions, step_section_outputs — anything with an
// entity_id or name field) into the aggregator's candidates, looking
// each candidate up first by entity_id and falling back to its
// human-readable name. Candidates with no match in either lookup are
// left unchanged.
func EnrichWithContext(candidates []MentionCandidate, context []map[string]any) []MentionCandidate {
	byEntityID := make(map[string]map[string]any)
	byName := make(map[string]map[string]any)
	for _, rec := range context {
		if id, ok := rec["entity_id"].(string); ok && id != "" {
			byEntityID[id] = rec
		}
		if name, ok := rec["name"].(string); ok && name != "" {
			byName[strings.ToLower(name)] = rec
		}
	}

	out := make([]MentionCandidate, len(candidates))
	for i, c := range candidates {
		rec, ok := byEntityID[c.key()]
		if !ok {
			rec, ok = byName[strings.ToLower(c.NormalizedValue)]
		}
		if !ok {
			out[i] = c
			continue
		}

		if c.Attributes == nil {
			c.Attributes = make(map[string]any)
		}
		for _, k := range enrichableKeys {
			if _, present := c.Attributes[k]; present {
				continue
			}
			if v, ok := rec[k]; ok {
				c.Attributes[k] = v
			}
		}
		out[i] = c
	}
	return out
}
