package graphrag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding"
	"github.com/c360studio/insurekb/internal/indexing"
	"github.com/c360studio/insurekb/internal/pkgerrs"
	"github.com/c360studio/insurekb/internal/store"
)

// maxVectorDistance is the fixed semantic_search cutoff for retrieval
// (stage 2).
const maxVectorDistance = 0.7

// recencyDecayDays is the window over which the recency boost decays
// linearly to zero.
const recencyDecayDays = 365

// recencyBoostMax is the recency boost at zero days old.
const recencyBoostMax = 0.10

// entityBoostFull/entityBoostHalf are the reranking entity-match
// boosts (stage 3).
const (
	entityBoostFull = 0.15
	entityBoostHalf = 0.075
)

// sectionBoostTable gives an intent-specific relevance bump to
// sections that intent typically cares about most.
var sectionBoostTable = map[Intent]map[string]float64{
	IntentQA: {
		"policy_identity": 0.10, "policy_coverage": 0.10, "coverage_condition": 0.05,
	},
	IntentAnalysis: {
		"policy_coverage": 0.10, "coverage_exclusion": 0.08, "policy_claim": 0.08,
	},
	IntentAudit: {
		"coverage_exclusion": 0.12, "coverage_condition": 0.10, "coverage_endorsement": 0.08,
	},
}

// Repository is the narrow persistence port graphrag needs.
type Repository interface {
	SemanticSearch(ctx context.Context, query pgvector.Vector, topK int, filters store.SemanticSearchFilters) ([]store.SemanticMatch, error)
	ListSectionExtractions(ctx context.Context, documentID, workflowID string) ([]docmodel.SectionExtraction, error)
	GetDocument(ctx context.Context, id string) (*docmodel.Document, error)
	ListRelationshipsForWorkflow(ctx context.Context, workflowID string) ([]docmodel.EntityRelationship, error)
	ListCanonicalEntityIDsForSectionExtractions(ctx context.Context, sectionExtractionIDs []string) ([]string, error)
	GetCitation(ctx context.Context, documentID, sourceType, sourceID string) (*docmodel.Citation, error)
}

// scoredMatch carries one vector hit through reranking and content
// resolution.
type scoredMatch struct {
	Embedding docmodel.VectorEmbedding
	Distance  float64
	Final     float64
	Text      string
	Document  string
	PageRange docmodel.PageRange
	SourceID  string // the section_extraction or chunk id this resolved from
}

// vectorRetrieve runs stage 2: embeds every expanded query and merges
// filtered semantic_search results, deduping by embedding id and
// keeping the highest similarity seen across queries.
func vectorRetrieve(ctx context.Context, repo Repository, embedder embedding.Embedder, plan QueryPlan, workflowID string, topKPerQuery int) ([]scoredMatch, error) {
	maxDistance := maxVectorDistance
	filters := store.SemanticSearchFilters{
		WorkflowID:   workflowID,
		SectionTypes: plan.SectionTypeFilters,
		MaxDistance:  &maxDistance,
	}

	best := map[string]store.SemanticMatch{}
	for _, q := range plan.ExpandedQueries {
		vec, err := embedder.Embed(ctx, q)
		if err != nil {
			return nil, pkgerrs.NewTransient(fmt.Errorf("graphrag: embed query: %w", err))
		}
		matches, err := repo.SemanticSearch(ctx, vec, topKPerQuery, filters)
		if err != nil {
			return nil, pkgerrs.NewTransient(fmt.Errorf("graphrag: semantic search: %w", err))
		}
		for _, m := range matches {
			cur, ok := best[m.Embedding.ID]
			if !ok || m.Distance < cur.Distance {
				best[m.Embedding.ID] = m
			}
		}
	}

	out := make([]scoredMatch, 0, len(best))
	for _, m := range best {
		out = append(out, scoredMatch{Embedding: m.Embedding, Distance: m.Distance})
	}
	return out, nil
}

// similarity converts a cosine distance to a similarity in [0, 1].
func similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	return s
}

// rerank runs stage 3: computes each match's final score and sorts
// descending.
func rerank(matches []scoredMatch, plan QueryPlan, now time.Time) []scoredMatch {
	for i := range matches {
		m := &matches[i]
		s := similarity(m.Distance)
		m.Final = s +
			sectionBoost(plan.Intent, m.Embedding.SectionType) +
			entityBoost(m.Embedding, plan.ExtractedEntities, plan.EntityTypeFilters) +
			recencyBoost(m.Embedding.EffectiveDate, now)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Final > matches[j].Final })
	return matches
}

func sectionBoost(intent Intent, sectionType string) float64 {
	table, ok := sectionBoostTable[intent]
	if !ok {
		return 0
	}
	return table[sectionType]
}

// entityBoost gives full credit when the match's entity_type is named
// by a filter exactly, half credit when the match is a coverage
// entity and coverage is named among the filters (a softer match on
// "the user is asking about coverage-shaped things").
func entityBoost(emb docmodel.VectorEmbedding, extractedEntities, entityTypeFilters []string) float64 {
	entityType := string(emb.EntityType)
	for _, f := range entityTypeFilters {
		if f == entityType {
			return entityBoostFull
		}
	}
	if entityType == string(docmodel.VectorEntityCoverage) {
		for _, f := range entityTypeFilters {
			if f == "coverage" {
				return entityBoostHalf
			}
		}
	}
	return 0
}

// recencyBoost decays linearly from recencyBoostMax at 0 days old to
// 0 at recencyDecayDays old. A match with no effective date gets no
// boost — it's neither rewarded nor punished for being undated.
func recencyBoost(effectiveDate *time.Time, now time.Time) float64 {
	if effectiveDate == nil {
		return 0
	}
	days := now.Sub(*effectiveDate).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days >= recencyDecayDays {
		return 0
	}
	return recencyBoostMax * (1 - days/recencyDecayDays)
}

// resolveContent runs stage 4: re-derives each match's text from its
// owning SectionExtraction using the same templating function indexing
// uses, and enriches it with the document's filename and page range.
// Chunk-level matches (no owning section extraction) fall back to
// their own content_hash-addressed raw text being unavailable here,
// so they're dropped — chunk matches exist to power Tier-2 citation
// mapping, not to be surfaced as retrieval context directly.
func resolveContent(ctx context.Context, repo Repository, matches []scoredMatch) ([]scoredMatch, error) {
	extractionsByDoc := map[string][]docmodel.SectionExtraction{}
	documentNames := map[string]string{}

	out := make([]scoredMatch, 0, len(matches))
	for _, m := range matches {
		if m.Embedding.EntityType == docmodel.VectorEntityChunk {
			continue
		}

		exts, ok := extractionsByDoc[m.Embedding.DocumentID]
		if !ok {
			var err error
			exts, err = repo.ListSectionExtractions(ctx, m.Embedding.DocumentID, m.Embedding.WorkflowID)
			if err != nil {
				return nil, fmt.Errorf("graphrag: list section extractions: %w", err)
			}
			extractionsByDoc[m.Embedding.DocumentID] = exts
		}

		var ext *docmodel.SectionExtraction
		for i := range exts {
			if exts[i].SectionType == m.Embedding.SectionType {
				ext = &exts[i]
				break
			}
		}
		if ext == nil {
			continue
		}

		name, ok := documentNames[m.Embedding.DocumentID]
		if !ok {
			doc, err := repo.GetDocument(ctx, m.Embedding.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("graphrag: get document: %w", err)
			}
			if doc != nil {
				name = doc.FilePath
			}
			documentNames[m.Embedding.DocumentID] = name
		}

		m.Text = indexing.Template(ext.SectionType, ext.ExtractedFields)
		m.Document = name
		m.PageRange = ext.PageRange
		m.SourceID = ext.ID
		out = append(out, m)
	}
	return out, nil
}
