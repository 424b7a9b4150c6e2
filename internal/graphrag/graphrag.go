package graphrag

import (
	"context"
	"time"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding"
	"github.com/c360studio/insurekb/internal/llm"
)

// defaultMaxContextTokens bounds the assembled context when a caller
// doesn't override it.
const defaultMaxContextTokens = 6000

// topKPerQuery bounds how many matches semantic_search returns per
// expanded query before merging and reranking.
const topKPerQuery = 20

// Request is one GraphRAG query.
type Request struct {
	Query             string
	WorkflowID        string
	TargetDocumentIDs []string
	MaxContextTokens  int // 0 uses defaultMaxContextTokens
}

// Result is the full response: the generated answer, its plan and
// citations, and per-stage latency for observability.
type Result struct {
	Answer          string
	Plan            QueryPlan
	Citations       []docmodel.Citation
	GraphAvailable  bool
	FallbackMode    bool
	StageLatencies  map[string]time.Duration
	ContextTokens   map[string]int
}

// Retriever drives the seven-stage pipeline of §4.9.
type Retriever struct {
	repo     Repository
	embedder embedding.Embedder
	completer llm.Completer
	now      func() time.Time
}

// New builds a Retriever.
func New(repo Repository, embedder embedding.Embedder, completer llm.Completer) *Retriever {
	return &Retriever{repo: repo, embedder: embedder, completer: completer, now: time.Now}
}

// matchedSectionExtractionIDs collects the distinct section extraction
// IDs backing a set of resolved matches, so graph expansion (stage 5)
// seeds from the entities actually present in the retrieved context
// rather than query-understanding's free-text entity guesses.
func matchedSectionExtractionIDs(matches []scoredMatch) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if m.SourceID == "" || seen[m.SourceID] {
			continue
		}
		seen[m.SourceID] = true
		out = append(out, m.SourceID)
	}
	return out
}

// Retrieve runs the full pipeline for one query.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	latencies := map[string]time.Duration{}
	track := func(stage string, start time.Time) { latencies[stage] = time.Since(start) }

	t := time.Now()
	plan, err := understandQuery(ctx, r.completer, req.Query, req.TargetDocumentIDs)
	track("query_understanding", t)
	if err != nil {
		return nil, err
	}

	if plan.Intent == IntentGeneral {
		return &Result{Answer: generalReply, Plan: plan, GraphAvailable: true, StageLatencies: latencies}, nil
	}

	t = time.Now()
	matches, err := vectorRetrieve(ctx, r.repo, r.embedder, plan, req.WorkflowID, topKPerQuery)
	track("vector_retrieval", t)
	if err != nil {
		return nil, err
	}

	t = time.Now()
	matches = rerank(matches, plan, r.now())
	track("reranking", t)

	t = time.Now()
	matches, err = resolveContent(ctx, r.repo, matches)
	track("content_resolution", t)
	if err != nil {
		return nil, err
	}

	t = time.Now()
	seeds, err := r.repo.ListCanonicalEntityIDsForSectionExtractions(ctx, matchedSectionExtractionIDs(matches))
	if err != nil {
		return nil, err
	}
	expansion := graphExpand(ctx, r.repo, req.WorkflowID, plan, seeds)
	track("graph_expansion", t)

	maxTokens := req.MaxContextTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxContextTokens
	}

	t = time.Now()
	assembled := assembleContext(matches, renderFacts(expansion.Facts), maxTokens)
	track("context_assembly", t)

	t = time.Now()
	answer, err := generateResponse(ctx, r.completer, req.Query, assembled.Markdown)
	track("response_generation", t)
	if err != nil {
		return nil, err
	}

	citations := attachCitations(ctx, r.repo, matches)

	return &Result{
		Answer:         answer,
		Plan:           plan,
		Citations:      citations,
		GraphAvailable: expansion.Available,
		FallbackMode:   expansion.FallbackMode,
		StageLatencies: latencies,
		ContextTokens:  assembled.StageTokens,
	}, nil
}
