// Package graphrag implements §4.9: the seven-stage retrieval pipeline
// that turns a free-text query into a cited, grounded answer over the
// section extraction, vector, and entity graph stores.
package graphrag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/insurekb/internal/llm"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

// Intent classifies the query's shape, driving traversal depth and
// reranking boosts.
type Intent string

const (
	IntentQA       Intent = "QA"
	IntentAnalysis Intent = "ANALYSIS"
	IntentAudit    Intent = "AUDIT"
	IntentGeneral  Intent = "GENERAL"
)

// traversalDepthByIntent is the fixed QA=1/ANALYSIS=2/AUDIT=3 table.
var traversalDepthByIntent = map[Intent]int{
	IntentQA:       1,
	IntentAnalysis: 2,
	IntentAudit:    3,
}

// QueryPlan is the output of query understanding (stage 1).
type QueryPlan struct {
	Intent             Intent
	TraversalDepth     int
	ExpandedQueries    []string
	ExtractedEntities  []string
	SectionTypeFilters []string
	EntityTypeFilters  []string
	TargetDocumentIDs  []string
}

type planLLMOutput struct {
	Intent             string   `json:"intent"`
	ExpandedQueries    []string `json:"expanded_queries"`
	ExtractedEntities  []string `json:"extracted_entities"`
	SectionTypeFilters []string `json:"section_type_filters"`
	EntityTypeFilters  []string `json:"entity_type_filters"`
}

const planSystemPrompt = `You classify an insurance document query and plan its retrieval.
Respond with a single JSON object:
{"intent": "QA"|"ANALYSIS"|"AUDIT"|"GENERAL", "expanded_queries": ["..."], "extracted_entities": ["..."], "section_type_filters": ["..."], "entity_type_filters": ["..."]}
QA is a single targeted fact lookup. ANALYSIS compares or summarizes across sections. AUDIT checks compliance or completeness across the whole document set. GENERAL is small talk or anything not about the documents.
expanded_queries always includes the original query plus up to 3 paraphrases/sub-questions. Every other field may be empty.`

// understandQuery runs stage 1: produces a QueryPlan, or a GENERAL
// plan with a static reply on parse failure so the pipeline degrades
// to a safe default rather than erroring out.
func understandQuery(ctx context.Context, completer llm.Completer, query string, targetDocumentIDs []string) (QueryPlan, error) {
	resp, err := completer.Complete(ctx, llm.Request{
		Capability: "retrieval",
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: query},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return QueryPlan{}, pkgerrs.NewTransient(fmt.Errorf("graphrag: query understanding: %w", err))
	}

	raw := llm.ExtractJSON(resp.Content)
	var out planLLMOutput
	if raw == "" || json.Unmarshal([]byte(raw), &out) != nil {
		return QueryPlan{Intent: IntentGeneral, ExpandedQueries: []string{query}, TargetDocumentIDs: targetDocumentIDs}, nil
	}

	intent := Intent(strings.ToUpper(out.Intent))
	if _, ok := traversalDepthByIntent[intent]; !ok && intent != IntentGeneral {
		intent = IntentQA
	}

	expanded := out.ExpandedQueries
	if len(expanded) == 0 {
		expanded = []string{query}
	}

	return QueryPlan{
		Intent:             intent,
		TraversalDepth:     traversalDepthByIntent[intent],
		ExpandedQueries:    expanded,
		ExtractedEntities:  out.ExtractedEntities,
		SectionTypeFilters: out.SectionTypeFilters,
		EntityTypeFilters:  out.EntityTypeFilters,
		TargetDocumentIDs:  targetDocumentIDs,
	}, nil
}

// generalReply is the static conversational reply GENERAL intent
// short-circuits the pipeline with.
const generalReply = "I can answer questions about the policies, submissions, loss runs, and claims that have been ingested. Ask me about coverages, limits, exclusions, locations, or claim history."
