package graphrag

import (
	"context"
	"fmt"

	"github.com/c360studio/insurekb/internal/docmodel"
)

// relationshipAllowlistByIntent narrows graph traversal to the edge
// types that intent actually cares about. A nil entry means no
// restriction (AUDIT wants the full picture).
var relationshipAllowlistByIntent = map[Intent]map[docmodel.RelationshipType]bool{
	IntentQA: {
		docmodel.RelIssuedBy:   true,
		docmodel.RelHasInsured: true,
		docmodel.RelHasCoverage: true,
		docmodel.RelHasLocation: true,
	},
	IntentAnalysis: {
		docmodel.RelHasCoverage: true,
		docmodel.RelSubjectTo:   true,
		docmodel.RelExcludes:    true,
		docmodel.RelModifiedBy:  true,
		docmodel.RelDefinedIn:   true,
		docmodel.RelHasClaim:    true,
	},
}

// graphFact is one traversed edge rendered for context assembly.
type graphFact struct {
	Source string
	Target string
	Type   docmodel.RelationshipType
	Hop    int
}

// graphExpansion is the stage-5 result: either a populated fact set,
// or fallback mode when the relationship lookup failed.
type graphExpansion struct {
	Facts        []graphFact
	Available    bool
	FallbackMode bool
}

// graphExpand runs stage 5: BFS over EntityRelationship edges scoped
// to workflowID, starting from seedEntityIDs, up to plan.TraversalDepth
// hops, pruned by the intent's relationship-type allowlist. A
// relationship lookup failure is non-fatal: the caller gets
// fallback_mode=true and proceeds with vector-only context.
func graphExpand(ctx context.Context, repo Repository, workflowID string, plan QueryPlan, seedEntityIDs []string) graphExpansion {
	if len(seedEntityIDs) == 0 || plan.TraversalDepth == 0 {
		return graphExpansion{Available: true}
	}

	edges, err := repo.ListRelationshipsForWorkflow(ctx, workflowID)
	if err != nil {
		return graphExpansion{Available: false, FallbackMode: true}
	}

	allowlist := relationshipAllowlistByIntent[plan.Intent] // nil => no restriction

	frontier := map[string]bool{}
	for _, id := range seedEntityIDs {
		frontier[id] = true
	}
	visited := map[string]bool{}
	for id := range frontier {
		visited[id] = true
	}

	var facts []graphFact
	for hop := 1; hop <= plan.TraversalDepth; hop++ {
		next := map[string]bool{}
		for _, e := range edges {
			if allowlist != nil && !allowlist[e.RelationshipType] {
				continue
			}
			if !frontier[e.SourceEntityID] && !frontier[e.TargetEntityID] {
				continue
			}
			facts = append(facts, graphFact{Source: e.SourceEntityID, Target: e.TargetEntityID, Type: e.RelationshipType, Hop: hop})
			if !visited[e.TargetEntityID] {
				next[e.TargetEntityID] = true
			}
			if !visited[e.SourceEntityID] {
				next[e.SourceEntityID] = true
			}
		}
		for id := range next {
			visited[id] = true
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	return graphExpansion{Facts: facts, Available: true}
}

// renderFacts turns the traversed edges into short context lines.
func renderFacts(facts []graphFact) []string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, fmt.Sprintf("%s %s %s", f.Source, f.Type, f.Target))
	}
	return out
}
