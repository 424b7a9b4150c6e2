package graphrag

import (
	"context"
	"fmt"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/llm"
	"github.com/c360studio/insurekb/internal/pkgerrs"
)

const responseSystemPrompt = `You answer questions about insurance policies, submissions, loss runs, and claims using only the context provided below.
Cite every factual claim with the bracketed source number it came from, e.g. [2]. If the context doesn't contain the answer, say so plainly rather than guessing.`

// generateResponse runs stage 7: a single LLM call over the assembled
// Markdown context.
func generateResponse(ctx context.Context, completer llm.Completer, query, contextMarkdown string) (string, error) {
	resp, err := completer.Complete(ctx, llm.Request{
		Capability: "retrieval",
		Messages: []llm.Message{
			{Role: "system", Content: responseSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\nQuestion: %s", contextMarkdown, query)},
		},
		MaxTokens: 2048,
	})
	if err != nil {
		return "", pkgerrs.NewTransient(fmt.Errorf("graphrag: response generation: %w", err))
	}
	return resp.Content, nil
}

// attachCitations maps each included match's source id back to the
// Citation row the citation mapper already produced for it, skipping
// anything that was never mapped rather than failing the response.
func attachCitations(ctx context.Context, repo Repository, matches []scoredMatch) []docmodel.Citation {
	var out []docmodel.Citation
	for _, m := range matches {
		if m.SourceID == "" {
			continue
		}
		c, err := repo.GetCitation(ctx, m.Embedding.DocumentID, "section_extraction", m.SourceID)
		if err != nil || c == nil {
			continue
		}
		out = append(out, *c)
	}
	return out
}
