package graphrag

import (
	"fmt"
	"strings"
)

// summaryRuneLimit bounds how much of a non-full-text slot's text is
// kept, since summaries exist to fit more sources into a bounded
// budget, not to reproduce them.
const summaryRuneLimit = 240

// estimateTokens is a cheap token-count approximation (~4 chars/token
// for English prose), good enough to budget a context window without
// invoking the model's own tokenizer.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// assembledContext is the stage-6 result: the Markdown context for
// the response model plus per-source token accounting.
type assembledContext struct {
	Markdown       string
	StageTokens    map[string]int
	IncludedCount  int
	SummarizedCount int
}

// assembleContext runs stage 6: merges vector and graph results into a
// hierarchical context bounded by maxContextTokens — full text for the
// highest-scoring matches, summaries for the rest, dropped entirely
// once the budget is spent.
func assembleContext(matches []scoredMatch, graphLines []string, maxContextTokens int) assembledContext {
	var b strings.Builder
	tokens := map[string]int{}
	budget := maxContextTokens
	included, summarized := 0, 0

	for i, m := range matches {
		if budget <= 0 {
			break
		}

		label := fmt.Sprintf("[%d] %s (%s)", i+1, m.Document, sectionLabel(m))
		fullBlock := fmt.Sprintf("## %s\n%s\n\n", label, m.Text)

		var block string
		if estimateTokens(fullBlock) <= budget {
			block = fullBlock
			included++
		} else {
			block = fmt.Sprintf("## %s\n%s\n\n", label, summarize(m.Text))
			summarized++
		}

		blockTokens := estimateTokens(block)
		if blockTokens > budget {
			break
		}

		b.WriteString(block)
		tokens[m.SourceID] = blockTokens
		budget -= blockTokens
	}

	if len(graphLines) > 0 && budget > 0 {
		graphBlock := "## Related entities\n" + strings.Join(graphLines, "\n") + "\n\n"
		if t := estimateTokens(graphBlock); t <= budget {
			b.WriteString(graphBlock)
			tokens["graph_expansion"] = t
		}
	}

	return assembledContext{Markdown: b.String(), StageTokens: tokens, IncludedCount: included, SummarizedCount: summarized}
}

func sectionLabel(m scoredMatch) string {
	if m.PageRange.Start == 0 && m.PageRange.End == 0 {
		return m.Embedding.SectionType
	}
	return fmt.Sprintf("%s, p.%d-%d", m.Embedding.SectionType, m.PageRange.Start, m.PageRange.End)
}

// summarize truncates text to summaryRuneLimit runes on a word
// boundary, appending an ellipsis.
func summarize(text string) string {
	runes := []rune(text)
	if len(runes) <= summaryRuneLimit {
		return text
	}
	cut := string(runes[:summaryRuneLimit])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}
