// Package citation implements the citation mapper of §4.6: turning a
// (verbatim_text, page_range) tuple into a Citation with precise
// page/bbox spans, preferring an exact OCR word match and falling
// back to semantic chunk matching when the verbatim text can't be
// located exactly.
package citation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding"
	"github.com/c360studio/insurekb/internal/store"
)

// tier1Confidence and tier2DistanceThreshold match §4.6: an exact
// match always reports >=0.95; a semantic match is only accepted
// within this cosine-distance threshold.
const (
	tier1Confidence       = 0.95
	tier2DistanceThreshold = 0.5
	// tier2Candidates widens the semantic search beyond top-1 so a
	// page-range restriction can be applied client-side without the
	// single nearest neighbor (which may sit on the wrong page)
	// silently winning.
	tier2Candidates = 10
)

// stableChunkPagePattern pulls the page number out of a stable_chunk_id
// formatted doc_<docid>_p<page>_c<idx>.
var stableChunkPagePattern = regexp.MustCompile(`_p(\d+)_c\d+$`)

// stableChunkPage extracts the page number encoded in a stable chunk
// ID, returning ok=false if the ID doesn't match the expected format.
func stableChunkPage(stableChunkID string) (int, bool) {
	m := stableChunkPagePattern.FindStringSubmatch(stableChunkID)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return page, true
}

// Repository is the subset of the store the mapper needs.
type Repository interface {
	ListOCRTokens(ctx context.Context, documentID string, pageStart, pageEnd int) ([]docmodel.OCRToken, error)
	GetDocumentPage(ctx context.Context, documentID string, pageNumber int) (*docmodel.DocumentPage, error)
	SemanticSearch(ctx context.Context, query pgvector.Vector, topK int, filters store.SemanticSearchFilters) ([]store.SemanticMatch, error)
}

// Mapper resolves verbatim text spans into Citation rows.
type Mapper struct {
	repo     Repository
	embedder embedding.Embedder
}

// New builds a Mapper.
func New(repo Repository, embedder embedding.Embedder) *Mapper {
	return &Mapper{repo: repo, embedder: embedder}
}

// Request is one span to locate on a document.
type Request struct {
	DocumentID   string
	SourceType   string
	SourceID     string
	VerbatimText string
	PageRange    docmodel.PageRange // optional: 0,0 means unknown
	WorkflowID   string             // used to scope Tier 2 semantic search
}

// Locate runs Tier 1 exact match, falling back to Tier 2 semantic
// matching when Tier 1 fails to find the verbatim text.
func (m *Mapper) Locate(ctx context.Context, req Request) (*docmodel.Citation, error) {
	if c, err := m.tier1(ctx, req); err != nil {
		return nil, err
	} else if c != nil {
		return c, nil
	}
	return m.tier2(ctx, req)
}

// tier1 loads OCR word coordinates for the page range, locates the
// longest contiguous subsequence whose normalized concatenation
// equals the normalized verbatim text, and merges adjacent word boxes
// into per-line rectangles.
func (m *Mapper) tier1(ctx context.Context, req Request) (*docmodel.Citation, error) {
	pageStart, pageEnd := req.PageRange.Start, req.PageRange.End
	if pageStart == 0 && pageEnd == 0 {
		return nil, nil
	}

	tokens, err := m.repo.ListOCRTokens(ctx, req.DocumentID, pageStart, pageEnd)
	if err != nil {
		return nil, fmt.Errorf("citation: list ocr tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	match := findContiguousMatch(tokens, req.VerbatimText)
	if match == nil {
		return nil, nil
	}

	spans, primaryPage, err := m.buildSpans(ctx, req.DocumentID, match)
	if err != nil {
		return nil, err
	}

	return &docmodel.Citation{
		DocumentID:           req.DocumentID,
		SourceType:           req.SourceType,
		SourceID:             req.SourceID,
		Spans:                spans,
		VerbatimText:         req.VerbatimText,
		PrimaryPage:          primaryPage,
		PageRange:            req.PageRange,
		ExtractionConfidence: tier1Confidence,
		ExtractionMethod:     docmodel.MethodTier1ExactMatch,
	}, nil
}

// tier2 embeds the verbatim text and searches chunk-level embeddings
// for the best match within the optional page range. The citation it
// returns records the matched page and the similarity as confidence;
// it carries no Spans, as the matched chunk's boxes are not looked up.
func (m *Mapper) tier2(ctx context.Context, req Request) (*docmodel.Citation, error) {
	vec, err := m.embedder.Embed(ctx, req.VerbatimText)
	if err != nil {
		return nil, fmt.Errorf("citation: embed verbatim text: %w", err)
	}

	matches, err := m.repo.SemanticSearch(ctx, vec, tier2Candidates, store.SemanticSearchFilters{
		DocumentID:  req.DocumentID,
		WorkflowID:  req.WorkflowID,
		EntityTypes: []docmodel.VectorEntityType{docmodel.VectorEntityChunk},
	})
	if err != nil {
		return nil, fmt.Errorf("citation: semantic search: %w", err)
	}

	inRange := req.PageRange.Start != 0 || req.PageRange.End != 0
	var best *store.SemanticMatch
	var bestPage int
	for i := range matches {
		page, ok := stableChunkPage(matches[i].Embedding.SourceChunkID)
		if inRange && ok && (page < req.PageRange.Start || page > req.PageRange.End) {
			continue
		}
		best = &matches[i]
		bestPage = page
		break
	}
	if best == nil || best.Distance > tier2DistanceThreshold {
		return nil, nil
	}

	similarity := 1 - best.Distance
	if similarity < 0 {
		similarity = 0
	}

	// Fall back to the requested page range's start only when the
	// matched chunk's stable ID didn't carry a parseable page; tier1's
	// precise bboxes remain the preferred path whenever OCR tokens are
	// available.
	page := bestPage
	if page == 0 {
		page = req.PageRange.Start
	}

	return &docmodel.Citation{
		DocumentID:           req.DocumentID,
		SourceType:           req.SourceType,
		SourceID:             req.SourceID,
		VerbatimText:         req.VerbatimText,
		PrimaryPage:          page,
		PageRange:            req.PageRange,
		ExtractionConfidence: similarity,
		ExtractionMethod:     docmodel.MethodTier2Semantic,
	}, nil
}

// buildSpans merges a matched token run's boxes into one rectangle
// per line (tokens on the same page, merged horizontally). It checks
// that a DocumentPage row exists for each page but does not read its
// dimensions or rotation: boxes stay in the OCR tokens' coordinates.
func (m *Mapper) buildSpans(ctx context.Context, documentID string, tokens []docmodel.OCRToken) ([]docmodel.CitationSpan, int, error) {
	byPage := make(map[int][]docmodel.OCRToken)
	var pageOrder []int
	for _, t := range tokens {
		if _, ok := byPage[t.PageNumber]; !ok {
			pageOrder = append(pageOrder, t.PageNumber)
		}
		byPage[t.PageNumber] = append(byPage[t.PageNumber], t)
	}

	spans := make([]docmodel.CitationSpan, 0, len(pageOrder))
	for _, page := range pageOrder {
		if _, err := m.repo.GetDocumentPage(ctx, documentID, page); err != nil {
			return nil, 0, fmt.Errorf("citation: get document page %d: %w", page, err)
		}
		spans = append(spans, docmodel.CitationSpan{
			PageNumber: page,
			Boxes:      mergeLineBoxes(byPage[page]),
		})
	}

	return spans, pageOrder[0], nil
}

// mergeLineBoxes merges word boxes that sit on roughly the same
// baseline into one rectangle per line.
func mergeLineBoxes(tokens []docmodel.OCRToken) []docmodel.BoundingBox {
	if len(tokens) == 0 {
		return nil
	}

	const lineTolerance = 2.0
	var boxes []docmodel.BoundingBox
	current := tokens[0].Box

	for _, t := range tokens[1:] {
		if abs(t.Box.Y0-current.Y0) <= lineTolerance {
			if t.Box.X0 < current.X0 {
				current.X0 = t.Box.X0
			}
			if t.Box.X1 > current.X1 {
				current.X1 = t.Box.X1
			}
			if t.Box.Y1 > current.Y1 {
				current.Y1 = t.Box.Y1
			}
			continue
		}
		boxes = append(boxes, current)
		current = t.Box
	}
	boxes = append(boxes, current)
	return boxes
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// findContiguousMatch locates the contiguous run of tokens whose
// normalized, whitespace-joined text equals the normalized verbatim
// text, scanning for the first run that matches exactly.
func findContiguousMatch(tokens []docmodel.OCRToken, verbatim string) []docmodel.OCRToken {
	target := normalize(verbatim)
	if target == "" {
		return nil
	}
	targetWords := strings.Fields(target)

	for start := 0; start < len(tokens); start++ {
		end := start
		var built []string
		for end < len(tokens) && len(built) < len(targetWords) {
			built = append(built, normalize(tokens[end].Text))
			end++
		}
		if len(built) != len(targetWords) {
			continue
		}
		match := true
		for i, w := range built {
			if w != targetWords[i] {
				match = false
				break
			}
		}
		if match {
			return tokens[start:end]
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
