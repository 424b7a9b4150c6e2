package docmodel

// BoundingBox is a rectangle in PDF point space (72 ppi), post
// rotation-normalization.
type BoundingBox struct {
	X0, Y0, X1, Y1 float64
}

// OCRToken is one word's coordinates on a page, the unit the citation
// mapper's Tier 1 exact-match pass works over.
type OCRToken struct {
	DocumentID string
	PageNumber int
	WordIndex  int
	Text       string
	Box        BoundingBox
}

// CitationSpan is one page's worth of bounding boxes for a citation.
type CitationSpan struct {
	PageNumber int
	Boxes      []BoundingBox
}

// ExtractionMethod records which tier of the citation mapper produced
// a citation.
type ExtractionMethod string

const (
	MethodTier1ExactMatch ExtractionMethod = "tier1_exact_match"
	MethodTier2Semantic   ExtractionMethod = "tier2_semantic"
)

// Citation is a span of verbatim source text located on a document.
type Citation struct {
	ID                   string
	DocumentID           string
	SourceType           string
	SourceID             string // canonical id of the cited item
	Spans                []CitationSpan
	VerbatimText         string
	PrimaryPage          int
	PageRange            PageRange
	ExtractionConfidence float64
	ExtractionMethod     ExtractionMethod
	ClauseReference      string // optional
}

// UniqueKey returns the tuple that uniquely identifies a Citation:
// (document_id, source_type, source_id).
func (c Citation) UniqueKey() [3]string {
	return [3]string{c.DocumentID, c.SourceType, c.SourceID}
}
