// Package docmodel defines the persisted data model shared by every
// pipeline stage: documents and their pages/chunks, section
// extractions, the canonical entity graph, workflows, vector
// embeddings, and citations.
package docmodel

import "time"

// DocumentStatus is the lifecycle status of an ingested document.
type DocumentStatus string

const (
	DocumentUploaded      DocumentStatus = "uploaded"
	DocumentOCRProcessing DocumentStatus = "ocr_processing"
	DocumentOCRProcessed  DocumentStatus = "ocr_processed"
	DocumentClassified    DocumentStatus = "classified"
	DocumentExtracted     DocumentStatus = "extracted"
)

// Document is the unit of ingestion.
type Document struct {
	ID        string
	FilePath  string
	MimeType  string
	PageCount int
	Status    DocumentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentPage carries page-level OCR/layout metadata.
type DocumentPage struct {
	ID           string
	DocumentID   string
	PageNumber   int // 1-indexed
	WidthPoints  float64
	HeightPoints float64
	Rotation     int // one of 0, 90, 180, 270
	Metadata     map[string]any
}

// DocumentChunk is a section-aware text unit.
type DocumentChunk struct {
	ID                  string
	DocumentID          string
	StableChunkID       string // deterministic: doc_<docid>_p<page>_c<idx>
	PageNumber          int
	ChunkIndex          int // within page
	SectionType         string
	EffectiveSectionType string
	SubsectionType      string
	RawText             string
	TokenCount          int
}

// DocumentTableType enumerates the first-class table kinds the
// pipeline materializes rows for.
type DocumentTableType string

const (
	TablePropertySOV       DocumentTableType = "property_sov"
	TableLossRun           DocumentTableType = "loss_run"
	TablePremiumSchedule   DocumentTableType = "premium_schedule"
	TableCoverageSchedule  DocumentTableType = "coverage_schedule"
)

// DocumentTable is a first-class extracted table.
type DocumentTable struct {
	ID            string
	StableTableID string // f(doc, page, table_index)
	DocumentID    string
	PageNumber    int
	TableIndex    int
	TableType     DocumentTableType
	TableJSON     map[string]any // rows/cells/headers
	Confidence    float64
	RawMarkdown   string
}

// SOVItem is a materialized row of a property_sov table.
type SOVItem struct {
	ID               string
	DocumentTableID  string
	LocationNumber   string
	Address          string
	BuildingValue    float64
	ContentsValue    float64
	BusinessIncome   float64
	ConstructionType string
	OccupancyType    string
	YearBuilt        int
}

// LossRunClaim is a materialized row of a loss_run table.
type LossRunClaim struct {
	ID            string
	DocumentTableID string
	ClaimNumber   string
	DateOfLoss    time.Time
	Description   string
	PaidAmount    float64
	ReservedAmount float64
	Status        string
}
