package telemetry

import (
	"encoding/json"
	"math"
	"time"
)

// SchemaVersion is the current telemetry document schema version.
//
// Version history:
//
//	0 / missing: pre-release, treated as invalid; the document is reset.
//	1: usage records and tool aggregates only.
//	2: adds grpoGroups and grpoScores collections.
const SchemaVersion = 2

// UsageRecord is one observation of a tool applied in a context. Records are
// immutable once written and ordered by insertion within their context bucket.
type UsageRecord struct {
	Tool      string    `json:"tool"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command,omitempty"`
	Domain    string    `json:"domain,omitempty"`
}

// UsageMeta carries the optional fields of a usage record.
type UsageMeta struct {
	Command string
	Domain  string
}

// ToolAggregate is the running per-tool summary across all contexts.
type ToolAggregate struct {
	TotalUses  int       `json:"totalUses"`
	TotalScore float64   `json:"totalScore"`
	AvgScore   float64   `json:"avgScore"`
	LastUsed   time.Time `json:"lastUsed"`
}

// Ranking is one competitor's outcome within a comparison group.
type Ranking struct {
	Tool              string  `json:"tool"`
	CompositeScore    float64 `json:"compositeScore"`
	RelativeAdvantage float64 `json:"relativeAdvantage"`
	Rank              int     `json:"rank"`
}

// ComparisonGroup is the immutable record of one group comparison: two or
// more tools applied simultaneously to the same context, ranked.
type ComparisonGroup struct {
	Context   string    `json:"context"`
	Rankings  []Ranking `json:"rankings"`
	Timestamp time.Time `json:"timestamp"`
}

// CumulativeScore is a tool's running average composite score across every
// comparison group it has participated in for one context.
type CumulativeScore struct {
	Score       float64   `json:"score"`
	Comparisons int       `json:"comparisons"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Document is the telemetry store's backing document. All collections are
// keyed by context; cumulative scores use the "context::tool" encoding.
type Document struct {
	Version    int                          `json:"version"`
	Contexts   map[string][]UsageRecord     `json:"contexts"`
	Tools      map[string]ToolAggregate     `json:"tools"`
	GrpoGroups map[string][]ComparisonGroup `json:"grpoGroups"`
	GrpoScores map[string]CumulativeScore   `json:"grpoScores"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() *Document {
	return &Document{
		Version:    SchemaVersion,
		Contexts:   make(map[string][]UsageRecord),
		Tools:      make(map[string]ToolAggregate),
		GrpoGroups: make(map[string][]ComparisonGroup),
		GrpoScores: make(map[string]CumulativeScore),
	}
}

// decodeDocument parses raw document bytes and migrates the result to the
// current schema version. Corrupt input and version 0 both reset to an empty
// document; version 1 is migrated in place, preserving existing contexts and
// aggregates.
func decodeDocument(data []byte) *Document {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return NewDocument()
	}
	return migrateDocument(&doc)
}

func migrateDocument(doc *Document) *Document {
	switch {
	case doc.Version <= 0:
		return NewDocument()
	case doc.Version == 1:
		doc.GrpoGroups = make(map[string][]ComparisonGroup)
		doc.GrpoScores = make(map[string]CumulativeScore)
		doc.Version = SchemaVersion
	}
	if doc.Contexts == nil {
		doc.Contexts = make(map[string][]UsageRecord)
	}
	if doc.Tools == nil {
		doc.Tools = make(map[string]ToolAggregate)
	}
	if doc.GrpoGroups == nil {
		doc.GrpoGroups = make(map[string][]ComparisonGroup)
	}
	if doc.GrpoScores == nil {
		doc.GrpoScores = make(map[string]CumulativeScore)
	}
	return doc
}

// clamp01 clamps a score into [0,1]. NaN clamps to 0 so malformed inputs
// never propagate through aggregate computations.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
