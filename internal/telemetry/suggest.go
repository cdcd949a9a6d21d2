package telemetry

import (
	"context"
	"math"
	"sort"
	"time"
)

// Confidence labels a suggestion by how much data backs it.
type Confidence string

const (
	// ConfidenceHigh means the tool has at least HighConfidenceSamples
	// native samples.
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium means the tool has at least MinSamples native
	// samples.
	ConfidenceMedium Confidence = "medium"

	// ConfidenceLow marks suggestions borrowed from related contexts.
	ConfidenceLow Confidence = "low"
)

// Suggestion is one ranked tool recommendation.
type Suggestion struct {
	Tool       string     `json:"tool"`
	Score      float64    `json:"score"`
	Samples    int        `json:"samples"`
	Confidence Confidence `json:"confidence"`

	// Borrowed is true when the suggestion came from related contexts
	// rather than the native one.
	Borrowed bool `json:"borrowed,omitempty"`
}

// SuggestOptions filters and truncates suggestion results.
type SuggestOptions struct {
	// Limit truncates the ranked list. Zero means no truncation.
	Limit int

	// MinScore drops results with a weighted score below the threshold.
	MinScore float64
}

// decayWeight is the exponential time-discount applied to an observation of
// the given age: 0.5^(age/halfLife). Age zero weighs exactly 1.0, age equal
// to the half-life weighs exactly 0.5.
func decayWeight(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// SuggestTool ranks the tools used in a context by the decay-weighted average
// of their historical scores. Tools with fewer than MinSamples samples are
// excluded. When no native tool qualifies, records are borrowed from related
// contexts (same key prefix) and every result is labeled low confidence.
func (m *Manager) SuggestTool(ctx context.Context, contextKey string, opts SuggestOptions) ([]Suggestion, error) {
	if contextKey == "" {
		return nil, ErrEmptyContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	native := m.rankRecordsLocked(m.doc.Contexts[contextKey], false)
	if len(native) > 0 {
		return finishSuggestions(native, opts), nil
	}

	// Related-context borrowing: aggregate records per tool across every
	// other context sharing this key's prefix, then apply the same decay
	// and threshold logic.
	var borrowed []UsageRecord
	for key, records := range m.doc.Contexts {
		if relatedContexts(contextKey, key) {
			borrowed = append(borrowed, records...)
		}
	}
	results := m.rankRecordsLocked(borrowed, true)
	return finishSuggestions(results, opts), nil
}

// rankRecordsLocked computes decay-weighted scores per tool over a record
// set, dropping tools below the sample threshold.
func (m *Manager) rankRecordsLocked(records []UsageRecord, borrowed bool) []Suggestion {
	var out []Suggestion
	for tool, stat := range m.decayedAveragesLocked(records) {
		if stat.samples < m.minSamples {
			continue
		}
		s := Suggestion{
			Tool:     tool,
			Score:    stat.score,
			Samples:  stat.samples,
			Borrowed: borrowed,
		}
		switch {
		case borrowed:
			s.Confidence = ConfidenceLow
		case stat.samples >= m.highConfidence:
			s.Confidence = ConfidenceHigh
		default:
			s.Confidence = ConfidenceMedium
		}
		out = append(out, s)
	}
	return out
}

func finishSuggestions(results []Suggestion, opts SuggestOptions) []Suggestion {
	filtered := results[:0]
	for _, s := range results {
		if s.Score >= opts.MinScore {
			filtered = append(filtered, s)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered
}
