package telemetry

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidGroupSize is returned when a group comparison is attempted with
// fewer than two results.
var ErrInvalidGroupSize = errors.New("group comparison requires at least 2 results")

// ErrReservedSeparator is returned when a context or tool name contains the
// "::" sequence reserved by cumulative score keys. Allowing it would make
// the stored key ambiguous and leak scores across contexts.
var ErrReservedSeparator = errors.New(`context and tool names cannot contain "::"`)

// Composite blend weights. Success and speed dominate; accuracy and brevity
// are secondary tie-breakers. The ordering contract these must satisfy: a
// fast success always outranks a slow failure, and equal-duration
// equal-success results produce equal composites.
const (
	successWeight  = 0.4
	speedWeight    = 0.3
	accuracyWeight = 0.2
	brevityWeight  = 0.1

	// noTimingSpeedScore is assigned to results without usable timing
	// (durationMs == 0), independent of the rest of the group.
	noTimingSpeedScore = 0.5
)

// CompetitorResult is one tool's outcome in a simultaneous multi-tool run.
type CompetitorResult struct {
	Tool       string  `json:"tool"`
	Success    bool    `json:"success"`
	DurationMs float64 `json:"durationMs"`
	Accuracy   float64 `json:"accuracy"`
	Brevity    float64 `json:"brevity"`
}

// RecordGroupComparison scores a group of two or more competing results for
// the same context, ranks them by composite score, records each result's
// advantage relative to the group mean, and folds each tool's composite into
// its cumulative score for the context.
func (m *Manager) RecordGroupComparison(ctx context.Context, contextKey string, results []CompetitorResult) (*ComparisonGroup, error) {
	if contextKey == "" {
		return nil, ErrEmptyContext
	}
	if strings.Contains(contextKey, ScoreKeySeparator) {
		return nil, ErrReservedSeparator
	}
	if len(results) < 2 {
		return nil, ErrInvalidGroupSize
	}
	for _, r := range results {
		if r.Tool == "" {
			return nil, ErrEmptyTool
		}
		if strings.Contains(r.Tool, ScoreKeySeparator) {
			return nil, ErrReservedSeparator
		}
	}

	speeds := speedScores(results)

	composites := make([]float64, len(results))
	var sum float64
	for i, r := range results {
		success := 0.0
		if r.Success {
			success = 1.0
		}
		composites[i] = successWeight*success +
			speedWeight*speeds[i] +
			accuracyWeight*clamp01(r.Accuracy) +
			brevityWeight*clamp01(r.Brevity)
		sum += composites[i]
	}
	mean := sum / float64(len(results))

	rankings := make([]Ranking, len(results))
	for i, r := range results {
		rankings[i] = Ranking{
			Tool:              r.Tool,
			CompositeScore:    composites[i],
			RelativeAdvantage: composites[i] - mean,
		}
	}
	// Stable sort keeps input order on ties; rank 1 is best.
	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].CompositeScore > rankings[j].CompositeScore
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	group := ComparisonGroup{
		Context:   contextKey,
		Rankings:  rankings,
		Timestamp: m.now(),
	}

	groups := append(m.doc.GrpoGroups[contextKey], group)
	if len(groups) > m.maxGroups {
		groups = groups[len(groups)-m.maxGroups:]
	}
	m.doc.GrpoGroups[contextKey] = groups

	for _, r := range rankings {
		key := ScoreKey{Context: contextKey, Tool: r.Tool}.String()
		cum := m.doc.GrpoScores[key]
		cum.Score = (cum.Score*float64(cum.Comparisons) + r.CompositeScore) / float64(cum.Comparisons+1)
		cum.Comparisons++
		cum.UpdatedAt = group.Timestamp
		m.doc.GrpoScores[key] = cum
	}

	m.markDirtyLocked()

	m.logger.Debug("recorded group comparison",
		zap.String("context", contextKey),
		zap.Int("competitors", len(results)),
		zap.String("winner", rankings[0].Tool),
	)
	return &group, nil
}

// speedScores normalizes durations across the results that have a strictly
// positive duration. The fastest positive duration maps to 1.0 and the
// slowest to 0.0; a single distinct positive value (including a lone timed
// result) maps to 1.0. Untimed results get noTimingSpeedScore regardless of
// the rest of the group.
func speedScores(results []CompetitorResult) []float64 {
	minDur, maxDur := 0.0, 0.0
	timed := 0
	for _, r := range results {
		if r.DurationMs <= 0 {
			continue
		}
		if timed == 0 || r.DurationMs < minDur {
			minDur = r.DurationMs
		}
		if timed == 0 || r.DurationMs > maxDur {
			maxDur = r.DurationMs
		}
		timed++
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		switch {
		case r.DurationMs <= 0:
			scores[i] = noTimingSpeedScore
		case minDur == maxDur:
			scores[i] = 1.0
		default:
			scores[i] = (maxDur - r.DurationMs) / (maxDur - minDur)
		}
	}
	return scores
}

// GetGrpoHistory returns the most recent comparison groups for a context,
// newest first, truncated to limit (zero means all).
func (m *Manager) GetGrpoHistory(ctx context.Context, contextKey string, limit int) ([]ComparisonGroup, error) {
	if contextKey == "" {
		return nil, ErrEmptyContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	groups := m.doc.GrpoGroups[contextKey]
	out := make([]ComparisonGroup, 0, len(groups))
	for i := len(groups) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, groups[i])
	}
	return out, nil
}

// GetGrpoScores returns each tool's cumulative score for a context. Scores
// from other contexts never leak in.
func (m *Manager) GetGrpoScores(ctx context.Context, contextKey string) (map[string]float64, error) {
	if contextKey == "" {
		return nil, ErrEmptyContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	out := make(map[string]float64)
	for raw, cum := range m.doc.GrpoScores {
		key, ok := ParseScoreKey(raw)
		if !ok || key.Context != contextKey {
			continue
		}
		out[key.Tool] = cum.Score
	}
	return out, nil
}
