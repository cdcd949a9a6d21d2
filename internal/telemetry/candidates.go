package telemetry

import (
	"context"
	"sort"
)

// Candidate blending thresholds.
const (
	// blendGrpoWeight and blendToolformerWeight combine the two signals
	// when both have enough data.
	blendGrpoWeight       = 0.6
	blendToolformerWeight = 0.4

	// minGrpoComparisons is the minimum comparison count for the GRPO
	// signal to participate in blending.
	minGrpoComparisons = 2

	// coldStartFloor keeps cold-start candidates above zero so they can
	// still be explored.
	coldStartFloor = 0.1
)

// Candidate is one blended tool recommendation.
type Candidate struct {
	Tool              string  `json:"tool"`
	CombinedScore     float64 `json:"combinedScore"`
	ToolformerScore   float64 `json:"toolformerScore"`
	GrpoScore         float64 `json:"grpoScore"`
	ToolformerSamples int     `json:"toolformerSamples"`
	GrpoComparisons   int     `json:"grpoComparisons"`

	// Borrowed is true when the toolformer signal came from related
	// contexts, discounted.
	Borrowed bool `json:"borrowed,omitempty"`
}

// SuggestToolCandidates merges the decay-weighted usage signal and the
// cumulative group-comparison signal into one ranked candidate list.
//
// Blending applies the first matching rule:
//  1. Both signals have enough data: 0.6*grpo + 0.4*toolformer.
//  2. Only GRPO qualifies: grpo alone.
//  3. Only the usage signal qualifies: toolformer alone.
//  4. Cold start: the best available raw signal, floored at 0.1.
//
// When the native context knows fewer tools than requested, tools from
// related contexts join with their highest related score discounted by the
// configured factor before blending.
func (m *Manager) SuggestToolCandidates(ctx context.Context, contextKey string, count int) ([]Candidate, error) {
	if contextKey == "" {
		return nil, ErrEmptyContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	byTool := make(map[string]*Candidate)
	candidate := func(tool string) *Candidate {
		c := byTool[tool]
		if c == nil {
			c = &Candidate{Tool: tool}
			byTool[tool] = c
		}
		return c
	}

	for tool, stat := range m.decayedAveragesLocked(m.doc.Contexts[contextKey]) {
		c := candidate(tool)
		c.ToolformerScore = stat.score
		c.ToolformerSamples = stat.samples
	}

	for raw, cum := range m.doc.GrpoScores {
		key, ok := ParseScoreKey(raw)
		if !ok || key.Context != contextKey {
			continue
		}
		c := candidate(key.Tool)
		c.GrpoScore = cum.Score
		c.GrpoComparisons = cum.Comparisons
	}

	if len(byTool) < count {
		m.borrowRelatedLocked(contextKey, byTool)
	}

	out := make([]Candidate, 0, len(byTool))
	for _, c := range byTool {
		c.CombinedScore = m.blend(c)
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

// blend applies the first matching blending rule.
func (m *Manager) blend(c *Candidate) float64 {
	hasToolformer := c.ToolformerSamples >= m.minSamples
	hasGrpo := c.GrpoComparisons >= minGrpoComparisons

	switch {
	case hasToolformer && hasGrpo:
		return blendGrpoWeight*c.GrpoScore + blendToolformerWeight*c.ToolformerScore
	case hasGrpo:
		return c.GrpoScore
	case hasToolformer:
		return c.ToolformerScore
	}

	// Cold start: take the best raw signal available, floored so the
	// candidate is never scored exactly zero while any data exists.
	best := 0.0
	if c.ToolformerSamples > 0 && c.ToolformerScore > best {
		best = c.ToolformerScore
	}
	if c.GrpoComparisons > 0 && c.GrpoScore > best {
		best = c.GrpoScore
	}
	if best < coldStartFloor {
		best = coldStartFloor
	}
	return best
}

// borrowRelatedLocked adds tools seen in related contexts that the native
// context does not know yet. Each borrowed tool contributes its highest
// related score, discounted.
func (m *Manager) borrowRelatedLocked(contextKey string, byTool map[string]*Candidate) {
	type borrowed struct {
		best    float64
		samples int
	}
	related := make(map[string]*borrowed)

	for key, records := range m.doc.Contexts {
		if !relatedContexts(contextKey, key) {
			continue
		}
		for tool, stat := range m.decayedAveragesLocked(records) {
			if _, native := byTool[tool]; native {
				continue
			}
			b := related[tool]
			if b == nil {
				b = &borrowed{}
				related[tool] = b
			}
			if stat.score > b.best {
				b.best = stat.score
			}
			b.samples += stat.samples
		}
	}

	for tool, b := range related {
		byTool[tool] = &Candidate{
			Tool:              tool,
			ToolformerScore:   b.best * m.relatedDiscount,
			ToolformerSamples: b.samples,
			Borrowed:          true,
		}
	}
}

type decayedStat struct {
	score   float64
	samples int
}

// decayedAveragesLocked computes the decay-weighted average score and sample
// count per tool over a record set.
func (m *Manager) decayedAveragesLocked(records []UsageRecord) map[string]decayedStat {
	type acc struct {
		weighted float64
		weights  float64
		samples  int
	}
	byTool := make(map[string]*acc)
	now := m.now()

	for _, rec := range records {
		a := byTool[rec.Tool]
		if a == nil {
			a = &acc{}
			byTool[rec.Tool] = a
		}
		w := decayWeight(now.Sub(rec.Timestamp), m.halfLife)
		a.weighted += rec.Score * w
		a.weights += w
		a.samples++
	}

	out := make(map[string]decayedStat, len(byTool))
	for tool, a := range byTool {
		if a.weights == 0 {
			continue
		}
		out[tool] = decayedStat{score: a.weighted / a.weights, samples: a.samples}
	}
	return out
}
