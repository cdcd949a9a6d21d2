package patterns

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
)

// DefaultExtractionEpsilon is the margin by which a group's best composite
// must beat the group mean before a pattern is extracted. It gates out
// homogeneous groups with no standout performer.
const DefaultExtractionEpsilon = 0.05

// DefaultMinGroupSize is the smallest (type, category) group a learning
// round will score.
const DefaultMinGroupSize = 2

// insufficientDataMessage is returned when a round has too few experiences
// to compare anything.
const insufficientDataMessage = "insufficient data for pattern learning"

// Summary reports the outcome of one learning round.
type Summary struct {
	ExperienceCount   int
	PatternsExtracted int
	Patterns          []Pattern
	Message           string
}

// Learner runs batch learning rounds over collected experiences.
type Learner struct {
	experiences *experience.Store
	patterns    *Store
	logger      *zap.Logger

	epsilon      float64
	minGroupSize int
	now          func() time.Time
}

// LearnerOption configures a Learner.
type LearnerOption func(*Learner)

// WithExtractionEpsilon overrides the pattern acceptance margin.
func WithExtractionEpsilon(eps float64) LearnerOption {
	return func(l *Learner) {
		if eps > 0 {
			l.epsilon = eps
		}
	}
}

// WithMinGroupSize overrides the smallest scorable group size.
func WithMinGroupSize(n int) LearnerOption {
	return func(l *Learner) {
		if n >= 2 {
			l.minGroupSize = n
		}
	}
}

// WithLearnerClock overrides the time source for tests.
func WithLearnerClock(now func() time.Time) LearnerOption {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLearner creates a batch learner over the given experience and pattern
// stores.
func NewLearner(experiences *experience.Store, patterns *Store, logger *zap.Logger, opts ...LearnerOption) (*Learner, error) {
	if experiences == nil {
		return nil, fmt.Errorf("experience store cannot be nil")
	}
	if patterns == nil {
		return nil, fmt.Errorf("pattern store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	l := &Learner{
		experiences:  experiences,
		patterns:     patterns,
		logger:       logger,
		epsilon:      DefaultExtractionEpsilon,
		minGroupSize: DefaultMinGroupSize,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Learn runs one learning round. With no experiences supplied it learns
// from the whole stored collection. Extracted patterns are merged into the
// pattern store, and every round appends one learning log entry whether or
// not it extracted anything.
func (l *Learner) Learn(ctx context.Context, exps ...experience.Experience) (*Summary, error) {
	if len(exps) == 0 {
		var err error
		exps, err = l.experiences.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load experiences: %w", err)
		}
	}

	summary := &Summary{ExperienceCount: len(exps)}
	if len(exps) < 2 {
		summary.Message = insufficientDataMessage
		if err := l.appendLog(ctx, summary); err != nil {
			return nil, err
		}
		return summary, nil
	}

	groups := make(map[Key][]experience.Experience)
	for _, exp := range exps {
		key := Key{Type: exp.Type, Category: exp.Category}
		groups[key] = append(groups[key], exp)
	}

	keys := make([]Key, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	extractedAt := l.now()
	for _, key := range keys {
		if p, ok := l.extractPattern(key, groups[key], extractedAt); ok {
			summary.Patterns = append(summary.Patterns, p)
		}
	}
	summary.PatternsExtracted = len(summary.Patterns)
	summary.Message = fmt.Sprintf("extracted %d patterns from %d experiences",
		summary.PatternsExtracted, summary.ExperienceCount)

	if len(summary.Patterns) > 0 {
		if err := l.patterns.UpdatePatterns(ctx, summary.Patterns); err != nil {
			return nil, err
		}
	}
	if err := l.appendLog(ctx, summary); err != nil {
		return nil, err
	}

	l.logger.Info("learning round complete",
		zap.Int("experiences", summary.ExperienceCount),
		zap.Int("patterns", summary.PatternsExtracted),
	)
	return summary, nil
}

// extractPattern scores one (type, category) group and extracts a pattern
// only when its best composite beats the group mean by more than the
// acceptance epsilon. Ties on the best composite keep the earliest
// experience.
func (l *Learner) extractPattern(key Key, group []experience.Experience, extractedAt time.Time) (Pattern, bool) {
	if len(group) < l.minGroupSize {
		return Pattern{}, false
	}

	best := 0
	sum := 0.0
	composites := make([]float64, len(group))
	for i, exp := range group {
		composites[i] = scoreExperience(exp)
		sum += composites[i]
		if composites[i] > composites[best] {
			best = i
		}
	}
	mean := sum / float64(len(group))
	if composites[best] <= mean+l.epsilon {
		return Pattern{}, false
	}

	winner := group[best]
	return Pattern{
		Key:           key,
		Type:          key.Type,
		Category:      key.Category,
		Confidence:    composites[best],
		BestComposite: composites[best],
		GroupMean:     mean,
		SampleSize:    len(group),
		Insight:       insightFor(winner),
		BestData:      winner.Data,
		ExtractedAt:   extractedAt,
	}, true
}

// insightFor renders the short templated sentence describing the winning
// experience.
func insightFor(exp experience.Experience) string {
	switch d := exp.Data.(type) {
	case experience.ToolData:
		return fmt.Sprintf("Tool %s leads its group with a %.0f%% success rate over %d calls",
			d.Tool, d.SuccessRate*100, d.Calls)
	case experience.SuccessData:
		return fmt.Sprintf("Task type %s completes most reliably, averaging %.0fms",
			d.TaskType, d.DurationMs)
	case experience.TeamData:
		return fmt.Sprintf("Team pattern %s performs best at size %d with a %.0f%% success rate",
			d.Pattern, d.Size, d.SuccessRate*100)
	case experience.ErrorData:
		return fmt.Sprintf("Errors in category %s are the most tractable of their group",
			exp.Category)
	default:
		return fmt.Sprintf("Category %s has a standout performer", exp.Category)
	}
}

func (l *Learner) appendLog(ctx context.Context, summary *Summary) error {
	entry := LearningEntry{
		Timestamp:         l.now(),
		ExperienceCount:   summary.ExperienceCount,
		PatternsExtracted: summary.PatternsExtracted,
	}
	if err := l.patterns.AppendLearningEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to append learning log entry: %w", err)
	}
	return nil
}
