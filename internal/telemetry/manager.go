package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/storage"
)

// DocumentKey is the storage key of the telemetry document.
const DocumentKey = "telemetry"

// Default tunables. All are overridable via Manager options.
const (
	// DefaultHalfLife is the decay half-life for usage scores.
	DefaultHalfLife = 7 * 24 * time.Hour

	// MinSamples is the minimum native sample count for a tool to surface
	// in suggestions.
	MinSamples = 3

	// HighConfidenceSamples is the sample count at which a suggestion is
	// labeled high confidence.
	HighConfidenceSamples = 20

	// DefaultMaxRecordsPerContext caps each context's usage bucket.
	DefaultMaxRecordsPerContext = 200

	// DefaultMaxGroupsPerContext caps each context's comparison group list.
	DefaultMaxGroupsPerContext = 50

	// DefaultFlushDelay is how long a mutation waits for more mutations
	// before the coalesced write fires.
	DefaultFlushDelay = 3 * time.Second

	// DefaultRetention is the pruning cutoff for old records and groups.
	DefaultRetention = 90 * 24 * time.Hour

	// DefaultRelatedDiscount is applied to scores borrowed from related
	// contexts by the candidate blender.
	DefaultRelatedDiscount = 0.5
)

// Input validation errors.
var (
	ErrEmptyTool    = errors.New("tool name cannot be empty")
	ErrEmptyContext = errors.New("context key cannot be empty")
)

// Manager owns the cached telemetry document and all operations against it.
//
// The cache is loaded lazily on first use and kept for the process lifetime;
// ClearCache drops it explicitly. Mutations mark the cache dirty and schedule
// one deferred coalesced write; Flush writes synchronously and cancels the
// pending timer.
type Manager struct {
	store  storage.Store
	logger *zap.Logger

	halfLife        time.Duration
	minSamples      int
	highConfidence  int
	maxRecords      int
	maxGroups       int
	flushDelay      time.Duration
	relatedDiscount float64
	now             func() time.Time

	flush *storage.WriteScheduler

	mu  sync.Mutex
	doc *Document
}

// Option configures a Manager.
type Option func(*Manager)

// WithHalfLife sets the decay half-life for usage scores.
func WithHalfLife(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.halfLife = d
		}
	}
}

// WithMinSamples sets the minimum native sample count for a tool to
// surface in suggestions.
func WithMinSamples(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.minSamples = n
		}
	}
}

// WithHighConfidenceSamples sets the sample count at which a suggestion is
// labeled high confidence.
func WithHighConfidenceSamples(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.highConfidence = n
		}
	}
}

// WithMaxRecordsPerContext sets the usage bucket cap.
func WithMaxRecordsPerContext(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRecords = n
		}
	}
}

// WithMaxGroupsPerContext sets the comparison group cap.
func WithMaxGroupsPerContext(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxGroups = n
		}
	}
}

// WithFlushDelay sets how long the deferred flush waits before writing.
func WithFlushDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.flushDelay = d
		}
	}
}

// WithRelatedDiscount sets the discount applied to borrowed candidate scores.
func WithRelatedDiscount(f float64) Option {
	return func(m *Manager) {
		if f > 0 && f <= 1 {
			m.relatedDiscount = f
		}
	}
}

// WithClock overrides the time source. Tests use this to control record ages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a telemetry manager backed by the given document store.
func NewManager(store storage.Store, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	m := &Manager{
		store:           store,
		logger:          logger,
		halfLife:        DefaultHalfLife,
		minSamples:      MinSamples,
		highConfidence:  HighConfidenceSamples,
		maxRecords:      DefaultMaxRecordsPerContext,
		maxGroups:       DefaultMaxGroupsPerContext,
		flushDelay:      DefaultFlushDelay,
		relatedDiscount: DefaultRelatedDiscount,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.flush = storage.NewWriteScheduler(m.flushDelay, m.persist)
	return m, nil
}

// RecordUsage appends one clamped usage observation to the context's bucket,
// evicting the oldest record when the bucket exceeds its cap, and updates the
// tool's running aggregate.
func (m *Manager) RecordUsage(ctx context.Context, tool, contextKey string, score float64, meta *UsageMeta) error {
	if tool == "" {
		return ErrEmptyTool
	}
	if contextKey == "" {
		return ErrEmptyContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	now := m.now()
	rec := UsageRecord{
		Tool:      tool,
		Score:     clamp01(score),
		Timestamp: now,
	}
	if meta != nil {
		rec.Command = meta.Command
		rec.Domain = meta.Domain
	}

	bucket := append(m.doc.Contexts[contextKey], rec)
	if len(bucket) > m.maxRecords {
		bucket = bucket[len(bucket)-m.maxRecords:]
	}
	m.doc.Contexts[contextKey] = bucket

	agg := m.doc.Tools[tool]
	agg.TotalUses++
	agg.TotalScore += rec.Score
	agg.AvgScore = agg.TotalScore / float64(agg.TotalUses)
	agg.LastUsed = now
	m.doc.Tools[tool] = agg

	m.markDirtyLocked()

	m.logger.Debug("recorded tool usage",
		zap.String("tool", tool),
		zap.String("context", contextKey),
		zap.Float64("score", rec.Score),
	)
	return nil
}

// ToolAggregate returns the running aggregate for a tool, if present.
func (m *Manager) ToolAggregate(ctx context.Context, tool string) (ToolAggregate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	agg, ok := m.doc.Tools[tool]
	return agg, ok
}

// Stats summarizes the cached document for operator inspection.
type Stats struct {
	Contexts         int `json:"contexts"`
	UsageRecords     int `json:"usageRecords"`
	ComparisonGroups int `json:"comparisonGroups"`
	CumulativeScores int `json:"cumulativeScores"`
	Tools            int `json:"tools"`
}

// Stats reports collection sizes for the cached document.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	s := Stats{
		Contexts:         len(m.doc.Contexts),
		CumulativeScores: len(m.doc.GrpoScores),
		Tools:            len(m.doc.Tools),
	}
	for _, records := range m.doc.Contexts {
		s.UsageRecords += len(records)
	}
	for _, groups := range m.doc.GrpoGroups {
		s.ComparisonGroups += len(groups)
	}
	return s
}

// Flush cancels any pending deferred write and writes the document
// synchronously if there are unflushed changes. A failure recorded by an
// earlier deferred flush is retried here and surfaced if it persists.
func (m *Manager) Flush(ctx context.Context) error {
	return m.flush.Flush(ctx)
}

// Close flushes pending changes and releases the flush timer.
func (m *Manager) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

// ClearCache drops the in-process cache and any pending deferred write.
// Unflushed mutations are lost; callers flush first when that matters.
func (m *Manager) ClearCache() {
	m.flush.Reset()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = nil
}

// loadLocked ensures the document cache is populated. Missing or corrupt
// backing documents fall back to an empty default; read errors degrade the
// same way because the engine is advisory and must not block its caller.
func (m *Manager) loadLocked(ctx context.Context) {
	if m.doc != nil {
		return
	}
	data, ok, err := m.store.Read(ctx, DocumentKey)
	if err != nil {
		m.logger.Warn("failed to read telemetry document, starting empty", zap.Error(err))
		m.doc = NewDocument()
		return
	}
	if !ok {
		m.doc = NewDocument()
		return
	}
	m.doc = decodeDocument(data)
}

// markDirtyLocked flags unflushed changes on the scheduler. Multiple
// mutations before the deferred timer fires coalesce into one write.
func (m *Manager) markDirtyLocked() {
	m.flush.MarkDirty()
}

// persist is the scheduler's write callback. It runs on the timer goroutine
// or under an explicit Flush, never with the document lock already held.
func (m *Manager) persist(ctx context.Context) error {
	m.mu.Lock()
	doc := m.doc
	var data []byte
	var err error
	if doc != nil {
		data, err = json.Marshal(doc)
	}
	m.mu.Unlock()

	if doc == nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to encode telemetry document: %w", err)
	}
	if err := m.store.Write(ctx, DocumentKey, data); err != nil {
		m.logger.Warn("telemetry flush failed", zap.Error(err))
		return fmt.Errorf("failed to flush telemetry document: %w", err)
	}
	return nil
}
