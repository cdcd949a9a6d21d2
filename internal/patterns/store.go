package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/experience"
	"github.com/fyrsmithlabs/toolbank/internal/storage"
)

// collectionPrefix keys the per-type pattern collections.
const collectionPrefix = "patterns" + keySeparator

// LearningLogKey is the storage key of the append-only learning log.
const LearningLogKey = "learning_log"

// DefaultMaxLogEntries caps the learning log; the oldest entries are
// evicted first.
const DefaultMaxLogEntries = 500

// Store persists extracted patterns grouped per experience type and the
// learning log. Writes are synchronous: pattern updates happen once per
// learning round, so there is nothing to coalesce.
type Store struct {
	store  storage.Store
	logger *zap.Logger

	maxLogEntries int

	mu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxLogEntries overrides the learning log cap.
func WithMaxLogEntries(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxLogEntries = n
		}
	}
}

// NewStore creates a pattern store backed by the given document store.
func NewStore(store storage.Store, logger *zap.Logger, opts ...StoreOption) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Store{
		store:         store,
		logger:        logger,
		maxLogEntries: DefaultMaxLogEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UpdatePatterns merges incoming patterns into their per-type persisted
// collections and writes one updated collection per type touched.
//
// A pattern new to its collection starts its lifecycle: firstSeen is set to
// the extraction time and all counters start at zero. A pattern already
// present is replaced in place except for firstSeen, with updateCount
// incremented and the success/failure streaks advanced by comparing the new
// confidence against the previous one.
func (s *Store) UpdatePatterns(ctx context.Context, incoming []Pattern) error {
	if len(incoming) == 0 {
		return nil
	}

	byType := make(map[experience.Type][]Pattern)
	for _, p := range incoming {
		byType[p.Type] = append(byType[p.Type], p)
	}

	types := make([]experience.Type, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range types {
		coll, err := s.loadCollectionLocked(ctx, t)
		if err != nil {
			return err
		}
		for _, p := range byType[t] {
			key := p.Key.String()
			coll[key] = mergePattern(coll[key], p)
		}
		if err := s.writeCollectionLocked(ctx, t, coll); err != nil {
			return err
		}
		s.logger.Debug("updated pattern collection",
			zap.String("type", string(t)),
			zap.Int("incoming", len(byType[t])),
			zap.Int("total", len(coll)),
		)
	}
	return nil
}

// mergePattern folds a fresh extraction into the stored pattern for the
// same key. A zero-valued prev (no stored pattern) starts the lifecycle.
func mergePattern(prev Pattern, next Pattern) Pattern {
	if prev.UpdateCount == 0 && prev.FirstSeen.IsZero() {
		next.FirstSeen = next.ExtractedAt
		next.ConsecutiveSuccesses = 0
		next.ConsecutiveFailures = 0
		next.UpdateCount = 0
		return next
	}

	next.FirstSeen = prev.FirstSeen
	next.UpdateCount = prev.UpdateCount + 1
	switch {
	case next.Confidence > prev.Confidence:
		next.ConsecutiveSuccesses = prev.ConsecutiveSuccesses + 1
		next.ConsecutiveFailures = 0
	case next.Confidence < prev.Confidence:
		next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		next.ConsecutiveSuccesses = 0
	default:
		next.ConsecutiveSuccesses = prev.ConsecutiveSuccesses
		next.ConsecutiveFailures = prev.ConsecutiveFailures
	}
	return next
}

// Patterns returns the stored patterns for one experience type, highest
// confidence first.
func (s *Store) Patterns(ctx context.Context, t experience.Type) ([]Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.loadCollectionLocked(ctx, t)
	if err != nil {
		return nil, err
	}
	out := make([]Pattern, 0, len(coll))
	for _, p := range coll {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

// Get returns the stored pattern for a key, if present.
func (s *Store) Get(ctx context.Context, key Key) (Pattern, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.loadCollectionLocked(ctx, key.Type)
	if err != nil {
		return Pattern{}, false, err
	}
	p, ok := coll[key.String()]
	return p, ok, nil
}

// CountByType returns the number of stored patterns per experience type.
func (s *Store) CountByType(ctx context.Context) (map[experience.Type]int, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pattern collections: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[experience.Type]int)
	for _, key := range keys {
		if !strings.HasPrefix(key, collectionPrefix) {
			continue
		}
		t := experience.Type(strings.TrimPrefix(key, collectionPrefix))
		coll, err := s.loadCollectionLocked(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = len(coll)
	}
	return out, nil
}

// AppendLearningEntry appends one entry to the learning log, evicting the
// oldest entries past the cap.
func (s *Store) AppendLearningEntry(ctx context.Context, entry LearningEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLogLocked(ctx)
	if err != nil {
		return err
	}
	log = append(log, entry)
	if len(log) > s.maxLogEntries {
		log = log[len(log)-s.maxLogEntries:]
	}

	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode learning log: %w", err)
	}
	if err := s.store.Write(ctx, LearningLogKey, data); err != nil {
		return fmt.Errorf("failed to write learning log: %w", err)
	}
	return nil
}

// RecentLearning returns the last n learning log entries, newest first.
// n <= 0 returns the whole log.
func (s *Store) RecentLearning(ctx context.Context, n int) ([]LearningEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadLogLocked(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(log) {
		n = len(log)
	}
	out := make([]LearningEntry, 0, n)
	for i := len(log) - 1; i >= len(log)-n; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

func collectionKey(t experience.Type) string {
	return collectionPrefix + string(t)
}

// loadCollectionLocked reads one per-type collection. Missing or corrupt
// documents fall back to an empty collection.
func (s *Store) loadCollectionLocked(ctx context.Context, t experience.Type) (map[string]Pattern, error) {
	data, ok, err := s.store.Read(ctx, collectionKey(t))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s pattern collection: %w", t, err)
	}
	coll := make(map[string]Pattern)
	if !ok {
		return coll, nil
	}
	if err := json.Unmarshal(data, &coll); err != nil {
		s.logger.Warn("corrupt pattern collection, starting empty",
			zap.String("type", string(t)), zap.Error(err))
		return make(map[string]Pattern), nil
	}
	return coll, nil
}

func (s *Store) writeCollectionLocked(ctx context.Context, t experience.Type, coll map[string]Pattern) error {
	data, err := json.Marshal(coll)
	if err != nil {
		return fmt.Errorf("failed to encode %s pattern collection: %w", t, err)
	}
	if err := s.store.Write(ctx, collectionKey(t), data); err != nil {
		return fmt.Errorf("failed to write %s pattern collection: %w", t, err)
	}
	return nil
}

func (s *Store) loadLogLocked(ctx context.Context) ([]LearningEntry, error) {
	data, ok, err := s.store.Read(ctx, LearningLogKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read learning log: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var log []LearningEntry
	if err := json.Unmarshal(data, &log); err != nil {
		s.logger.Warn("corrupt learning log, starting empty", zap.Error(err))
		return nil, nil
	}
	return log, nil
}
