package experience

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/storage"
)

// DocumentKey is the storage key of the experience collection.
const DocumentKey = "experiences"

// DefaultMaxExperiences caps the stored collection; the oldest entries are
// evicted first.
const DefaultMaxExperiences = 1000

// DefaultFlushDelay matches the telemetry store's deferred write delay.
const DefaultFlushDelay = 3 * time.Second

// Store keeps the most recent experiences in a capped FIFO collection
// backed by one JSON document.
type Store struct {
	store  storage.Store
	logger *zap.Logger

	maxEntries int
	flushDelay time.Duration
	now        func() time.Time
	flush      *storage.WriteScheduler

	mu     sync.Mutex
	cache  []Experience
	loaded bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxExperiences overrides the collection cap.
func WithMaxExperiences(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithFlushDelay overrides the deferred write delay.
func WithFlushDelay(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.flushDelay = d
		}
	}
}

// WithStoreClock overrides the time source for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an experience store backed by the given document store.
func NewStore(store storage.Store, logger *zap.Logger, opts ...StoreOption) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Store{
		store:      store,
		logger:     logger,
		maxEntries: DefaultMaxExperiences,
		flushDelay: DefaultFlushDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.flush = storage.NewWriteScheduler(s.flushDelay, s.persist)
	return s, nil
}

// Add appends experiences to the collection, evicting the oldest entries
// past the cap, and schedules a deferred write.
func (s *Store) Add(ctx context.Context, experiences ...Experience) error {
	if len(experiences) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)

	s.cache = append(s.cache, experiences...)
	if len(s.cache) > s.maxEntries {
		s.cache = s.cache[len(s.cache)-s.maxEntries:]
	}
	s.flush.MarkDirty()

	s.logger.Debug("stored experiences",
		zap.Int("added", len(experiences)),
		zap.Int("total", len(s.cache)),
	)
	return nil
}

// List returns a copy of the stored experiences, oldest first.
func (s *Store) List(ctx context.Context) ([]Experience, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)

	out := make([]Experience, len(s.cache))
	copy(out, s.cache)
	return out, nil
}

// Count returns the number of stored experiences.
func (s *Store) Count(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return len(s.cache)
}

// PruneOld removes experiences older than maxAge and returns the count
// removed. Nothing is written when the count is zero.
func (s *Store) PruneOld(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)

	cutoff := s.now().Add(-maxAge)
	kept := s.cache[:0]
	removed := 0
	for _, exp := range s.cache {
		if exp.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, exp)
	}
	s.cache = kept

	if removed > 0 {
		s.flush.MarkDirty()
		s.logger.Info("pruned stale experiences", zap.Int("removed", removed))
	}
	return removed, nil
}

// Flush cancels any pending deferred write and writes synchronously.
func (s *Store) Flush(ctx context.Context) error {
	return s.flush.Flush(ctx)
}

// Close flushes pending changes.
func (s *Store) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// ClearCache drops the in-process cache and any pending deferred write.
func (s *Store) ClearCache() {
	s.flush.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.loaded = false
}

// loadLocked populates the cache from the backing document. Missing or
// corrupt documents fall back to an empty collection.
func (s *Store) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true

	data, ok, err := s.store.Read(ctx, DocumentKey)
	if err != nil {
		s.logger.Warn("failed to read experience collection, starting empty", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var cache []Experience
	if err := json.Unmarshal(data, &cache); err != nil {
		s.logger.Warn("corrupt experience collection, starting empty", zap.Error(err))
		return
	}
	s.cache = cache
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	data, err := json.Marshal(s.cache)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to encode experience collection: %w", err)
	}
	if err := s.store.Write(ctx, DocumentKey, data); err != nil {
		s.logger.Warn("experience flush failed", zap.Error(err))
		return fmt.Errorf("failed to flush experience collection: %w", err)
	}
	return nil
}
