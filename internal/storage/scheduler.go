package storage

import (
	"context"
	"sync"
	"time"
)

// WriteScheduler coalesces mutations into one deferred write.
//
// Mutating callers invoke MarkDirty; the first mark arms a timer that fires
// the write callback once after the configured delay, so a burst of
// mutations costs a single write. Flush cancels the timer and writes
// synchronously. A failure from the deferred timer path is recorded and
// surfaced to the next Flush caller instead of being dropped.
//
// The write callback runs without the scheduler lock held, so it may take
// its owner's lock; it must not call back into the scheduler. A mutation
// marked while a write is in flight stays dirty: each flush clears only the
// generation of changes it observed before writing.
type WriteScheduler struct {
	delay time.Duration
	write func(context.Context) error

	mu    sync.Mutex
	timer *time.Timer
	dirty bool
	gen   uint64
	err   error
}

// NewWriteScheduler creates a scheduler that invokes write after delay once
// MarkDirty has been called.
func NewWriteScheduler(delay time.Duration, write func(context.Context) error) *WriteScheduler {
	return &WriteScheduler{delay: delay, write: write}
}

// MarkDirty records an unflushed mutation and arms the deferred write timer
// if it is not already pending.
func (s *WriteScheduler) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	s.gen++
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.deferredFlush)
	}
}

// Dirty reports whether unflushed mutations are pending.
func (s *WriteScheduler) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush cancels any pending timer and writes synchronously if dirty. An
// error recorded by an earlier deferred write is surfaced here even when
// nothing is dirty anymore.
func (s *WriteScheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.dirty {
		err := s.err
		s.err = nil
		s.mu.Unlock()
		return err
	}
	observed := s.gen
	s.mu.Unlock()

	err := s.write(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = err
		return err
	}
	// Only clear the dirty state this write observed; a mutation that
	// landed mid-write stays pending for the next flush.
	if s.gen == observed {
		s.dirty = false
	}
	s.err = nil
	return nil
}

// Reset drops the dirty flag, any recorded error, and the pending timer
// without writing. Used when the owner discards its cache.
func (s *WriteScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dirty = false
	s.err = nil
}

// deferredFlush is the timer callback. It keeps the dirty flag set on
// failure so the next explicit Flush retries, and never panics the timer
// goroutine.
func (s *WriteScheduler) deferredFlush() {
	s.mu.Lock()
	s.timer = nil
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	observed := s.gen
	s.mu.Unlock()

	err := s.write(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = err
		return
	}
	if s.gen == observed {
		s.dirty = false
	}
	s.err = nil
}
