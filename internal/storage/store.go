package storage

import (
	"context"
	"errors"
	"sync"
)

// Common errors for storage operations.
var (
	// ErrEmptyKey is returned when a document key is empty.
	ErrEmptyKey = errors.New("document key cannot be empty")

	// ErrStoreClosed is returned when an operation is attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Store is the contract the engine consumes from its backing document store.
//
// Read returns the raw document and ok=true when the key exists. A missing
// key returns ok=false with a nil error; callers substitute an empty default.
// Write replaces the document for the key.
type Store interface {
	Read(ctx context.Context, key string) (data []byte, ok bool, err error)
	Write(ctx context.Context, key string, data []byte) error

	// Keys lists all document keys currently present.
	Keys(ctx context.Context) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// MemStore is an in-memory Store implementation for testing.
type MemStore struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	closed bool

	// WriteErr, when set, is returned from every Write. Tests use it to
	// simulate disk failures.
	WriteErr error

	// Writes counts successful Write calls, for asserting flush coalescing.
	Writes int

	attempts int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

// Read returns the stored document, or ok=false if absent.
func (s *MemStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	data, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Write stores a copy of the document under key.
func (s *MemStore) Write(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	s.attempts++
	if s.WriteErr != nil {
		return s.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.docs[key] = cp
	s.Writes++
	return nil
}

// WriteAttempts returns the number of Write calls, including failed ones.
func (s *MemStore) WriteAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Keys lists all stored document keys.
func (s *MemStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close marks the store closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
