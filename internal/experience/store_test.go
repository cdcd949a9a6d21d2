package experience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/toolbank/internal/storage"
)

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *storage.MemStore) {
	t.Helper()
	mem := storage.NewMemStore()
	opts = append([]StoreOption{WithFlushDelay(time.Hour)}, opts...)
	s, err := NewStore(mem, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, mem
}

func sampleExperience(id string, ts time.Time) Experience {
	return Experience{
		ID:        id,
		Type:      TypeTool,
		Category:  "Read",
		Data:      ToolData{Tool: "Read", Calls: 1, Successes: 1},
		Timestamp: ts,
	}
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewStore(storage.NewMemStore(), nil)
	assert.Error(t, err)
}

func TestAdd_AndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, s.Add(ctx, sampleExperience("a", now), sampleExperience("b", now)))
	require.NoError(t, s.Add(ctx, sampleExperience("c", now)))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, 3, s.Count(ctx))

	// List hands out a copy.
	got[0].ID = "mutated"
	again, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].ID)
}

func TestAdd_EvictsOldestPastCap(t *testing.T) {
	s, _ := newTestStore(t, WithMaxExperiences(5))
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 8; i++ {
		require.NoError(t, s.Add(ctx, sampleExperience(fmt.Sprintf("e%d", i), now)))
	}

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "e3", got[0].ID)
	assert.Equal(t, "e7", got[4].ID)
}

func TestFlush_CoalescesWrites(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Add(ctx, sampleExperience(fmt.Sprintf("e%d", i), now)))
	}
	assert.Equal(t, 0, mem.Writes)

	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, mem.Writes)

	// Clean flush writes nothing.
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, mem.Writes)
}

func TestStore_RoundTripThroughBackingStore(t *testing.T) {
	mem := storage.NewMemStore()
	ctx := context.Background()

	s, err := NewStore(mem, zap.NewNop(), WithFlushDelay(time.Hour))
	require.NoError(t, err)
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Add(ctx, sampleExperience("a", ts)))
	require.NoError(t, s.Close(ctx))

	s2, err := NewStore(mem, zap.NewNop(), WithFlushDelay(time.Hour))
	require.NoError(t, err)
	got, err := s2.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, ToolData{Tool: "Read", Calls: 1, Successes: 1}, got[0].Data)
}

func TestPruneOld(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s, mem := newTestStore(t, WithStoreClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		sampleExperience("stale1", now.Add(-100*24*time.Hour)),
		sampleExperience("stale2", now.Add(-91*24*time.Hour)),
		sampleExperience("fresh", now.Add(-time.Hour)),
	))

	removed, err := s.PruneOld(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)

	// Second prune removes nothing and schedules no write.
	require.NoError(t, s.Flush(ctx))
	writes := mem.Writes
	removed, err = s.PruneOld(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, writes, mem.Writes)
}

func TestPruneOld_NonPositiveAgeIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, sampleExperience("a", time.Now().Add(-time.Hour))))

	removed, err := s.PruneOld(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, s.Count(ctx))
}

func TestLoad_CorruptDocumentStartsEmpty(t *testing.T) {
	mem := storage.NewMemStore()
	ctx := context.Background()
	require.NoError(t, mem.Write(ctx, DocumentKey, []byte("{not json")))

	s, err := NewStore(mem, zap.NewNop(), WithFlushDelay(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, s.Count(ctx))
}

func TestClearCache_DiscardsPendingChanges(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, sampleExperience("a", time.Now())))
	s.ClearCache()

	require.NoError(t, s.Flush(ctx))
	assert.Zero(t, mem.Writes)
	assert.Zero(t, s.Count(ctx))
}
