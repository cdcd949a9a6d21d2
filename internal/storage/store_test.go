package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_RoundTrip(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, ok, err := s.Read(ctx, "telemetry")
	require.NoError(t, err)
	assert.False(t, ok, "missing document should report ok=false, not an error")

	require.NoError(t, s.Write(ctx, "telemetry", []byte(`{"version":2}`)))

	data, ok, err := s.Read(ctx, "telemetry")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"version":2}`, string(data))
}

func TestMemStore_EmptyKey(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	err := s.Write(ctx, "", []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = s.Read(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestMemStore_WriteErr(t *testing.T) {
	s := NewMemStore()
	s.WriteErr = assert.AnError

	err := s.Write(context.Background(), "telemetry", []byte("{}"))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, s.Writes)
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := s.Read(ctx, "experiences")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "experiences", []byte(`[]`)))

	data, ok, err := s.Read(ctx, "experiences")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(data))
}

func TestFileStore_CompositeKeyMapping(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "patterns::tool", []byte(`{}`)))

	// Composite keys must not produce path separators on disk.
	_, err = os.Stat(filepath.Join(dir, "patterns__tool.json"))
	require.NoError(t, err)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "patterns::tool")
}

func TestFileStore_OverwriteReplacesDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "learning_log", []byte(`[1]`)))
	require.NoError(t, s.Write(ctx, "learning_log", []byte(`[1,2]`)))

	data, ok, err := s.Read(ctx, "learning_log")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(data))

	// One file per key, no leftover temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "toolbank.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Read(ctx, "telemetry")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "telemetry", []byte(`{"version":2}`)))
	require.NoError(t, s.Write(ctx, "telemetry", []byte(`{"version":3}`)))

	data, ok, err := s.Read(ctx, "telemetry")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"version":3}`, string(data))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"telemetry"}, keys)
}
