package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Missing key is a clean miss.
	_, ok, err := store.GetItem(ctx, "test:price:NONE")
	require.NoError(t, err)
	assert.False(t, ok)

	// Round trip and overwrite.
	require.NoError(t, store.SetItem(ctx, "test:price:RELIANCE", "2500"))
	require.NoError(t, store.SetItem(ctx, "test:price:RELIANCE", "2510"))

	value, ok, err := store.GetItem(ctx, "test:price:RELIANCE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2510", value)

	// Prefix listing only sees matching keys.
	require.NoError(t, store.SetItem(ctx, "test:asset:1", "{}"))
	require.NoError(t, store.SetItem(ctx, "other:asset:2", "{}"))

	keys, err := store.Keys(ctx, "test:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"test:asset:1", "test:price:RELIANCE"}, keys)

	// Removing a missing key is not an error.
	require.NoError(t, store.RemoveItem(ctx, "test:price:NONE"))

	require.NoError(t, store.RemoveAll(ctx, keys))
	remaining, err := store.Keys(ctx, "test:")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Keys outside the prefix survive RemoveAll.
	_, ok, err = store.GetItem(ctx, "other:asset:2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), quietLogger())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, "test:meta:last_successful_update", "2024-03-12T10:00:00Z"))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir, quietLogger())
	require.NoError(t, err)
	value, ok, err := reopened.GetItem(ctx, "test:meta:last_successful_update")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03-12T10:00:00Z", value)
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SetItem(ctx, "test:asset:1", "{}"))

	// A stray file that does not decode to a key is skipped, not fatal.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-base64!.json"), []byte("junk"), 0o644))

	keys, err := store.Keys(ctx, "test:")
	require.NoError(t, err)
	assert.Equal(t, []string{"test:asset:1"}, keys)
}
