package logdisk

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cihealth/internal/domain/port/driven"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(t.TempDir(), logger)
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	raw := []byte("line one\nline two\nError: boom\n")
	locator, err := store.Store(ctx, "acme", "widgets", 9001, 501, raw)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("acme_widgets", "9001", "501.log.gz"), locator)

	got, err := store.Read(ctx, locator, 0)
	require.NoError(t, err)
	assert.Equal(t, string(raw), got)
}

func TestStore_ReadHonorsMaxBytes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	locator, err := store.Store(ctx, "acme", "widgets", 9001, 501, []byte("0123456789"))
	require.NoError(t, err)

	got, err := store.Read(ctx, locator, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", got)
}

func TestStore_ReadMissingLog(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read(context.Background(), filepath.Join("acme_widgets", "1", "2.log.gz"), 0)
	assert.ErrorIs(t, err, driven.ErrLogNotFound)
}

func TestStore_ReadReplacesInvalidUTF8(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	locator, err := store.Store(ctx, "acme", "widgets", 9001, 501, []byte{'o', 'k', 0xff, 0xfe, '!'})
	require.NoError(t, err)

	got, err := store.Read(ctx, locator, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok��!", got)
}

func TestStore_StoreOverwritesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, "acme", "widgets", 9001, 501, []byte("first"))
	require.NoError(t, err)
	locator, err := store.Store(ctx, "acme", "widgets", 9001, 501, []byte("second"))
	require.NoError(t, err)

	got, err := store.Read(ctx, locator, 0)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestStore_SanitizesPathComponents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	locator, err := store.Store(ctx, "a/b", "..", 1, 2, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("a-b_-", "1", "2.log.gz"), locator)
}

func TestStore_SweepRemovesOldLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldLoc, err := store.Store(ctx, "acme", "widgets", 1, 10, []byte("old"))
	require.NoError(t, err)
	newLoc, err := store.Store(ctx, "acme", "widgets", 2, 20, []byte("new"))
	require.NoError(t, err)

	// Age the first file past the cutoff.
	oldAbs := filepath.Join(store.root, oldLoc)
	past := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldAbs, past, past))

	removed, err := store.Sweep(time.Now().Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Read(ctx, oldLoc, 0)
	assert.ErrorIs(t, err, driven.ErrLogNotFound)

	got, err := store.Read(ctx, newLoc, 0)
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	// The emptied run directory is pruned.
	_, err = os.Stat(filepath.Dir(oldAbs))
	assert.True(t, os.IsNotExist(err))

	// A second pass with nothing newly expired removes nothing.
	removed, err = store.Sweep(time.Now().Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	got, err = store.Read(ctx, newLoc, 0)
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestStore_SweepMissingRoot(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(filepath.Join(t.TempDir(), "never-created"), logger)

	removed, err := store.Sweep(time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
