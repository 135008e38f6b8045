package cachefs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) (*Cache, *store.Store) {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	root := t.TempDir()

	const (
		smallFileThreshold = 32 << 20
		chunkSize          = 8 << 20
		maxBytes           = 1 << 30
	)

	return New(root, s, testLogger(), smallFileThreshold, chunkSize, maxBytes), s
}

func seedObject(t *testing.T, s *store.Store) string {
	t.Helper()

	id := uuid.NewString()
	o := &store.Object{ID: id, Type: store.TypeFile, Name: id + ".bin", Origin: store.OriginLocal, SyncState: store.StatePendingPush}
	require.NoError(t, s.CreateLocalObject(context.Background(), o))

	return id
}

func TestIsSparseThreshold(t *testing.T) {
	c, _ := newTestCache(t)

	assert.False(t, c.IsSparse(1<<20))
	assert.True(t, c.IsSparse(64<<20))
}

func TestReserveCreatesSparseFile(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	id := seedObject(t, s)

	require.NoError(t, c.Reserve(ctx, id, 20<<20, true))

	info, err := os.Stat(c.PathFor(id))
	require.NoError(t, err)
	assert.Equal(t, int64(20<<20), info.Size())

	entry, err := s.GetCacheEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.PresentSparse, entry.PresentLocally)
}

func TestHasRangeReportsMissingChunks(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	id := seedObject(t, s)

	size := int64(20 << 20) // ~3 chunks at 8 MiB
	require.NoError(t, c.Reserve(ctx, id, size, true))

	missing, err := c.HasRange(ctx, id, 0, size)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, missing)

	require.NoError(t, c.WriteChunk(ctx, id, 1, make([]byte, 8<<20)))

	missing, err = c.HasRange(ctx, id, 0, size)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, missing)
}

func TestWriteChunkPromotesToFullWhenComplete(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	id := seedObject(t, s)

	size := int64(16 << 20) // exactly 2 chunks
	require.NoError(t, c.Reserve(ctx, id, size, true))

	require.NoError(t, c.WriteChunk(ctx, id, 0, make([]byte, 8<<20)))

	entry, err := s.GetCacheEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.PresentSparse, entry.PresentLocally)

	require.NoError(t, c.WriteChunk(ctx, id, 1, make([]byte, 8<<20)))

	entry, err = s.GetCacheEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.PresentFull, entry.PresentLocally)

	chunks, err := s.ListPresentChunks(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, chunks, "chunk rows must be purged after promotion")
}

func TestCommitFullDownloadRenamesPartFile(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	id := seedObject(t, s)

	part, err := c.ReserveFullDownload(id)
	require.NoError(t, err)

	_, err = part.WriteString("hello world")
	require.NoError(t, err)
	require.NoError(t, part.Close())

	require.NoError(t, c.CommitFullDownload(ctx, id, 11, "deadbeef"))

	_, err = os.Stat(c.PathFor(id))
	require.NoError(t, err)

	_, err = os.Stat(c.PathFor(id) + ".part")
	assert.True(t, os.IsNotExist(err))

	entry, err := s.GetCacheEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.PresentFull, entry.PresentLocally)
}

func TestSweepPartFilesRemovesOrphans(t *testing.T) {
	c, _ := newTestCache(t)

	require.NoError(t, os.MkdirAll(c.root, 0o755))

	stalePath := filepath.Join(c.root, "abc.part")
	require.NoError(t, os.WriteFile(stalePath, []byte("partial"), 0o644))

	n, err := c.SweepPartFiles()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(stalePath)
	assert.True(t, os.IsNotExist(err))
}

func TestPrepareUploadCreatesSymlinkNotRename(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()
	id := seedObject(t, s)

	require.NoError(t, c.Reserve(ctx, id, 4, false))
	require.NoError(t, os.WriteFile(c.PathFor(id), []byte("data"), 0o644))

	link, cleanup, err := c.PrepareUpload(id, "photo.jpg")
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "photo.jpg", filepath.Base(link)[len(id)+1:])

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, c.PathFor(id), target)

	_, err = os.Stat(c.PathFor(id))
	require.NoError(t, err, "the underlying cache file must not have been moved")
}

func TestEvictIfNeededRemovesOldestUnpinnedFirst(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	c.maxBytes = 10

	old := seedObject(t, s)
	newer := seedObject(t, s)

	require.NoError(t, c.Reserve(ctx, old, 6, false))
	require.NoError(t, c.Reserve(ctx, newer, 6, false))

	oldEntry, err := s.GetCacheEntry(ctx, old)
	require.NoError(t, err)
	oldEntry.LastAccessed = 1
	require.NoError(t, s.UpsertCacheEntry(ctx, oldEntry))

	newEntry, err := s.GetCacheEntry(ctx, newer)
	require.NoError(t, err)
	newEntry.LastAccessed = 2
	require.NoError(t, s.UpsertCacheEntry(ctx, newEntry))

	result, err := c.EvictIfNeeded(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.EntriesRemoved, 1)

	_, err = os.Stat(c.PathFor(old))
	assert.True(t, os.IsNotExist(err), "oldest entry should be evicted first")
}

func TestEvictIfNeededSkipsPinned(t *testing.T) {
	c, s := newTestCache(t)
	ctx := context.Background()

	c.maxBytes = 1

	id := seedObject(t, s)
	require.NoError(t, c.Reserve(ctx, id, 6, false))
	require.NoError(t, s.SetPinned(ctx, id, true))

	_, err := c.EvictIfNeeded(ctx)
	require.NoError(t, err)

	_, err = os.Stat(c.PathFor(id))
	assert.NoError(t, err, "pinned entry must survive eviction")
}
