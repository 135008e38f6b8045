// Package cachefs implements the Cache Layer (spec.md section 4.2): mapping
// object IDs to content files under a cache root, with sparse allocation
// for large files, atomic promotion, atomic swap-in for full downloads, the
// symlink upload-naming trick, and LRU eviction with hole-punching.
package cachefs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/orchardfs/orchard/internal/store"
)

// Cache maps object IDs to local cache files and keeps the Store's
// cache_entries/chunks tables consistent with what is actually on disk.
type Cache struct {
	root               string
	store              *store.Store
	logger             *slog.Logger
	smallFileThreshold int64
	chunkSize          int64
	maxBytes           int64
	broadcaster        chunkBroadcaster
}

// New creates a Cache rooted at root. smallFileThreshold is the boundary
// (spec.md section 4.2 default 32 MiB) below which files are always cached
// whole; chunkSize is the sparse-file block size (default 8 MiB); maxBytes
// is the eviction ceiling.
func New(root string, s *store.Store, logger *slog.Logger, smallFileThreshold, chunkSize, maxBytes int64) *Cache {
	return &Cache{
		root: root, store: s, logger: logger,
		smallFileThreshold: smallFileThreshold, chunkSize: chunkSize, maxBytes: maxBytes,
	}
}

// PathFor returns the on-disk cache path for objectID. Cache files are
// named by object ID directly (spec.md section 6: "cache directory with
// files named by object ID").
func (c *Cache) PathFor(objectID string) string {
	return filepath.Join(c.root, objectID)
}

func (c *Cache) partPathFor(objectID string) string {
	return c.PathFor(objectID) + ".part"
}

// IsSparse reports whether a file of the given size should be cached as a
// sparse, chunked entry rather than downloaded whole (spec.md section 4.2:
// files at or above SMALL_FILE_THRESHOLD use sparse caching).
func (c *Cache) IsSparse(size int64) bool {
	return size >= c.smallFileThreshold
}

// chunkCount returns the number of chunkSize-sized blocks needed for a file
// of the given size.
func (c *Cache) chunkCount(size int64) int64 {
	if size <= 0 {
		return 0
	}

	return (size + c.chunkSize - 1) / c.chunkSize
}

// Reserve ensures a backing file exists for objectID, sparse-truncated to
// size, and records a CacheEntry: sparse (filled chunk by chunk) when
// isSparse is true, full otherwise. Reserve does not apply
// smallFileThreshold itself; each caller decides (Create reserves a full,
// empty entry; Open of an uncached object reserves a sparse one).
func (c *Cache) Reserve(ctx context.Context, objectID string, size int64, isSparse bool) error {
	path := c.PathFor(objectID)

	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("cachefs: create cache root: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("cachefs: reserve %s: %w", objectID, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("cachefs: truncate %s to %d: %w", objectID, size, err)
	}

	presence := store.PresentFull
	if isSparse {
		presence = store.PresentSparse
	}

	entry := &store.CacheEntry{
		ObjectID: objectID, LocalPath: path, Size: size,
		PresentLocally: presence, LastAccessed: store.NowNano(),
	}

	if isSparse && size == 0 {
		entry.PresentLocally = store.PresentFull
	}

	return c.store.UpsertCacheEntry(ctx, entry)
}

// HasRange reports which chunk indices covering [offset, offset+length) are
// not yet present for objectID (spec.md section 4.2: "has_range(object_id,
// [offset, offset+len)) returns the set of missing chunk indices in that
// range"). A full entry has no chunk rows and is never missing anything.
func (c *Cache) HasRange(ctx context.Context, objectID string, offset, length int64) ([]int64, error) {
	entry, err := c.store.GetCacheEntry(ctx, objectID)
	if err != nil {
		return nil, err
	}

	if entry != nil && entry.PresentLocally == store.PresentFull {
		return nil, nil
	}

	present, err := c.store.ListPresentChunks(ctx, objectID)
	if err != nil {
		return nil, err
	}

	have := make(map[int64]bool, len(present))
	for _, idx := range present {
		have[idx] = true
	}

	firstChunk := offset / c.chunkSize
	lastChunk := (offset + length - 1) / c.chunkSize

	var missing []int64

	for idx := firstChunk; idx <= lastChunk; idx++ {
		if !have[idx] {
			missing = append(missing, idx)
		}
	}

	return missing, nil
}

// WriteChunk writes data at the aligned offset for chunkIndex into
// objectID's cache file, marks the chunk present, and promotes the entry to
// full if every chunk is now present (spec.md section 4.2: "Promotion").
func (c *Cache) WriteChunk(ctx context.Context, objectID string, chunkIndex int64, data []byte) error {
	path := c.PathFor(objectID)

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cachefs: open %s for chunk write: %w", objectID, err)
	}
	defer f.Close()

	offset := chunkIndex * c.chunkSize

	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("cachefs: write chunk %d of %s: %w", chunkIndex, objectID, err)
	}

	if err := c.store.MarkChunkPresent(ctx, objectID, chunkIndex); err != nil {
		return err
	}

	if err := c.promoteIfComplete(ctx, objectID); err != nil {
		return err
	}

	c.broadcaster.signal(objectID)

	return nil
}

// promoteIfComplete checks whether every chunk of a sparse entry is present
// and, if so, atomically flips it to full and purges the chunk rows.
func (c *Cache) promoteIfComplete(ctx context.Context, objectID string) error {
	entry, err := c.store.GetCacheEntry(ctx, objectID)
	if err != nil {
		return err
	}

	if entry == nil || entry.PresentLocally != store.PresentSparse {
		return nil
	}

	present, err := c.store.ListPresentChunks(ctx, objectID)
	if err != nil {
		return err
	}

	want := c.chunkCount(entry.Size)
	if int64(len(present)) < want {
		return nil
	}

	entry.PresentLocally = store.PresentFull

	if err := c.store.UpsertCacheEntry(ctx, entry); err != nil {
		return err
	}

	c.logger.Debug("cache entry promoted to full", slog.String("object_id", objectID))

	return c.store.ClearChunks(ctx, objectID)
}

// ReserveFullDownload prepares a `.part` file for a whole-file download
// (used for files below smallFileThreshold, where sparse chunking is not
// worth the bookkeeping).
func (c *Cache) ReserveFullDownload(objectID string) (*os.File, error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("cachefs: create cache root: %w", err)
	}

	f, err := os.OpenFile(c.partPathFor(objectID), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cachefs: reserve part file for %s: %w", objectID, err)
	}

	return f, nil
}

// CommitFullDownload renames objectID's `.part` file into place and records
// a full CacheEntry (spec.md section 4.2: "Atomic swap for full downloads:
// downloads write to <path>.part, then rename into place").
func (c *Cache) CommitFullDownload(ctx context.Context, objectID string, size int64, fileHash string) error {
	partPath := c.partPathFor(objectID)
	finalPath := c.PathFor(objectID)

	if err := os.Rename(partPath, finalPath); err != nil {
		return fmt.Errorf("cachefs: commit full download %s: %w", objectID, err)
	}

	entry := &store.CacheEntry{
		ObjectID: objectID, LocalPath: finalPath, Size: size, FileHash: fileHash,
		PresentLocally: store.PresentFull, LastAccessed: store.NowNano(),
	}

	if err := c.store.UpsertCacheEntry(ctx, entry); err != nil {
		return err
	}

	c.broadcaster.signal(objectID)

	return nil
}

// DiscardPartialDownload removes a `.part` file left over from a failed or
// abandoned download, used by explicit failure handling; the startup
// `.part` sweep (SweepPartFiles) removes files directly (spec.md section 8:
// "no cache .part files leak — startup sweep removes them").
func (c *Cache) DiscardPartialDownload(objectID string) error {
	err := os.Remove(c.partPathFor(objectID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cachefs: discard part file for %s: %w", objectID, err)
	}

	return nil
}

// SweepPartFiles removes every `.part` file under the cache root at
// startup, since a `.part` file can only mean an interrupted download from
// a process that no longer exists.
func (c *Cache) SweepPartFiles() (int, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("cachefs: read cache root: %w", err)
	}

	swept := 0

	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".part" {
			continue
		}

		if err := os.Remove(filepath.Join(c.root, e.Name())); err != nil && !os.IsNotExist(err) {
			return swept, fmt.Errorf("cachefs: remove stale part file %s: %w", e.Name(), err)
		}

		swept++
	}

	if swept > 0 {
		c.logger.Info("swept stale part files", slog.Int("count", swept))
	}

	return swept, nil
}

// PrepareUpload returns the path to use as the upload source for objectID:
// a symlink named for the intended remote name, pointing at the real cache
// file (spec.md section 4.2 / section 9's resolved Open Question: "the
// underlying cache file is not moved"). Callers should remove the symlink
// (not the target) once the upload completes; Cache never renames the
// cache file itself.
func (c *Cache) PrepareUpload(objectID, remoteName string) (symlinkPath string, cleanup func() error, err error) {
	target := c.PathFor(objectID)
	uploadDir := filepath.Join(c.root, ".uploads")

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("cachefs: create upload staging dir: %w", err)
	}

	link := filepath.Join(uploadDir, objectID+"-"+remoteName)

	_ = os.Remove(link)

	if err := os.Symlink(target, link); err != nil {
		return "", nil, fmt.Errorf("cachefs: symlink upload name for %s: %w", objectID, err)
	}

	return link, func() error { return os.Remove(link) }, nil
}

// Truncate resizes objectID's cache file in place, updating the recorded
// CacheEntry size (FUSE setattr/truncate path, spec.md section 4.6). The
// file is created if it does not yet exist, matching truncate(2)'s
// O_CREAT-adjacent behavior when called right after Create.
func (c *Cache) Truncate(ctx context.Context, objectID string, size int64) error {
	path := c.PathFor(objectID)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("cachefs: truncate open %s: %w", objectID, err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("cachefs: truncate %s to %d: %w", objectID, size, err)
	}

	entry, err := c.store.GetCacheEntry(ctx, objectID)
	if err != nil {
		return err
	}

	if entry == nil {
		entry = &store.CacheEntry{ObjectID: objectID, LocalPath: path, PresentLocally: store.PresentFull}
	}

	entry.Size = size
	entry.LastAccessed = store.NowNano()

	return c.store.UpsertCacheEntry(ctx, entry)
}

// Open opens objectID's cache file for reading, touching its access
// bookkeeping.
func (c *Cache) Open(ctx context.Context, objectID string) (io.ReadCloser, error) {
	if err := c.store.TouchCacheEntry(ctx, objectID, true); err != nil {
		return nil, err
	}

	f, err := os.Open(c.PathFor(objectID))
	if err != nil {
		return nil, fmt.Errorf("cachefs: open %s: %w", objectID, err)
	}

	return f, nil
}

// Release decrements objectID's open count after a close.
func (c *Cache) Release(ctx context.Context, objectID string) error {
	return c.store.TouchCacheEntry(ctx, objectID, false)
}

// Remove deletes objectID's cache file and row entirely (eviction, or
// cleanup after a remote delete is confirmed).
func (c *Cache) Remove(ctx context.Context, objectID string) error {
	if err := os.Remove(c.PathFor(objectID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cachefs: remove %s: %w", objectID, err)
	}

	if err := c.store.ClearChunks(ctx, objectID); err != nil {
		return err
	}

	return c.store.DeleteCacheEntry(ctx, objectID)
}
