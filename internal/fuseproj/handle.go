package fuseproj

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/orchardfs/orchard/internal/metrics"
	"github.com/orchardfs/orchard/internal/store"
)

// fileHandle is the per-open state for a projected file. It holds no
// buffered content itself — every Read/Write goes straight to the cache
// file — so Flush has nothing to do; scheduling the upload of a dirty object
// is left to Release.
type fileHandle struct {
	fsys     *FS
	objectID string
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileFlusher  = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
)

// Read serves directly from the cache when the required range is already
// present; otherwise it enqueues download_chunk for each missing chunk and
// blocks on the Cache Layer's condition until they land or the configured
// timeout elapses (spec.md section 4.6, section 5's sole blocking path).
func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if caller, ok := fuse.FromContext(ctx); ok && h.fsys.denylist.blocks(caller.Pid) {
		// First-class suppression: no chunk is ever requested for a
		// denylisted reader.
		return fuse.ReadResultData(make([]byte, 0)), 0
	}

	o, err := h.fsys.store.GetObject(ctx, h.objectID)
	if err != nil {
		h.fsys.logger.Error("read: load object failed", "object_id", h.objectID, "error", err)
		return nil, syscall.EIO
	}

	if o == nil {
		return nil, syscall.ENOENT
	}

	length := int64(len(dest))

	missing, err := h.fsys.cache.HasRange(ctx, h.objectID, off, length)
	if err != nil {
		h.fsys.logger.Error("read: has_range failed", "object_id", h.objectID, "error", err)
		return nil, syscall.EIO
	}

	if len(missing) == 0 {
		metrics.CacheHitsTotal.Inc()
	}

	if len(missing) > 0 {
		metrics.CacheMissesTotal.Inc()

		for _, idx := range missing {
			if err := h.requestChunk(ctx, idx); err != nil {
				h.fsys.logger.Error("read: enqueue chunk failed", "object_id", h.objectID, "chunk", idx, "error", err)
				return nil, syscall.EIO
			}
		}

		if err := h.fsys.cache.WaitForContent(ctx, h.objectID, off, length, h.fsys.chunkReadTimeout); err != nil {
			// Both a per-chunk timeout and a cancelled read surface as EIO
			// to the kernel (spec.md section 4.6: "On timeout, return an
			// I/O error").
			return nil, syscall.EIO
		}
	}

	f, err := os.Open(h.fsys.cache.PathFor(h.objectID))
	if err != nil {
		h.fsys.logger.Error("read: open cache file failed", "object_id", h.objectID, "error", err)
		return nil, syscall.EIO
	}
	defer f.Close()

	n, err := f.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		h.fsys.logger.Error("read: read cache file failed", "object_id", h.objectID, "error", err)
		return nil, syscall.EIO
	}

	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) requestChunk(ctx context.Context, chunkIndex int64) error {
	metadata, err := marshalChunkMetadata(chunkIndex)
	if err != nil {
		return err
	}

	_, err = h.fsys.queue.Enqueue(ctx, &store.Action{
		Type: store.ActionDownloadChunk, TargetID: h.objectID, Direction: store.DirectionPull,
		Priority: store.PriorityFUSESync, Metadata: metadata,
	})

	return err
}

// Write writes to the local cache file and marks the object dirty. It does
// not enqueue anything; Release schedules the coalesced upload.
func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	o, err := h.fsys.store.GetObject(ctx, h.objectID)
	if err != nil || o == nil {
		h.fsys.logger.Error("write: load object failed", "object_id", h.objectID, "error", err)
		return 0, syscall.EIO
	}

	path := h.fsys.cache.PathFor(h.objectID)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		h.fsys.logger.Error("write: open cache file failed", "object_id", h.objectID, "error", err)
		return 0, syscall.EIO
	}
	defer f.Close()

	n, err := f.WriteAt(data, off)
	if err != nil {
		h.fsys.logger.Error("write: write cache file failed", "object_id", h.objectID, "error", err)

		if os.IsNotExist(err) {
			return 0, syscall.ENOENT
		}

		return 0, syscall.ENOSPC
	}

	newSize := off + int64(n)
	if newSize > o.Size {
		o.Size = newSize

		if entry, gerr := h.fsys.store.GetCacheEntry(ctx, h.objectID); gerr == nil && entry != nil && newSize > entry.Size {
			entry.Size = newSize
			_ = h.fsys.store.UpsertCacheEntry(ctx, entry)
		}
	}

	o.LocalModifiedAt = store.NowNano()

	if err := h.fsys.markDirty(ctx, o); err != nil {
		h.fsys.logger.Error("write: mark dirty failed", "object_id", h.objectID, "error", err)
		return 0, syscall.EIO
	}

	return uint32(n), 0
}

func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

// Release drops this handle's hold on the cache entry and, once the last
// open handle on the object has closed, schedules the upload a dirty
// object accumulated across its writes (spec.md section 4.6: "schedules a
// coalesced update_content on release"). Gating on open_count == 0 instead
// of enqueueing per-Write keeps a worker from uploading a file that is
// still being appended to by another handle.
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	if err := h.fsys.cache.Release(ctx, h.objectID); err != nil {
		h.fsys.logger.Error("release failed", "object_id", h.objectID, "error", err)
		return syscall.EIO
	}

	o, err := h.fsys.store.GetObject(ctx, h.objectID)
	if err != nil {
		h.fsys.logger.Error("release: load object failed", "object_id", h.objectID, "error", err)
		return syscall.EIO
	}

	if o == nil || !o.Dirty {
		return 0
	}

	entry, err := h.fsys.store.GetCacheEntry(ctx, h.objectID)
	if err != nil {
		h.fsys.logger.Error("release: get cache entry failed", "object_id", h.objectID, "error", err)
		return syscall.EIO
	}

	if entry != nil && entry.OpenCount > 0 {
		return 0
	}

	if err := h.fsys.scheduleUpload(ctx, o); err != nil {
		h.fsys.logger.Error("release: schedule upload failed", "object_id", h.objectID, "error", err)
		return syscall.EIO
	}

	return 0
}

// chunkMetadata mirrors the internal/syncengine package's download_chunk
// payload shape; the two packages don't share a type since the queue only
// carries an opaque JSON string between them.
type chunkMetadata struct {
	Index int64 `json:"chunk_index"`
}

func marshalChunkMetadata(index int64) (string, error) {
	b, err := json.Marshal(chunkMetadata{Index: index})
	if err != nil {
		return "", err
	}

	return string(b), nil
}
