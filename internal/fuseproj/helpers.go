package fuseproj

import (
	"context"
	"syscall"

	"github.com/orchardfs/orchard/internal/store"
)

// cachedSize resolves the size FUSE should report: the cache entry's size
// once content has been created or downloaded, falling back to the
// object's last-known remote size for a not-yet-downloaded file.
func (f *FS) cachedSize(ctx context.Context, o *store.Object) (int64, syscall.Errno) {
	if o.Type == store.TypeFolder {
		return 0, 0
	}

	entry, err := f.store.GetCacheEntry(ctx, o.ID)
	if err != nil {
		f.logger.Error("get cache entry failed", "object_id", o.ID, "error", err)
		return 0, syscall.EIO
	}

	if entry != nil {
		return entry.Size, 0
	}

	return o.Size, 0
}

// markDirty transitions o into the dirty state after a local write (spec.md
// section 4.6: "write ... marks the object dirty"). It does not itself
// enqueue the upload; scheduleUpload does that once the last open handle on
// o closes, so a worker never races an append still in progress.
func (f *FS) markDirty(ctx context.Context, o *store.Object) error {
	if store.CanTransition(o.SyncState, store.StateDirty) {
		o.SyncState = store.StateDirty
	}

	o.Dirty = true

	return f.store.UpsertObject(ctx, o)
}

// scheduleUpload coalesces an update_content/upload action for a dirty
// object (spec.md section 4.6: "schedules a coalesced update_content on
// release"). Callers are expected to have already confirmed o.Dirty and
// that o's open_count has dropped to zero.
func (f *FS) scheduleUpload(ctx context.Context, o *store.Object) error {
	actionType := store.ActionUpdateContent
	if o.CloudID == "" {
		actionType = store.ActionUpload
	}

	_, err := f.queue.Enqueue(ctx, &store.Action{
		Type: actionType, TargetID: o.ID, Direction: store.DirectionPush, Priority: store.PriorityBackground,
	})

	return err
}
