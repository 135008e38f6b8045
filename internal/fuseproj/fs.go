// Package fuseproj projects the State Store's object tree as a FUSE
// filesystem (spec.md section 4.6). Handlers are pure State Store reads
// wherever possible; the only blocking path is a content read against a
// cache miss, which waits on the Cache Layer's per-object condition
// variable rather than downloading inline.
package fuseproj

import (
	"context"
	"log/slog"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"

	"github.com/orchardfs/orchard/internal/actionqueue"
	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/store"
)

// FS wires the FUSE surface to the State Store, Cache Layer, and Action
// Queue. It holds no sync state of its own beyond the denylist and chunk
// read timeout; the object tree always lives in the Store.
type FS struct {
	store   *store.Store
	cache   *cachefs.Cache
	queue   *actionqueue.Queue
	logger  *slog.Logger
	denylist *procDenylist

	chunkReadTimeout time.Duration
}

// New creates an FS ready to be mounted via Root().
func New(s *store.Store, cache *cachefs.Cache, queue *actionqueue.Queue, cfg *config.Config, logger *slog.Logger) *FS {
	return &FS{
		store:            s,
		cache:            cache,
		queue:            queue,
		logger:           logger,
		denylist:         newProcDenylist(cfg.ThumbnailerDenylist),
		chunkReadTimeout: cfg.ChunkReadTimeout(),
	}
}

// Root returns the inode embedder for the projected tree's root folder.
func (f *FS) Root() fs.InodeEmbedder {
	return &Node{fsys: f, objectID: ""}
}

// enqueueListChildren triggers a background discovery of folderID's
// children (spec.md section 4.6: "if a folder has never been listed, a
// low-priority list_children is enqueued and stale data is returned
// immediately"). Coalescing at the Store layer makes repeated calls for
// the same folder cheap: they collapse into the one still-pending row.
func (f *FS) enqueueListChildren(ctx context.Context, folderID string) {
	a := &store.Action{
		Type: store.ActionListChildren, TargetID: folderID,
		Direction: store.DirectionPull, Priority: store.PriorityBackground,
	}

	if _, err := f.queue.Enqueue(ctx, a); err != nil {
		f.logger.Warn("enqueue list_children failed", slog.String("folder_id", folderID), slog.String("error", err.Error()))
	}
}
