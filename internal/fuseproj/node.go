package fuseproj

import (
	"context"
	"syscall"

	"github.com/google/uuid"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/orchardfs/orchard/internal/store"
)

// Node is one entry in the projected tree, identified by its State Store
// object ID ("" for the root folder, which has no Object row). The
// filesystem structure itself is never cached in memory beyond go-fuse's
// own inode table: every Lookup/Readdir/Getattr re-reads the Store (spec.md
// section 9's arena-by-ID design note — "never materialize parent/child
// pointer graphs in memory").
type Node struct {
	fs.Inode
	fsys     *FS
	objectID string
}

var (
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeGetxattrer = (*Node)(nil)
	_ fs.NodeSetxattrer = (*Node)(nil)
	_ fs.NodeListxattrer = (*Node)(nil)
)

func (n *Node) object(ctx context.Context) (*store.Object, syscall.Errno) {
	if n.objectID == "" {
		return nil, 0
	}

	o, err := n.fsys.store.GetObject(ctx, n.objectID)
	if err != nil {
		n.fsys.logger.Error("load object failed", "object_id", n.objectID, "error", err)
		return nil, syscall.EIO
	}

	if o == nil || o.Deleted {
		return nil, syscall.ENOENT
	}

	return o, 0
}

func (n *Node) childNode(o *store.Object) *fs.Inode {
	mode := uint32(fuse.S_IFREG)
	if o.Type == store.TypeFolder {
		mode = fuse.S_IFDIR
	}

	return n.NewInode(context.Background(), &Node{fsys: n.fsys, objectID: o.ID}, fs.StableAttr{Mode: mode})
}

// Lookup is a pure State Store read (spec.md section 4.6: "getattr, readdir
// are pure State Store reads; never block on the network").
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.fsys.store.GetChildByName(ctx, n.objectID, name)
	if err != nil {
		n.fsys.logger.Error("lookup failed", "parent", n.objectID, "name", name, "error", err)
		return nil, syscall.EIO
	}

	if child == nil {
		n.fsys.enqueueListChildren(ctx, n.objectID)
		return nil, syscall.ENOENT
	}

	entry, errno := n.fsys.cachedSize(ctx, child)
	if errno != 0 {
		return nil, errno
	}

	fillAttr(&out.Attr, child, entry)

	return n.childNode(child), 0
}

// Readdir lists the folder's current children and triggers a background
// refresh; it never blocks waiting for that refresh to land.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	children, err := n.fsys.store.ListChildren(ctx, n.objectID)
	if err != nil {
		n.fsys.logger.Error("readdir failed", "folder", n.objectID, "error", err)
		return nil, syscall.EIO
	}

	n.fsys.enqueueListChildren(ctx, n.objectID)

	entries := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		mode := uint32(fuse.S_IFREG)
		if c.Type == store.TypeFolder {
			mode = fuse.S_IFDIR
		}

		entries = append(entries, fuse.DirEntry{Name: c.Name, Mode: mode})
	}

	return fs.NewListDirStream(entries), 0
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	o, errno := n.object(ctx)
	if errno != 0 {
		return errno
	}

	var size int64
	if o != nil {
		var errno2 syscall.Errno
		size, errno2 = n.fsys.cachedSize(ctx, o)
		if errno2 != 0 {
			return errno2
		}
	}

	fillAttr(&out.Attr, o, size)

	return 0
}

// Setattr handles truncation only; Orchard does not model permission bits.
func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	o, errno := n.object(ctx)
	if errno != 0 {
		return errno
	}

	if o == nil {
		return syscall.EINVAL
	}

	if size, ok := in.GetSize(); ok {
		if err := n.fsys.cache.Truncate(ctx, o.ID, int64(size)); err != nil {
			n.fsys.logger.Error("truncate failed", "object_id", o.ID, "error", err)
			return syscall.EIO
		}

		o.Size = int64(size)
		o.LocalModifiedAt = store.NowNano()

		if err := n.fsys.markDirty(ctx, o); err != nil {
			return syscall.EIO
		}

		// Setattr's truncate is a single complete operation, not an
		// in-progress append behind an open handle, so the upload is
		// scheduled immediately rather than deferred to Release.
		if err := n.fsys.scheduleUpload(ctx, o); err != nil {
			return syscall.EIO
		}
	}

	entrySize, errno2 := n.fsys.cachedSize(ctx, o)
	if errno2 != 0 {
		return errno2
	}

	fillAttr(&out.Attr, o, entrySize)

	return 0
}

// Open never blocks on download (spec.md section 4.6): it only validates
// existence and bumps open_count.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	o, errno := n.object(ctx)
	if errno != 0 {
		return nil, 0, errno
	}

	if o == nil {
		return nil, 0, syscall.EINVAL
	}

	// A pending_pull object has no cache file yet: reserve a sparse one
	// (nothing is downloaded here; reads fetch chunks on demand). open_count
	// still needs bumping so eviction and close-triggered cleanup see it as
	// in use.
	entry, err := n.fsys.store.GetCacheEntry(ctx, o.ID)
	if err == nil && entry == nil {
		err = n.fsys.cache.Reserve(ctx, o.ID, o.Size, true)
	}

	if err == nil {
		err = n.fsys.store.TouchCacheEntry(ctx, o.ID, true)
	}

	if err != nil {
		n.fsys.logger.Error("open failed", "object_id", o.ID, "error", err)
		return nil, 0, syscall.EIO
	}

	return &fileHandle{fsys: n.fsys, objectID: o.ID}, 0, 0
}

// Create mints a new local file, reserves a full (zero-length) cache
// entry, and returns it already open and writable.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	o := &store.Object{ID: uuid.NewString(), Type: store.TypeFile, ParentID: n.objectID, Name: name}

	if err := n.fsys.store.CreateLocalObject(ctx, o); err != nil {
		n.fsys.logger.Error("create failed", "parent", n.objectID, "name", name, "error", err)
		return nil, nil, 0, syscall.EIO
	}

	if err := n.fsys.cache.Reserve(ctx, o.ID, 0, false); err != nil {
		n.fsys.logger.Error("create reserve cache failed", "object_id", o.ID, "error", err)
		return nil, nil, 0, syscall.EIO
	}

	fillAttr(&out.Attr, o, 0)

	return n.childNode(o), &fileHandle{fsys: n.fsys, objectID: o.ID}, 0, 0
}

// Mkdir mints a new local folder; its cloud_id is assigned once the
// resulting upload action runs CreateFolder.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	o := &store.Object{ID: uuid.NewString(), Type: store.TypeFolder, ParentID: n.objectID, Name: name}

	if err := n.fsys.store.CreateLocalObject(ctx, o); err != nil {
		n.fsys.logger.Error("mkdir failed", "parent", n.objectID, "name", name, "error", err)
		return nil, syscall.EIO
	}

	if _, err := n.fsys.queue.Enqueue(ctx, &store.Action{
		Type: store.ActionUpload, TargetID: o.ID, Direction: store.DirectionPush, Priority: store.PriorityInteractive,
	}); err != nil {
		n.fsys.logger.Error("enqueue mkdir upload failed", "object_id", o.ID, "error", err)
		return nil, syscall.EIO
	}

	fillAttr(&out.Attr, o, 0)

	return n.childNode(o), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.remove(ctx, name)
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.remove(ctx, name)
}

func (n *Node) remove(ctx context.Context, name string) syscall.Errno {
	child, err := n.fsys.store.GetChildByName(ctx, n.objectID, name)
	if err != nil {
		n.fsys.logger.Error("remove lookup failed", "parent", n.objectID, "name", name, "error", err)
		return syscall.EIO
	}

	if child == nil {
		return syscall.ENOENT
	}

	if err := n.fsys.store.MarkDeleted(ctx, child.ID, store.StateDeletedLocal); err != nil {
		n.fsys.logger.Error("mark deleted failed", "object_id", child.ID, "error", err)
		return syscall.EIO
	}

	// A delete makes any already-queued push against this object moot
	// (spec.md section 4.3: "delete cancels all pending pushes for it") —
	// cancel before enqueueing so a worker can never run a stale
	// upload/update_content against an object already marked deleted.
	if err := n.fsys.queue.Cancel(ctx, child.ID); err != nil {
		n.fsys.logger.Error("cancel pending actions failed", "object_id", child.ID, "error", err)
		return syscall.EIO
	}

	if _, err := n.fsys.queue.Enqueue(ctx, &store.Action{
		Type: store.ActionDelete, TargetID: child.ID, Direction: store.DirectionPush, Priority: store.PriorityInteractive,
	}); err != nil {
		n.fsys.logger.Error("enqueue delete failed", "object_id", child.ID, "error", err)
		return syscall.EIO
	}

	return 0
}

// Rename rewrites the State Store row atomically and enqueues whichever of
// rename/move actually changed (spec.md section 4.6).
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	child, err := n.fsys.store.GetChildByName(ctx, n.objectID, name)
	if err != nil {
		n.fsys.logger.Error("rename lookup failed", "parent", n.objectID, "name", name, "error", err)
		return syscall.EIO
	}

	if child == nil {
		return syscall.ENOENT
	}

	destNode, ok := newParent.(*Node)
	if !ok {
		return syscall.EINVAL
	}

	renamed := child.Name != newName
	moved := child.ParentID != destNode.objectID

	child.Name = newName
	child.ParentID = destNode.objectID
	child.LocalModifiedAt = store.NowNano()

	if err := n.fsys.store.UpsertObject(ctx, child); err != nil {
		n.fsys.logger.Error("rename upsert failed", "object_id", child.ID, "error", err)
		return syscall.EIO
	}

	if child.CloudID == "" {
		// Never uploaded yet; the eventual upload picks up the new name/parent.
		return 0
	}

	if renamed {
		if _, err := n.fsys.queue.Enqueue(ctx, &store.Action{
			Type: store.ActionRename, TargetID: child.ID, Direction: store.DirectionPush, Priority: store.PriorityInteractive,
		}); err != nil {
			n.fsys.logger.Error("enqueue rename failed", "object_id", child.ID, "error", err)
			return syscall.EIO
		}
	}

	if moved {
		if _, err := n.fsys.queue.Enqueue(ctx, &store.Action{
			Type: store.ActionMove, TargetID: child.ID, Direction: store.DirectionPush, Priority: store.PriorityInteractive,
		}); err != nil {
			n.fsys.logger.Error("enqueue move failed", "object_id", child.ID, "error", err)
			return syscall.EIO
		}
	}

	return 0
}
