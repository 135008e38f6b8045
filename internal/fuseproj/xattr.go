package fuseproj

import (
	"context"
	"strings"
	"syscall"

	"github.com/orchardfs/orchard/internal/store"
)

const (
	xattrStatus  = "user.orchard.status"
	xattrPin     = "user.orchard.pin"
	xattrEmblems = "user.xdg.emblems"
)

// statusOf maps an object's sync_state to the xattr vocabulary in spec.md
// section 6 (synced, dirty, pending_push, pending_pull, conflict, error,
// cloud, partial). "cloud" and "partial" describe cache presence rather
// than sync_state directly, so they take priority when applicable.
func (f *FS) statusOf(ctx context.Context, o *store.Object) (string, error) {
	if o.SyncState == store.StateConflict || o.SyncState == store.StateError {
		return string(o.SyncState), nil
	}

	entry, err := f.store.GetCacheEntry(ctx, o.ID)
	if err != nil {
		return "", err
	}

	switch {
	case entry == nil:
		return "cloud", nil
	case entry.PresentLocally == store.PresentSparse:
		return "partial", nil
	default:
		return string(o.SyncState), nil
	}
}

func emblemsFor(status string) string {
	switch status {
	case "conflict":
		return "conflict,warning"
	case "error":
		return "error,warning"
	case "cloud":
		return "cloud-only"
	case "partial":
		return "partial"
	case "dirty", "pending_push":
		return "uploading"
	case "pending_pull":
		return "downloading"
	default:
		return "synced"
	}
}

func (n *Node) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	o, errno := n.object(ctx)
	if errno != 0 {
		return 0, errno
	}

	if o == nil {
		return 0, syscall.ENODATA
	}

	var value string

	switch attr {
	case xattrStatus:
		status, err := n.fsys.statusOf(ctx, o)
		if err != nil {
			return 0, syscall.EIO
		}

		value = status

	case xattrPin:
		entry, err := n.fsys.store.GetCacheEntry(ctx, o.ID)
		if err != nil {
			return 0, syscall.EIO
		}

		value = "0"
		if entry != nil && entry.Pinned {
			value = "1"
		}

	case xattrEmblems:
		status, err := n.fsys.statusOf(ctx, o)
		if err != nil {
			return 0, syscall.EIO
		}

		value = emblemsFor(status)

	default:
		return 0, syscall.ENODATA
	}

	if len(dest) < len(value) {
		return uint32(len(value)), syscall.ERANGE
	}

	copy(dest, value)

	return uint32(len(value)), 0
}

func (n *Node) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	o, errno := n.object(ctx)
	if errno != 0 {
		return errno
	}

	if o == nil || attr != xattrPin {
		return syscall.ENODATA
	}

	pin := strings.TrimSpace(string(data)) == "1"

	if err := n.fsys.store.SetPinned(ctx, o.ID, pin); err != nil {
		n.fsys.logger.Error("setxattr pin failed", "object_id", o.ID, "error", err)
		return syscall.EIO
	}

	return 0
}

func (n *Node) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names := xattrStatus + "\x00" + xattrPin + "\x00" + xattrEmblems + "\x00"

	if len(dest) < len(names) {
		return uint32(len(names)), syscall.ERANGE
	}

	copy(dest, names)

	return uint32(len(names)), 0
}
