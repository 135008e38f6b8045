package fuseproj

import (
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/orchardfs/orchard/internal/store"
)

// fillAttr populates out from o (nil for the root folder) and the cached
// size, if any. Mode/UID/GID are fixed: Orchard projects a single-owner
// tree and never models POSIX permission bits beyond read/write.
func fillAttr(out *fuse.Attr, o *store.Object, cachedSize int64) {
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())

	if o == nil {
		out.Mode = modeDir
		out.Size = 0
		return
	}

	if o.Type == store.TypeFolder {
		out.Mode = modeDir
		out.Size = 0
	} else {
		out.Mode = modeFile
		out.Size = uint64(cachedSize)
	}

	mtime := o.LocalModifiedAt
	if mtime == 0 {
		mtime = o.CloudModifiedAt
	}

	sec := uint64(mtime / int64(1e9))
	out.Mtime = sec
	out.Atime = sec
	out.Ctime = sec
}

const (
	modeDir  = fuse.S_IFDIR | 0o755
	modeFile = fuse.S_IFREG | 0o644
)
