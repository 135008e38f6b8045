//go:build linux

package cachefs

import (
	"os"

	"golang.org/x/sys/unix"
)

// holePunch releases the disk blocks backing [offset, offset+length) of f
// without changing the file's logical size, via fallocate's
// FALLOC_FL_PUNCH_HOLE | FALLOC_FL_KEEP_SIZE.
func holePunch(f *os.File, offset, length int64) error {
	return unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
}
