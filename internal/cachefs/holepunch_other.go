//go:build !linux

package cachefs

import "os"

// holePunch is a no-op on platforms without a punch-hole syscall exposed
// through golang.org/x/sys (darwin lacks FALLOC_FL_PUNCH_HOLE; APFS
// sparse-file reclamation happens through other means not exercised here).
// Eviction still removes the chunk's bookkeeping row; only the immediate
// disk-space reclamation is deferred to the filesystem's own behavior.
func holePunch(f *os.File, offset, length int64) error {
	return nil
}
