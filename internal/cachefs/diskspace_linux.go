//go:build linux

package cachefs

import "golang.org/x/sys/unix"

// AvailableBytes returns available bytes on the volume containing path.
// Uses unix.Statfs instead of syscall.Statfs since the syscall package's
// field types are inconsistent across architectures; the unix package
// normalizes this. Uses Bavail (available to unprivileged users), not
// Bfree (total free including root-reserved blocks).
func AvailableBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return uint64(stat.Bavail) * uint64(stat.Bsize), nil //nolint:gosec // kernel guarantees non-negative values
}
