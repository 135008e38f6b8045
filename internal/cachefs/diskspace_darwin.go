//go:build darwin

package cachefs

import "syscall"

// AvailableBytes returns available bytes on the volume containing path.
// Uses Bavail (available to unprivileged users), not Bfree (total free
// including root-reserved blocks).
func AvailableBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}

	return stat.Bavail * uint64(stat.Bsize), nil
}
