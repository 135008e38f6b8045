package fuseproj

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountManager owns the lifecycle of the FUSE session: mounting, waiting
// for the kernel to tear it down, and unmounting cleanly on shutdown
// (spec.md section 9's design note: "the process owns the State Store, the
// worker pool, and the FUSE session; all three are started in a fixed
// order and shut down in reverse under a single supervisor").
type MountManager struct {
	fsys       *FS
	mountpoint string
	logger     *slog.Logger

	server  *fuse.Server
	mounted bool
}

// NewMountManager creates a manager for fsys, to be mounted at mountpoint.
func NewMountManager(fsys *FS, mountpoint string, logger *slog.Logger) *MountManager {
	return &MountManager{fsys: fsys, mountpoint: mountpoint, logger: logger}
}

// Mount mounts the filesystem and starts serving requests in the
// background. It returns once the mount syscall has completed, not once
// the server has stopped; call Wait for that.
func (m *MountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("fuseproj: already mounted at %s", m.mountpoint)
	}

	if err := m.validateMountpoint(); err != nil {
		return err
	}

	attrTimeout := time.Second
	entryTimeout := time.Second

	opts := &gofuse.Options{
		MountOptions: fuse.MountOptions{
			FsName: "orchard",
			Name:   "orchard",
		},
		AttrTimeout:     &attrTimeout,
		EntryTimeout:    &entryTimeout,
		NullPermissions: true,
	}

	server, err := gofuse.Mount(m.mountpoint, m.fsys.Root(), opts)
	if err != nil {
		return fmt.Errorf("fuseproj: mount %s: %w", m.mountpoint, err)
	}

	m.server = server
	m.mounted = true

	m.logger.Info("mounted", slog.String("mountpoint", m.mountpoint))

	go func() {
		m.server.Wait()
		m.mounted = false
		m.logger.Info("fuse server stopped", slog.String("mountpoint", m.mountpoint))
	}()

	return nil
}

// Unmount unmounts the filesystem. Safe to call even if Mount never
// succeeded.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return nil
	}

	if err := m.server.Unmount(); err != nil {
		return fmt.Errorf("fuseproj: unmount %s: %w", m.mountpoint, err)
	}

	m.mounted = false

	return nil
}

// Wait blocks until the FUSE session ends (kernel unmount or Unmount()).
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

// validateMountpoint refuses to start if the target is a non-empty
// directory that isn't itself an existing Orchard mount (spec.md section
// 6: "The engine refuses to start if the target is non-empty and not an
// Orchard mount").
func (m *MountManager) validateMountpoint() error {
	info, err := os.Stat(m.mountpoint)
	if err != nil {
		return fmt.Errorf("fuseproj: mountpoint %s: %w", m.mountpoint, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("fuseproj: mountpoint %s is not a directory", m.mountpoint)
	}

	entries, err := os.ReadDir(m.mountpoint)
	if err != nil {
		return fmt.Errorf("fuseproj: read mountpoint %s: %w", m.mountpoint, err)
	}

	if len(entries) == 0 {
		return nil
	}

	if isOrchardMount(m.mountpoint) {
		return nil
	}

	return fmt.Errorf("fuseproj: mountpoint %s is non-empty and not an existing orchard mount", m.mountpoint)
}

// isOrchardMount checks /proc/mounts for an existing orchard fstype entry
// at path, which is how a restart distinguishes "already our mount, about
// to be replaced" from "someone else's data".
func isOrchardMount(path string) bool {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[1] == path && fields[2] == "fuse.orchard" {
			return true
		}
	}

	return false
}
