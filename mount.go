package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/control"
	"github.com/orchardfs/orchard/internal/fuseproj"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
	"github.com/orchardfs/orchard/internal/syncengine"
)

func newMountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount",
		Short: "Mount iCloud Drive and run the sync daemon in the foreground",
		Long: `Mount starts the Orchard daemon: it opens the state database, starts the
sync engine's worker pool, projects the object tree at the configured mount
point via FUSE, and serves the loopback control/query API. It runs until
interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			return runMount(cmd.Context(), cc)
		},
	}

	return cmd
}

// runMount wires the State Store, the sync engine, the FUSE projection, and
// the control API together in the fixed startup order spec.md section 9
// requires, and tears them down in reverse so the FUSE session always
// unmounts before the store closes.
func runMount(ctx context.Context, cc *CLIContext) error {
	cfg := cc.Cfg
	logger := cc.Logger

	pidPath := filepath.Join(config.DefaultDataDir(), "orchard.pid")

	cleanupPID, err := writePIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errMount, err)
	}
	defer cleanupPID()

	runCtx := shutdownContext(ctx, logger)

	s, err := store.Open(runCtx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("%w: opening state database: %v", errMount, err)
	}
	defer s.Close()

	cache := cachefs.New(cfg.CacheRoot, s, logger, cfg.SmallFileThresholdBytes, cfg.ChunkSizeBytes, cfg.CacheMaxBytes)

	// The real iCloud remote API client is out of scope; the mock adapter
	// lets the full engine, cache, and FUSE surface run end to end against
	// a simulated remote.
	adapter := remote.NewMockAdapter()

	engine := syncengine.NewEngine(syncengine.EngineConfig{
		Store: s, Cache: cache, Adapter: adapter, Config: cfg, Logger: logger,
	})

	fsys := fuseproj.New(s, cache, engine.Queue(), cfg, logger)
	mgr := fuseproj.NewMountManager(fsys, cfg.MountPoint, logger)

	ctrl := control.New(engine, s, logger)

	engineDone := make(chan error, 1)

	go func() {
		engineDone <- engine.Run(runCtx)
	}()

	if err := mgr.Mount(runCtx); err != nil {
		engine.Stop()
		return fmt.Errorf("%w: %v", errMount, err)
	}

	controlDone := make(chan error, 1)

	go func() {
		controlDone <- ctrl.Start(runCtx, cfg.ControlAddr)
	}()

	logger.Info("orchard daemon running",
		slog.String("mount_point", cfg.MountPoint),
		slog.String("control_addr", cfg.ControlAddr),
	)

	<-runCtx.Done()

	logger.Info("shutting down")

	if err := mgr.Unmount(); err != nil {
		logger.Error("unmount failed", slog.String("error", err.Error()))
	}

	mgr.Wait()
	engine.Stop()
	<-engineDone

	if err := <-controlDone; err != nil {
		logger.Error("control server shutdown error", slog.String("error", err.Error()))
	}

	return nil
}
