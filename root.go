package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchardfs/orchard/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagControlAddr string
	flagJSON    bool
	flagVerbose bool
	flagDebug   bool
	flagQuiet   bool
)

// skipConfigAnnotation marks commands that PersistentPreRunE runs without
// loading configuration, such as `config write-default`, which must work
// before any config file exists.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles the resolved config and logger, built once in
// PersistentPreRunE so RunE handlers don't each re-derive them.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext extracts the CLIContext or panics — a RunE handler without
// skipConfigAnnotation is guaranteed one by PersistentPreRunE, so a miss here
// is a programmer error, not a runtime condition to handle gracefully.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command. Called once from main.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orchard",
		Short:         "Orchard iCloud Drive sync daemon",
		Long:          "Orchard projects iCloud Drive as a local filesystem via FUSE and keeps it synchronized against an authoritative local state database.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return loadCLIContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagControlAddr, "control-addr", "", "override the control API address (default from config)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newMountCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newPinCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves config via the four-layer chain and stores the
// result, plus a derived logger, on the command's context.
func loadCLIContext(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	if flagControlAddr != "" {
		cfg.ControlAddr = flagControlAddr
	}

	finalLogger := buildLogger(cfg)
	cc := &CLIContext{Cfg: cfg, Logger: finalLogger}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger configures an slog.Logger from CLI flags. cfg is nil for the
// pre-config bootstrap logger used while loading config itself.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		level = slog.LevelInfo
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
