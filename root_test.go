package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/config"
)

func resetFlags(t *testing.T) {
	t.Helper()

	oldV, oldD, oldQ := flagVerbose, flagDebug, flagQuiet
	flagVerbose, flagDebug, flagQuiet = false, false, false

	t.Cleanup(func() {
		flagVerbose, flagDebug, flagQuiet = oldV, oldD, oldQ
	})
}

func TestBuildLogger_Default(t *testing.T) {
	resetFlags(t)

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_Verbose(t *testing.T) {
	resetFlags(t)
	flagVerbose = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Debug(t *testing.T) {
	resetFlags(t)
	flagDebug = true

	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Quiet(t *testing.T) {
	resetFlags(t)
	flagQuiet = true

	logger := buildLogger(nil)

	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
}

func TestBuildLogger_WithConfig(t *testing.T) {
	resetFlags(t)

	logger := buildLogger(config.DefaultConfig())

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"mount", "status", "conflicts", "resolve", "pin", "pause", "resume", "config"} {
		assert.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}

func TestNewRootCmd_MutuallyExclusiveFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--debug", "status"})

	err := cmd.Execute()
	require.Error(t, err)
}
