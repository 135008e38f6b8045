package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(defaultChunkSizeBytes), cfg.ChunkSizeBytes)
	assert.Equal(t, ConflictLocalWins, cfg.ConflictPolicy)
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.MountPoint = filepath.Join(dir, "mnt")
	cfg.ConflictPolicy = ConflictRemoteWins

	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.MountPoint, loaded.MountPoint)
	assert.Equal(t, ConflictRemoteWins, loaded.ConflictPolicy)
}

func TestValidateRejectsNonPowerOfTwoChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSizeBytes = 1000

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power of two")
}

func TestValidateRejectsUnknownConflictPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConflictPolicy = "whatever"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict_policy")
}

func TestEnvOverridesApply(t *testing.T) {
	t.Setenv(EnvMountPoint, "/tmp/custom-mount")
	t.Setenv(EnvConflict, string(ConflictManual))

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg, ReadEnvOverrides())

	assert.Equal(t, "/tmp/custom-mount", cfg.MountPoint)
	assert.Equal(t, ConflictManual, cfg.ConflictPolicy)
}
