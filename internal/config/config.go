// Package config implements JSON configuration loading, validation, and
// platform-specific path resolution for orchard.
package config

import "time"

// ConflictPolicy controls how the sync engine resolves content conflicts.
type ConflictPolicy string

// Conflict policy values, per spec.md section 6.
const (
	ConflictLocalWins  ConflictPolicy = "local_wins"
	ConflictRemoteWins ConflictPolicy = "remote_wins"
	ConflictManual     ConflictPolicy = "manual"
)

// Config is the top-level configuration structure, decoded from the JSON
// file at DefaultConfigPath(), or at the path given explicitly or through
// the ORCHARD_CONFIG environment variable (see Load).
type Config struct {
	MountPoint  string `json:"mount_point"`
	CacheRoot   string `json:"cache_root"`
	DBPath      string `json:"db_path"`

	SmallFileThresholdBytes int64 `json:"small_file_threshold_bytes"`
	ChunkSizeBytes          int64 `json:"chunk_size_bytes"`
	CacheMaxBytes           int64 `json:"cache_max_bytes"`

	WorkerCountIO   int `json:"worker_count_io"`
	WorkerCountMeta int `json:"worker_count_meta"`

	ThumbnailerDenylist []string `json:"thumbnailer_denylist"`

	RetryBaseMS     int64 `json:"retry_base_ms"`
	RetryMaxMS      int64 `json:"retry_max_ms"`
	MaxRetries      int   `json:"max_retries"`
	ChunkReadTimeoutMS int64 `json:"chunk_read_timeout_ms"`

	ConflictPolicy ConflictPolicy `json:"conflict_policy"`

	TombstoneRetentionDays int `json:"tombstone_retention_days"`

	// ControlAddr is the loopback address the control/query HTTP surface
	// binds to (spec.md section 6). Not part of the distilled spec's
	// enumerated options, but required to make the endpoints reachable;
	// defaults to an ephemeral loopback port.
	ControlAddr string `json:"control_addr"`

	Safety SafetyConfig `json:"safety"`
}

// SafetyConfig guards against mass-deletion relays being misread as a real
// remote delete-everything event (supplemented feature, SPEC_FULL.md section 10).
type SafetyConfig struct {
	BigDeleteMinItems   int     `json:"big_delete_min_items"`
	BigDeleteMaxCount   int     `json:"big_delete_max_count"`
	BigDeleteMaxPercent float64 `json:"big_delete_max_percent"`
}

// ChunkReadTimeout returns ChunkReadTimeoutMS as a time.Duration.
func (c *Config) ChunkReadTimeout() time.Duration {
	return time.Duration(c.ChunkReadTimeoutMS) * time.Millisecond
}

// RetryBase returns RetryBaseMS as a time.Duration.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// RetryMax returns RetryMaxMS as a time.Duration.
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMS) * time.Millisecond
}
