package config

// Default values for configuration options, forming "layer 0" of the
// four-layer override chain (defaults -> file -> environment -> CLI flags).
const (
	defaultSmallFileThresholdBytes = 33554432 // 32 MiB
	defaultChunkSizeBytes          = 8388608  // 8 MiB
	defaultCacheMaxBytes           = 20 * 1024 * 1024 * 1024 // 20 GiB

	defaultWorkerCountIO   = 8
	defaultWorkerCountMeta = 2

	defaultRetryBaseMS        = 500
	defaultRetryMaxMS         = 60_000
	defaultMaxRetries         = 8
	defaultChunkReadTimeoutMS = 60_000

	defaultConflictPolicy = ConflictLocalWins

	defaultTombstoneRetentionDays = 30

	defaultControlAddr = "127.0.0.1:0"

	defaultBigDeleteMinItems   = 10
	defaultBigDeleteMaxCount   = 1000
	defaultBigDeleteMaxPercent = 50
)

// DefaultConfig returns a Config populated with all default values. Used both
// as the starting point for JSON decoding (so unset fields retain defaults)
// and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		MountPoint:              DefaultMountPoint(),
		CacheRoot:               DefaultCacheDir(),
		DBPath:                  DefaultDBPath(),
		SmallFileThresholdBytes: defaultSmallFileThresholdBytes,
		ChunkSizeBytes:          defaultChunkSizeBytes,
		CacheMaxBytes:           defaultCacheMaxBytes,
		WorkerCountIO:           defaultWorkerCountIO,
		WorkerCountMeta:         defaultWorkerCountMeta,
		ThumbnailerDenylist:     []string{"ffmpeg-thumbnailer", "gnome-thumbnail*", "qlmanage"},
		RetryBaseMS:             defaultRetryBaseMS,
		RetryMaxMS:              defaultRetryMaxMS,
		MaxRetries:              defaultMaxRetries,
		ChunkReadTimeoutMS:      defaultChunkReadTimeoutMS,
		ConflictPolicy:          defaultConflictPolicy,
		TombstoneRetentionDays:  defaultTombstoneRetentionDays,
		ControlAddr:             defaultControlAddr,
		Safety: SafetyConfig{
			BigDeleteMinItems:   defaultBigDeleteMinItems,
			BigDeleteMaxCount:   defaultBigDeleteMaxCount,
			BigDeleteMaxPercent: defaultBigDeleteMaxPercent,
		},
	}
}
