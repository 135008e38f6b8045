package config

import (
	"errors"
	"fmt"
)

// Validation bounds.
const (
	minWorkers   = 1
	maxWorkers   = 256
	minRetries   = 0
	maxRetries   = 64
	minChunkSize = 1 << 16 // 64 KiB
)

// Validate checks all configuration values and returns every error found,
// joined, so users see a complete report in one pass (errors.Join, matching
// the teacher's accumulate-then-join validation style).
func Validate(cfg *Config) error {
	var errs []error

	if cfg.MountPoint == "" {
		errs = append(errs, errors.New("mount_point must not be empty"))
	}

	if cfg.CacheRoot == "" {
		errs = append(errs, errors.New("cache_root must not be empty"))
	}

	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}

	if cfg.ChunkSizeBytes < minChunkSize || !isPowerOfTwo(cfg.ChunkSizeBytes) {
		errs = append(errs, fmt.Errorf("chunk_size_bytes must be a power of two >= %d, got %d", minChunkSize, cfg.ChunkSizeBytes))
	}

	if cfg.SmallFileThresholdBytes <= 0 {
		errs = append(errs, errors.New("small_file_threshold_bytes must be positive"))
	}

	if cfg.WorkerCountIO < minWorkers || cfg.WorkerCountIO > maxWorkers {
		errs = append(errs, fmt.Errorf("worker_count_io must be between %d and %d, got %d", minWorkers, maxWorkers, cfg.WorkerCountIO))
	}

	if cfg.WorkerCountMeta < minWorkers || cfg.WorkerCountMeta > maxWorkers {
		errs = append(errs, fmt.Errorf("worker_count_meta must be between %d and %d, got %d", minWorkers, maxWorkers, cfg.WorkerCountMeta))
	}

	if cfg.MaxRetries < minRetries || cfg.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries must be between %d and %d, got %d", minRetries, maxRetries, cfg.MaxRetries))
	}

	if cfg.RetryBaseMS <= 0 || cfg.RetryMaxMS <= 0 || cfg.RetryBaseMS > cfg.RetryMaxMS {
		errs = append(errs, errors.New("retry_base_ms must be positive and <= retry_max_ms"))
	}

	if cfg.ChunkReadTimeoutMS <= 0 {
		errs = append(errs, errors.New("chunk_read_timeout_ms must be positive"))
	}

	switch cfg.ConflictPolicy {
	case ConflictLocalWins, ConflictRemoteWins, ConflictManual:
	default:
		errs = append(errs, fmt.Errorf("conflict_policy must be one of local_wins, remote_wins, manual; got %q", cfg.ConflictPolicy))
	}

	if cfg.TombstoneRetentionDays < 0 {
		errs = append(errs, errors.New("tombstone_retention_days must not be negative"))
	}

	errs = append(errs, validateSafety(&cfg.Safety)...)

	return errors.Join(errs...)
}

func validateSafety(s *SafetyConfig) []error {
	var errs []error

	if s.BigDeleteMinItems < 0 {
		errs = append(errs, errors.New("safety.big_delete_min_items must not be negative"))
	}

	if s.BigDeleteMaxPercent <= 0 || s.BigDeleteMaxPercent > 100 {
		errs = append(errs, errors.New("safety.big_delete_max_percent must be in (0, 100]"))
	}

	return errs
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}
