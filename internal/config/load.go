package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load resolves the four-layer configuration chain: defaults, then the JSON
// config file (if present), then environment variables. CLI flag overrides
// are applied by callers after Load returns, mirroring the teacher's
// ResolvedDrive merge pattern but flattened to Orchard's single-mount model
// (there is no multi-drive/profile concept to resolve).
func Load(explicitPath string) (*Config, error) {
	cfg := DefaultConfig()

	path := explicitPath
	if path == "" {
		path = ReadEnvOverrides().ConfigPath
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	ApplyEnvOverrides(cfg, ReadEnvOverrides())

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// decodeFile decodes the JSON file at path into cfg, leaving cfg's existing
// (default) values for any field absent from the file. A missing file is not
// an error — it means "use defaults".
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return nil
}

// Write serializes cfg as indented JSON to path, creating parent directories
// as needed. Used by `orchard config write-default <path>` and tests.
func Write(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating %s: %w", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	return nil
}
