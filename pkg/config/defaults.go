package config

import (
	"strings"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backend factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyBackendsDefaults(&cfg.Backends)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyBackendsDefaults enables the memory backend when nothing is selected
// and fills in the sample values used for config file generation.
func applyBackendsDefaults(cfg *BackendsConfig) {
	if len(cfg.Enabled) == 0 {
		cfg.Enabled = []string{"mem"}
	}
	for i, s := range cfg.Enabled {
		cfg.Enabled[i] = strings.ToLower(strings.TrimSpace(s))
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Memory["exports"]; !ok {
		cfg.Memory["exports"] = []any{
			map[string]any{"host": "localhost", "path": "/export"},
		}
	}
	if _, ok := cfg.Badger["data_dir"]; !ok {
		cfg.Badger["data_dir"] = "/tmp/virtfs-badger"
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
