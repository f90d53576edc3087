package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"

backends:
  enabled: ["mem"]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use an explicit missing path so the user's config is never read
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if !cfg.Backends.IsEnabled("mem") {
		t.Errorf("Expected memory backend enabled by default, got %v", cfg.Backends.Enabled)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
backends:
  enabled: ["nfs"]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown backend")
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"
metrics:
  port: 9100
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("VIRTFS_LOGGING_LEVEL", "WARN")
	t.Setenv("VIRTFS_METRICS_ENABLED", "true")
	t.Setenv("VIRTFS_BACKENDS_ENABLED", "mem,badger")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level from environment 'WARN', got %q", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled from environment")
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("Expected port from file 9100, got %d", cfg.Metrics.Port)
	}
	if !cfg.Backends.IsEnabled("badger") {
		t.Errorf("Expected badger enabled from environment, got %v", cfg.Backends.Enabled)
	}
}

func TestLoad_BackendSections(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
backends:
  enabled: ["mem", "s3"]
  memory:
    exports:
      - host: "server"
        path: "/data"
  s3:
    region: "eu-west-1"
    requests_per_second: 50
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Backends.S3["region"] != "eu-west-1" {
		t.Errorf("Expected s3 region 'eu-west-1', got %v", cfg.Backends.S3["region"])
	}
	exports, ok := cfg.Backends.Memory["exports"].([]any)
	if !ok || len(exports) != 1 {
		t.Fatalf("Expected one memory export, got %#v", cfg.Backends.Memory["exports"])
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if got := GetConfigDir(); got != filepath.Join(tmpDir, "virtfs") {
		t.Errorf("Expected config dir under XDG_CONFIG_HOME, got %q", got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join(tmpDir, "virtfs", "config.yaml") {
		t.Errorf("Unexpected default config path %q", got)
	}
	if ConfigExists() {
		t.Error("Expected no config file in a fresh directory")
	}
}
