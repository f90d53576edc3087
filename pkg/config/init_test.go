package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if configPath != filepath.Join(tmpDir, "virtfs", "config.yaml") {
		t.Errorf("Unexpected config path %q", configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# virtfs Configuration File",
		"logging:",
		"metrics:",
		"backends:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}

	// The generated file must load back into an equivalent valid config
	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}
	if loaded.Logging.Level != "INFO" || !loaded.Backends.IsEnabled("mem") {
		t.Errorf("Generated config did not round-trip defaults: %+v", loaded)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	if _, err := InitConfig(false); err == nil {
		t.Fatal("Expected error when config already exists")
	}

	if _, err := InitConfig(true); err != nil {
		t.Errorf("Expected force to overwrite, got: %v", err)
	}
}

func TestInitConfigAt_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "virtfs.yaml")

	if _, err := InitConfigAt(path, false); err != nil {
		t.Fatalf("InitConfigAt failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file at %s: %v", path, err)
	}
}
