package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# virtfs Configuration File
#
# Environment variables override these settings, e.g.
#   VIRTFS_LOGGING_LEVEL=DEBUG
#   VIRTFS_BACKENDS_ENABLED=mem,badger
#
# Backends:
#   mem     in-process volumes, mem://host/export/path
#   badger  BadgerDB volumes under data_dir, badger://volume/export/path
#   s3      S3-compatible endpoints, s3://endpoint/bucket/prefix/path

`

// InitConfig writes a configuration file with every default applied to the
// default location and returns its path.
//
// An existing file is only replaced when force is true.
func InitConfig(force bool) (string, error) {
	return InitConfigAt(GetDefaultConfigPath(), force)
}

// InitConfigAt writes the default configuration file to path.
func InitConfigAt(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(GetDefaultConfig()); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
