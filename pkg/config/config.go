package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete virtfs configuration.
//
// This structure captures everything a virtfs process needs before it can
// open handles:
//   - Logging configuration
//   - Metrics exposition
//   - Backend drivers to register and their driver-specific settings
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (VIRTFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Backend Configuration Pattern:
// Each backend defines its own configuration type, decoded by its factory
// from the matching section (backends.memory, backends.badger, backends.s3).
// Only the sections listed in backends.enabled are used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls the Prometheus exposition server
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Backends selects and configures the drivers registered for URL schemes
	Backends BackendsConfig `mapstructure:"backends" yaml:"backends"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the default threshold of the process logger
	// Valid values: DEBUG, INFO, NOTICE, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO NOTICE WARN ERROR debug info notice warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on operation recording and the HTTP exposition server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// BackendsConfig selects the drivers to register.
//
// Each section is decoded by the matching factory, so unknown keys are
// reported there rather than at load time.
type BackendsConfig struct {
	// Enabled lists the schemes to register
	// Valid values: mem, badger, s3
	Enabled []string `mapstructure:"enabled" yaml:"enabled" validate:"dive,oneof=mem badger s3"`

	// Memory contains memory backend configuration
	// Only used when "mem" is enabled
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB backend configuration
	// Only used when "badger" is enabled
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// S3 contains S3 backend configuration
	// Only used when "s3" is enabled
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// IsEnabled reports whether scheme is listed in Enabled.
func (b *BackendsConfig) IsEnabled(scheme string) bool {
	for _, s := range b.Enabled {
		if s == scheme {
			return true
		}
	}
	return false
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VIRTFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are the scalar keys that may be set from the environment even
// when the config file does not mention them.
var envKeys = []string{
	"logging.level",
	"logging.output",
	"metrics.enabled",
	"metrics.port",
	"backends.enabled",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use VIRTFS_ prefix and underscores
	// Example: VIRTFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("VIRTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/virtfs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist falls back to defaults too
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "virtfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "virtfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
