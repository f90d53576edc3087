package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_EmptyOutput(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Output = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for empty log output")
	}
}

func TestValidate_MetricsPort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"Valid", 9090, false},
		{"Zero", 0, true},
		{"TooLarge", 70000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Metrics.Port = tt.port

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Errorf("Expected validation error for port %d", tt.port)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected port %d to be valid, got: %v", tt.port, err)
			}
		})
	}
}

func TestValidate_Backends(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
		wantErr string
	}{
		{"AllKnown", []string{"mem", "badger", "s3"}, ""},
		{"Unknown", []string{"nfs"}, "oneof"},
		{"Duplicate", []string{"mem", "mem"}, "duplicate backend"},
		{"None", []string{}, "at least one backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Backends.Enabled = tt.enabled

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid backends, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
