package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/virtfs/pkg/virtfs"
)

func TestRegisterDrivers_Default(t *testing.T) {
	cfg := GetDefaultConfig()
	reg := virtfs.NewRegistry()

	drivers, err := RegisterDrivers(cfg, reg, nil)
	if err != nil {
		t.Fatalf("RegisterDrivers failed: %v", err)
	}
	if drivers.Memory == nil {
		t.Fatal("Expected memory server to be created")
	}
	if drivers.Badger != nil || drivers.S3 != nil {
		t.Error("Expected only the memory backend to be created")
	}
	if _, ok := reg.Lookup("mem"); !ok {
		t.Error("Expected mem scheme to be registered")
	}

	fsys, err := virtfs.New("mem://localhost/export", virtfs.WithRegistry(reg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer fsys.Close()
	if err := fsys.Connect(context.Background()); err != nil {
		t.Fatalf("Connect to default export failed: %v", err)
	}
}

func TestRegisterDrivers_AllBackends(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Backends.Enabled = []string{"mem", "badger", "s3"}
	cfg.Backends.Badger = map[string]any{"in_memory": true, "create_exports": true}
	cfg.Backends.S3 = map[string]any{"region": "eu-west-1", "requests_per_second": 10}

	reg := virtfs.NewRegistry()
	drivers, err := RegisterDrivers(cfg, reg, &MetricsResult{})
	if err != nil {
		t.Fatalf("RegisterDrivers failed: %v", err)
	}
	if drivers.Badger == nil || drivers.S3 == nil || drivers.Memory == nil {
		t.Fatalf("Expected every backend to be created, got %+v", drivers)
	}

	schemes := reg.Schemes()
	if len(schemes) != 3 {
		t.Errorf("Expected three registered schemes, got %v", schemes)
	}

	fsys, err := virtfs.New("badger://vol/export", virtfs.WithRegistry(reg))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer fsys.Close()
	if err := fsys.Connect(context.Background()); err != nil {
		t.Fatalf("Connect to badger volume failed: %v", err)
	}
}

func TestRegisterDrivers_MemoryImport(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("imported"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := GetDefaultConfig()
	cfg.Backends.Memory = map[string]any{
		"exports": []any{
			map[string]any{"host": "srv", "path": "/data", "import": src},
		},
	}

	reg := virtfs.NewRegistry()
	if _, err := RegisterDrivers(cfg, reg, nil); err != nil {
		t.Fatalf("RegisterDrivers failed: %v", err)
	}

	f, err := virtfs.OpenURI(context.Background(), "mem://srv/data/a.txt", os.O_RDONLY, 0, virtfs.WithRegistry(reg))
	if err != nil {
		t.Fatalf("OpenURI failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "imported" {
		t.Errorf("Expected imported content, got %q", data)
	}
}

func TestRegisterDrivers_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name: "UnknownMemoryOption",
			mutate: func(cfg *Config) {
				cfg.Backends.Memory = map[string]any{"size": 10}
			},
			wantErr: "memory backend config",
		},
		{
			name: "RelativeExportPath",
			mutate: func(cfg *Config) {
				cfg.Backends.Memory = map[string]any{
					"exports": []any{map[string]any{"host": "h", "path": "export"}},
				}
			},
			wantErr: "startswith",
		},
		{
			name: "BadgerWithoutDataDir",
			mutate: func(cfg *Config) {
				cfg.Backends.Enabled = []string{"badger"}
				cfg.Backends.Badger = map[string]any{}
			},
			wantErr: "required_without",
		},
		{
			name: "S3PartialCredentials",
			mutate: func(cfg *Config) {
				cfg.Backends.Enabled = []string{"s3"}
				cfg.Backends.S3 = map[string]any{"access_key_id": "AKIA"}
			},
			wantErr: "required_with",
		},
		{
			name: "MissingImportDirectory",
			mutate: func(cfg *Config) {
				cfg.Backends.Memory = map[string]any{
					"exports": []any{map[string]any{"host": "h", "path": "/e", "import": "/nonexistent/virtfs"}},
				}
			},
			wantErr: "failed to import",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			_, err := RegisterDrivers(cfg, virtfs.NewRegistry(), nil)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	m := InitializeMetrics(cfg)
	if m.Server != nil || m.Recorder != nil || m.S3 != nil {
		t.Errorf("Expected no metrics components when disabled, got %+v", m)
	}
	if opts := m.Options(); len(opts) != 0 {
		t.Errorf("Expected no handle options when disabled, got %d", len(opts))
	}
}

func TestConfigureLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "virtfs.log")

	closer, err := ConfigureLogging(LoggingConfig{Level: "INFO", Output: logPath})
	if err != nil {
		t.Fatalf("ConfigureLogging failed: %v", err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("Expected log file to be created: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Restore the default sink for the remaining tests
	if _, err := ConfigureLogging(LoggingConfig{Level: "INFO", Output: "stderr"}); err != nil {
		t.Fatalf("ConfigureLogging failed: %v", err)
	}

	if _, err := ConfigureLogging(LoggingConfig{Level: "LOUD", Output: "stderr"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}
