package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/virtfs/pkg/backend/badger"
	"github.com/marmos91/virtfs/pkg/backend/memory"
	"github.com/marmos91/virtfs/pkg/backend/s3"
	"github.com/marmos91/virtfs/pkg/logger"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// Drivers holds the backends registered from configuration. Fields for
// backends that are not enabled are nil.
type Drivers struct {
	Memory *memory.Server
	Badger *badger.Driver
	S3     *s3.Driver
}

// MemoryBackendConfig is the decoded backends.memory section.
type MemoryBackendConfig struct {
	Exports []MemoryExportConfig `mapstructure:"exports" validate:"dive"`
}

// MemoryExportConfig describes one export created at startup.
type MemoryExportConfig struct {
	// Host is the URL authority serving the export
	Host string `mapstructure:"host" validate:"required"`

	// Path is the export path (e.g., "/export")
	Path string `mapstructure:"path" validate:"required,startswith=/"`

	// Import is a local directory copied into the export root
	Import string `mapstructure:"import"`
}

// BadgerBackendConfig is the decoded backends.badger section.
type BadgerBackendConfig struct {
	DataDir          string `mapstructure:"data_dir" validate:"required_without=InMemory"`
	CreateExports    bool   `mapstructure:"create_exports"`
	InMemory         bool   `mapstructure:"in_memory"`
	BlockCacheSizeMB int64  `mapstructure:"block_cache_size_mb" validate:"gte=0"`
	IndexCacheSizeMB int64  `mapstructure:"index_cache_size_mb" validate:"gte=0"`
}

// S3BackendConfig is the decoded backends.s3 section.
type S3BackendConfig struct {
	Region            string `mapstructure:"region"`
	AccessKeyID       string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey   string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`
	UseSSL            bool   `mapstructure:"use_ssl"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0"`
	RequestsPerSecond uint   `mapstructure:"requests_per_second"`
	Burst             uint   `mapstructure:"burst"`
}

// RegisterDrivers creates every enabled backend and binds it to its scheme
// in reg.
//
// Parameters:
//   - cfg: The complete virtfs configuration
//   - reg: Registry receiving the drivers
//   - m: Metrics components; may be nil
//
// Returns:
//   - *Drivers: The created backends, for callers that seed or close them
//   - error: Decoding, validation or registration error
func RegisterDrivers(cfg *Config, reg *virtfs.Registry, m *MetricsResult) (*Drivers, error) {
	drivers := &Drivers{}

	for _, scheme := range cfg.Backends.Enabled {
		var err error
		switch scheme {
		case memory.Scheme:
			drivers.Memory, err = createMemoryBackend(reg, cfg.Backends.Memory)
		case badger.Scheme:
			drivers.Badger, err = createBadgerBackend(reg, cfg.Backends.Badger)
		case s3.Scheme:
			var s3Metrics s3.Metrics
			if m != nil {
				s3Metrics = m.S3
			}
			drivers.S3, err = createS3Backend(reg, cfg.Backends.S3, s3Metrics)
		default:
			err = fmt.Errorf("unknown backend: %q", scheme)
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("Registered backend driver for scheme %s", scheme)
	}

	return drivers, nil
}

// decode strictly decodes a backend section into out and validates it.
func decode(name string, options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("failed to decode %s backend config: %w", name, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%s backend: %w", name, formatValidationError(err))
	}
	return nil
}

// createMemoryBackend creates the in-memory server and its exports.
func createMemoryBackend(reg *virtfs.Registry, options map[string]any) (*memory.Server, error) {
	var backendCfg MemoryBackendConfig
	if err := decode("memory", options, &backendCfg); err != nil {
		return nil, err
	}

	srv := memory.NewServer()
	for _, e := range backendCfg.Exports {
		exp := srv.AddExport(e.Host, e.Path)
		if e.Import == "" {
			continue
		}
		if err := exp.Import(e.Import); err != nil {
			return nil, fmt.Errorf("failed to import %s into mem://%s%s: %w", e.Import, e.Host, e.Path, err)
		}
		logger.Info("Imported %s into mem://%s%s", e.Import, e.Host, e.Path)
	}

	if err := memory.Register(reg, srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// createBadgerBackend creates the BadgerDB-backed driver.
func createBadgerBackend(reg *virtfs.Registry, options map[string]any) (*badger.Driver, error) {
	var backendCfg BadgerBackendConfig
	if err := decode("badger", options, &backendCfg); err != nil {
		return nil, err
	}

	return badger.Register(reg, badger.Config{
		DataDir:          backendCfg.DataDir,
		CreateExports:    backendCfg.CreateExports,
		InMemory:         backendCfg.InMemory,
		BlockCacheSizeMB: backendCfg.BlockCacheSizeMB,
		IndexCacheSizeMB: backendCfg.IndexCacheSizeMB,
	})
}

// createS3Backend creates the S3 driver. Clients are built per endpoint when
// a handle connects, so no network access happens here.
func createS3Backend(reg *virtfs.Registry, options map[string]any, m s3.Metrics) (*s3.Driver, error) {
	var backendCfg S3BackendConfig
	if err := decode("s3", options, &backendCfg); err != nil {
		return nil, err
	}

	d := s3.NewDriver(s3.Config{
		Region:            backendCfg.Region,
		AccessKeyID:       backendCfg.AccessKeyID,
		SecretAccessKey:   backendCfg.SecretAccessKey,
		UseSSL:            backendCfg.UseSSL,
		MaxRetries:        backendCfg.MaxRetries,
		RequestsPerSecond: backendCfg.RequestsPerSecond,
		Burst:             backendCfg.Burst,
		Metrics:           m,
	})
	if err := reg.Register(s3.Scheme, d); err != nil {
		return nil, err
	}
	return d, nil
}
