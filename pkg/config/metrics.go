package config

import (
	"fmt"

	"github.com/marmos91/virtfs/pkg/backend/s3"
	"github.com/marmos91/virtfs/pkg/metrics"
	promMetrics "github.com/marmos91/virtfs/pkg/metrics/prometheus"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Recorder observes filesystem handle operations (nil if disabled)
	Recorder virtfs.Recorder

	// S3 observes requests sent by the S3 backend (nil if disabled)
	S3 s3.Metrics
}

// Options returns the handle options carrying the recorder, if any.
func (m *MetricsResult) Options() []virtfs.Option {
	if m == nil || m.Recorder == nil {
		return nil
	}
	return []virtfs.Option{virtfs.WithRecorder(m.Recorder)}
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed recorders for handles and the S3 backend
//
// If metrics are disabled every field of the result is nil and components
// skip recording entirely.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Addr: fmt.Sprintf(":%d", cfg.Metrics.Port),
	})

	return &MetricsResult{
		Server:   server,
		Recorder: promMetrics.New(),
		S3:       promMetrics.S3(),
	}
}
