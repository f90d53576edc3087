// Package metrics holds the Prometheus registry and HTTP exposition server
// shared by virtfs components.
//
// Metrics are optional. Until InitRegistry is called, constructors in the
// prometheus subpackage return nil recorders and components skip recording
// entirely.
//
// Usage:
//
//	metrics.InitRegistry()
//	rec := prometheus.New()
//	fsys, err := virtfs.New(url, virtfs.WithRecorder(rec))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry, with Go runtime and process
// collectors registered. Subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil before InitRegistry.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
