// Package prometheus provides Prometheus-backed recorders for virtfs
// handles and backends.
package prometheus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/virtfs/pkg/metrics"
	"github.com/marmos91/virtfs/pkg/virtfs"
)

// recorder is the Prometheus implementation of virtfs.Recorder.
type recorder struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
}

// New returns a recorder registered on the global registry, or nil when
// metrics are disabled.
func New() virtfs.Recorder {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewRecorder(metrics.GetRegistry())
}

// NewRecorder returns a recorder whose collectors are registered on reg.
func NewRecorder(reg prometheus.Registerer) virtfs.Recorder {
	return &recorder{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "virtfs_operations_total",
				Help: "Total number of virtfs operations by operation, scheme, status and error kind",
			},
			[]string{"operation", "scheme", "status", "kind"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "virtfs_operation_duration_seconds",
				Help: "Duration of virtfs operations in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1,      // 1s
					10,     // 10s
				},
			},
			[]string{"operation", "scheme"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "virtfs_bytes_total",
				Help: "Total payload bytes moved by read and write",
			},
			[]string{"operation", "scheme"},
		),
	}
}

func (r *recorder) RecordOperation(op, scheme string, d time.Duration, err error) {
	status, kind := "success", ""
	if err != nil {
		status, kind = "error", errorKind(err)
	}
	r.operationsTotal.WithLabelValues(op, scheme, status, kind).Inc()
	r.operationDuration.WithLabelValues(op, scheme).Observe(d.Seconds())
}

func (r *recorder) RecordBytes(op, scheme string, n int) {
	if n <= 0 {
		return
	}
	r.bytesTotal.WithLabelValues(op, scheme).Add(float64(n))
}

// errorKind labels err by its virtfs category, or "other" for errors that
// did not come from a handle.
func errorKind(err error) string {
	var e *virtfs.Error
	if !errors.As(err, &e) {
		return "other"
	}
	switch e.Kind {
	case virtfs.KindParse:
		return "parse"
	case virtfs.KindAllocation:
		return "allocation"
	case virtfs.KindConnect:
		return "connect"
	case virtfs.KindState:
		return "state"
	case virtfs.KindUnsupported:
		return "unsupported"
	case virtfs.KindBackend:
		return "backend"
	case virtfs.KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}
