package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/virtfs/pkg/backend/s3"
	"github.com/marmos91/virtfs/pkg/metrics"
)

// s3Metrics is the Prometheus implementation of s3.Metrics.
//
// It counts S3 requests by API name and outcome, their latency, the payload
// bytes moved in each direction and the failures per API name.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// S3 returns S3 request metrics registered on the global registry, or nil
// when metrics are disabled.
func S3() s3.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewS3Metrics(metrics.GetRegistry())
}

// NewS3Metrics returns S3 request metrics registered on reg.
func NewS3Metrics(reg prometheus.Registerer) s3.Metrics {
	return &s3Metrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "virtfs_s3_operations_total",
				Help: "Total number of S3 requests by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "virtfs_s3_operation_duration_seconds",
				Help: "Duration of S3 requests in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
					30.0,  // 30s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "virtfs_s3_bytes_transferred_total",
				Help: "Total payload bytes transferred by S3 requests",
			},
			[]string{"direction"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "virtfs_s3_errors_total",
				Help: "Total number of failed S3 requests by operation type",
			},
			[]string{"operation"},
		),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(operation).Inc()
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytes(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}
