package virtfs

import (
	"time"

	"github.com/marmos91/virtfs/pkg/logger"
)

// Recorder receives per-operation observations from filesystem handles.
//
// Implementations must be safe for concurrent use. A nil Recorder disables
// recording with zero overhead.
type Recorder interface {
	// RecordOperation records one completed operation.
	//
	// Parameters:
	//   - op: operation name ("connect", "stat", "read", ...)
	//   - scheme: URL scheme of the handle's backend
	//   - d: wall-clock duration of the operation
	//   - err: the operation's result (nil on success)
	RecordOperation(op, scheme string, d time.Duration, err error)

	// RecordBytes records payload bytes moved by read or write.
	RecordBytes(op, scheme string, n int)
}

// Option configures a filesystem handle.
type Option func(*options)

type options struct {
	registry  *Registry
	log       *logger.Logger
	threshold logger.Level
	recorder  Recorder
}

func defaultOptions() *options {
	return &options{
		registry:  DefaultRegistry(),
		log:       logger.Default(),
		threshold: logger.LevelInfo,
	}
}

// WithRegistry selects the driver registry consulted for the URL scheme.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithLogger injects the logger the handle writes diagnostics to.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLogLevel sets the handle's log-level threshold.
func WithLogLevel(level logger.Level) Option {
	return func(o *options) {
		o.threshold = level
	}
}

// WithRecorder attaches an operation recorder (e.g. Prometheus metrics).
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}
