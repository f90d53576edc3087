package config

import (
	"fmt"
	"io"
	"os"

	"github.com/marmos91/virtfs/pkg/logger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ConfigureLogging points the process logger at cfg.Output and sets its
// threshold. The returned closer releases the log file, if one was opened.
func ConfigureLogging(cfg LoggingConfig) (io.Closer, error) {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		w, closer = f, f
	}

	logger.SetSink(logger.WriterSink(w))
	logger.SetLevel(cfg.Level)
	return closer, nil
}
