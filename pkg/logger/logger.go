// Package logger provides leveled, printf-style logging with a replaceable sink.
//
// Severities follow the syslog ordering, from Emerg (most severe) to Debug.
// A message is emitted when its level is at or above the logger's threshold,
// i.e. when level <= threshold in numeric terms.
//
// Two usage styles are supported:
//   - Package-level functions (Info, Error, ...) write through a process-wide
//     default Logger, convenient for backends and command-line tools.
//   - Explicit *Logger values, created with New, injected into filesystem
//     handles so tests and embedders can capture output without touching
//     global state.
package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a syslog-style severity.
type Level int

const (
	LevelEmerg Level = iota
	LevelAlert
	LevelCrit
	LevelErr
	LevelWarning
	LevelNotice
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelEmerg:
		return "EMERG"
	case LevelAlert:
		return "ALERT"
	case LevelCrit:
		return "CRIT"
	case LevelErr:
		return "ERROR"
	case LevelWarning:
		return "WARN"
	case LevelNotice:
		return "NOTICE"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level.
//
// Both the syslog names (emerg, alert, crit, err, warning, notice, info,
// debug) and the short forms used in configuration files (ERROR, WARN) are
// accepted, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EMERG", "EMERGENCY":
		return LevelEmerg, nil
	case "ALERT":
		return LevelAlert, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	case "ERR", "ERROR":
		return LevelErr, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "NOTICE":
		return LevelNotice, nil
	case "INFO":
		return LevelInfo, nil
	case "DEBUG":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Sink consumes a fully formatted message of the given severity.
type Sink func(level Level, msg string)

// WriterSink returns a Sink writing timestamped lines to w.
//
// Line format: "[2006-01-02 15:04:05] [LEVEL] message".
func WriterSink(w io.Writer) Sink {
	out := stdlog.New(w, "", 0)
	return func(level Level, msg string) {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		out.Println(fmt.Sprintf("[%s] [%s] ", timestamp, level.String()) + msg)
	}
}

// DefaultSink writes to the process error stream.
func DefaultSink() Sink {
	return WriterSink(os.Stderr)
}

// Logger routes leveled messages to a Sink.
//
// A Logger is safe for concurrent use; the sink may be swapped at any time.
type Logger struct {
	mu        sync.RWMutex
	sink      Sink
	threshold Level
}

// New creates a Logger. A nil sink selects DefaultSink.
func New(sink Sink, threshold Level) *Logger {
	if sink == nil {
		sink = DefaultSink()
	}
	return &Logger{sink: sink, threshold: threshold}
}

// Discard returns a Logger that drops every message.
func Discard() *Logger {
	return New(func(Level, string) {}, LevelDebug)
}

// SetSink replaces the sink. A nil sink restores DefaultSink.
func (l *Logger) SetSink(sink Sink) {
	if sink == nil {
		sink = DefaultSink()
	}
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

// SetThreshold sets the least severe level that is still emitted.
func (l *Logger) SetThreshold(level Level) {
	l.mu.Lock()
	l.threshold = level
	l.mu.Unlock()
}

// Threshold returns the current threshold.
func (l *Logger) Threshold() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// Enabled reports whether messages at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level <= l.Threshold()
}

// Logf formats and emits a message at the given level.
func (l *Logger) Logf(level Level, format string, v ...any) {
	l.mu.RLock()
	sink, threshold := l.sink, l.threshold
	l.mu.RUnlock()

	if level > threshold {
		return
	}
	sink(level, fmt.Sprintf(format, v...))
}

func (l *Logger) Emerg(format string, v ...any) { l.Logf(LevelEmerg, format, v...) }
func (l *Logger) Alert(format string, v ...any) { l.Logf(LevelAlert, format, v...) }
func (l *Logger) Crit(format string, v ...any) { l.Logf(LevelCrit, format, v...) }
func (l *Logger) Error(format string, v ...any) { l.Logf(LevelErr, format, v...) }
func (l *Logger) Warn(format string, v ...any) { l.Logf(LevelWarning, format, v...) }
func (l *Logger) Notice(format string, v ...any) { l.Logf(LevelNotice, format, v...) }
func (l *Logger) Info(format string, v ...any) { l.Logf(LevelInfo, format, v...) }
func (l *Logger) Debug(format string, v ...any) { l.Logf(LevelDebug, format, v...) }

var std = New(nil, LevelInfo)

// Default returns the process-wide Logger used by the package-level functions.
func Default() *Logger {
	return std
}

// SetSink replaces the sink of the default Logger.
func SetSink(sink Sink) {
	std.SetSink(sink)
}

// SetLevel sets the default Logger's threshold from a level name.
// Unknown names leave the threshold unchanged.
func SetLevel(level string) {
	if l, err := ParseLevel(level); err == nil {
		std.SetThreshold(l)
	}
}

func Debug(format string, v ...any) {
	std.Logf(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	std.Logf(LevelInfo, format, v...)
}

func Notice(format string, v ...any) {
	std.Logf(LevelNotice, format, v...)
}

func Warn(format string, v ...any) {
	std.Logf(LevelWarning, format, v...)
}

func Error(format string, v ...any) {
	std.Logf(LevelErr, format, v...)
}
