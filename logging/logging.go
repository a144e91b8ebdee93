// Package logging wraps github.com/charmbracelet/log behind the leveled,
// subsystem-filtered API the rest of this module calls through: a
// nil-safe *Logger, so version.New, doublearray.New, and the merge
// engine can all be driven without a caller configuring one. Adapted
// from the teacher's logging/logging.go, trimmed of the raw stdout/
// stderr passthrough and syslog-redirect surface that a diagnostic-CLI-
// plus-library module (spec.md's Non-goals exclude a control-plane/CLI
// surface of its own) has no caller for.
package logging

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is a leveled, subsystem-filtered logger over two underlying
// writers (info/debug/trace to one, warn/error to the other). A nil
// *Logger is valid: every method on it is a no-op.
type Logger struct {
	EnabledInfo    bool
	EnabledTracing string

	muTraceSubsystems sync.Mutex
	traceSubsystems   map[string]bool

	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
	traceLogger *log.Logger
}

// NewLogger builds a Logger whose info/debug/trace levels write to
// stdout and whose warn/error levels write to stderr.
func NewLogger(stdout, stderr io.Writer) *Logger {
	return &Logger{
		infoLogger:      log.NewWithOptions(stdout, log.Options{Level: log.InfoLevel, Prefix: "info", TimeFormat: time.RFC3339}),
		warnLogger:      log.NewWithOptions(stderr, log.Options{Level: log.WarnLevel, Prefix: "warn", TimeFormat: time.RFC3339}),
		debugLogger:     log.NewWithOptions(stdout, log.Options{Level: log.DebugLevel, Prefix: "debug", TimeFormat: time.RFC3339}),
		traceLogger:     log.NewWithOptions(stdout, log.Options{Level: log.DebugLevel, Prefix: "trace", TimeFormat: time.RFC3339}),
		errorLogger:     log.NewWithOptions(stderr, log.Options{Level: log.ErrorLevel, Prefix: "error", TimeFormat: time.RFC3339}),
		traceSubsystems: make(map[string]bool),
	}
}

// Info logs at info level, gated by EnableInfo; disabled by default.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil || !l.EnabledInfo {
		return
	}
	l.infoLogger.Printf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.warnLogger.Printf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.errorLogger.Printf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.debugLogger.Printf(format, args...)
}

// Trace logs at trace level for subsystem, gated by EnableTracing; the
// special subsystem "all" enables every subsystem at once.
func (l *Logger) Trace(subsystem, format string, args ...interface{}) {
	if l == nil || l.EnabledTracing == "" {
		return
	}
	l.muTraceSubsystems.Lock()
	_, enabled := l.traceSubsystems[subsystem]
	if !enabled {
		_, enabled = l.traceSubsystems["all"]
	}
	l.muTraceSubsystems.Unlock()
	if enabled {
		l.traceLogger.Printf(subsystem+": "+format, args...)
	}
}

func (l *Logger) EnableInfo() {
	if l == nil {
		return
	}
	l.EnabledInfo = true
}

func (l *Logger) EnableTracing(traces string) {
	if l == nil {
		return
	}
	l.EnabledTracing = traces
	l.traceSubsystems = make(map[string]bool)
	for _, subsystem := range strings.Split(traces, ",") {
		l.traceSubsystems[subsystem] = true
	}
}
