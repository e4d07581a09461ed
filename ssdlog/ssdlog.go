// Package ssdlog provides a small, pluggable structured-logging interface
// for the simulator: a tiny interface any backend can satisfy, a
// zero-allocation no-op default, and one shipped adapter (zerolog) wired
// in by default.
package ssdlog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the logging surface every component in this module depends on.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// noopLogger discards everything. It is the default until SetDefault is called.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

var defaultLogger struct {
	sync.RWMutex
	logger Logger
}

// SetDefault sets the package-level logger used by components constructed
// without an explicit logger.
func SetDefault(l Logger) {
	defaultLogger.Lock()
	defer defaultLogger.Unlock()
	defaultLogger.logger = l
}

// Default returns the current package-level logger, or a no-op logger if
// none has been set.
func Default() Logger {
	defaultLogger.RLock()
	defer defaultLogger.RUnlock()
	if defaultLogger.logger != nil {
		return defaultLogger.logger
	}
	return noopLogger{}
}

// zerologLogger adapts Logger to github.com/rs/zerolog.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger builds a Logger backed by zerolog, writing
// human-readable console output to stderr.
func NewZerologLogger(level zerolog.Level) Logger {
	return &zerologLogger{
		logger: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger(),
	}
}

// NewZerologLoggerFrom wraps an already-configured zerolog.Logger, for
// callers that want JSON output or custom writers.
func NewZerologLoggerFrom(l zerolog.Logger) Logger {
	return &zerologLogger{logger: l}
}

func (z *zerologLogger) event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}

func (z *zerologLogger) Debug(msg string, kv ...any) { z.event(z.logger.Debug(), msg, kv) }
func (z *zerologLogger) Info(msg string, kv ...any)  { z.event(z.logger.Info(), msg, kv) }
func (z *zerologLogger) Warn(msg string, kv ...any)  { z.event(z.logger.Warn(), msg, kv) }
func (z *zerologLogger) Error(msg string, kv ...any) { z.event(z.logger.Error(), msg, kv) }
