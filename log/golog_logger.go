package log

import (
	"fmt"

	"github.com/kataras/golog"
)

// GologLogger adapts a kataras/golog logger to the Logger interface, for
// deployments that want colored, leveled terminal output from the pipeline.
type GologLogger struct {
	backend *golog.Logger
	level   LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger at info level. The wrapper
// filters by its own level before handing messages to the backend.
func NewGologLogger(backend *golog.Logger) *GologLogger {
	return &GologLogger{
		backend: backend,
		level:   LogLevelInfo,
	}
}

// SetLevel changes the filter level on both the wrapper and the backend.
func (l *GologLogger) SetLevel(level LogLevel) {
	l.level = level
	l.backend.SetLevel(gologLevel(level))
}

// GetLevel returns the wrapper's current filter level.
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}

// Debug logs a debug message.
func (l *GologLogger) Debug(format string, v ...any) {
	if l.level <= LogLevelDebug {
		l.backend.Debug(fmt.Sprintf(format, v...))
	}
}

// Info logs an informational message.
func (l *GologLogger) Info(format string, v ...any) {
	if l.level <= LogLevelInfo {
		l.backend.Info(fmt.Sprintf(format, v...))
	}
}

// Warn logs a warning message.
func (l *GologLogger) Warn(format string, v ...any) {
	if l.level <= LogLevelWarn {
		l.backend.Warn(fmt.Sprintf(format, v...))
	}
}

// Error logs an error message.
func (l *GologLogger) Error(format string, v ...any) {
	if l.level <= LogLevelError {
		l.backend.Error(fmt.Sprintf(format, v...))
	}
}

func gologLevel(level LogLevel) string {
	switch level {
	case LogLevelDebug:
		return "debug"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelNone:
		return "disable"
	default:
		return "info"
	}
}
