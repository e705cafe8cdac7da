// Package logging provides the application logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger with the key/value method surface used
// throughout the service.
type Logger struct {
	sl *zap.SugaredLogger
}

// NewLogger creates a production logger. Pass debug=true to lower the level
// and switch to the development encoder.
func NewLogger(debug bool) *Logger {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		// config is static; Build only fails on bad output paths
		l = zap.NewNop()
	}
	return &Logger{sl: l.Sugar()}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{sl: zap.NewNop().Sugar()}
}

// Debug logs a debug message with alternating key/value args.
func (l *Logger) Debug(msg string, args ...any) { l.sl.Debugw(msg, args...) }

// Info logs an informational message with alternating key/value args.
func (l *Logger) Info(msg string, args ...any) { l.sl.Infow(msg, args...) }

// Warn logs a warning with alternating key/value args.
func (l *Logger) Warn(msg string, args ...any) { l.sl.Warnw(msg, args...) }

// Error logs an error message with alternating key/value args.
func (l *Logger) Error(msg string, args ...any) { l.sl.Errorw(msg, args...) }

// Sync flushes buffered log entries.
func (l *Logger) Sync() error { return l.sl.Sync() }
