package logger

import (
	"log"
	"log/slog"
)

// New returns a *log.Logger whose lines are emitted through base at level,
// tagged with the component name.
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}

// Printf adapts base to printf-style logger hooks such as kafka.LoggerFunc.
func Printf(base *slog.Logger, component string, level slog.Level) func(string, ...interface{}) {
	return New(base, component, level).Printf
}
