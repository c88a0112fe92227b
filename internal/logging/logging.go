// Package logging provides the structured logger used across the settlement service.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Fields carries structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
)

// SetLevel sets the minimum level for every logger. Unknown names fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetOutput redirects all loggers to w. Used by tests and local tooling.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// LoggerV2 is a component-scoped structured logger.
type LoggerV2 struct {
	component string
}

// NewLoggerV2 creates a logger tagged with the given component name.
func NewLoggerV2(component string) *LoggerV2 {
	return &LoggerV2{component: component}
}

// With returns a logger for a sub-component.
func (l *LoggerV2) With(sub string) *LoggerV2 {
	return &LoggerV2{component: l.component + "." + sub}
}

func (l *LoggerV2) Debug(msg string, fields ...Fields) { l.log(slog.LevelDebug, msg, fields) }
func (l *LoggerV2) Info(msg string, fields ...Fields)  { l.log(slog.LevelInfo, msg, fields) }
func (l *LoggerV2) Warn(msg string, fields ...Fields)  { l.log(slog.LevelWarn, msg, fields) }
func (l *LoggerV2) Error(msg string, fields ...Fields) { l.log(slog.LevelError, msg, fields) }

// Fatal logs at error level and exits the process.
func (l *LoggerV2) Fatal(msg string, fields ...Fields) {
	l.log(slog.LevelError, msg, fields)
	os.Exit(1)
}

func (l *LoggerV2) log(lvl slog.Level, msg string, fields []Fields) {
	mu.RLock()
	h := handler
	mu.RUnlock()

	ctx := context.Background()
	if !h.Enabled(ctx, lvl) {
		return
	}

	logger := slog.New(h)
	attrs := []any{slog.String("component", l.component)}
	for _, f := range fields {
		keys := make([]string, 0, len(f))
		for k := range f {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, slog.Any(k, f[k]))
		}
	}
	logger.Log(ctx, lvl, msg, attrs...)
}

var std = NewLoggerV2("app")

// Info logs with the default logger.
func Info(msg string, fields ...Fields) { std.Info(msg, fields...) }
