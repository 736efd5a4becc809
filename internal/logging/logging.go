// Package logging wires github.com/willibrandon/mtlog into a narrow
// interface so the rest of the bridge never imports mtlog directly.
package logging

import (
	"github.com/willibrandon/mtlog"
	"github.com/willibrandon/mtlog/core"
	"github.com/willibrandon/mtlog/sinks"
)

// Logger is the narrow surface internal packages depend on. Message
// templates follow mtlog's {PropertyName} convention.
type Logger interface {
	Debug(messageTemplate string, args ...any)
	Information(messageTemplate string, args ...any)
	Warning(messageTemplate string, args ...any)
	Error(messageTemplate string, args ...any)
	// For named to a session/workspace, returns a logger with that
	// property attached to every subsequent event.
	For(key string, value any) Logger
}

type mtlogLogger struct {
	l core.Logger
}

// New builds the process-wide logger. logPath may be empty, in which case
// only the console sink is attached. level is one of
// "debug"|"info"|"warn"|"error" (default "info").
func New(logPath string, level string) (Logger, error) {
	opts := []mtlog.Option{
		mtlog.WithMinimumLevel(parseLevel(level)),
		mtlog.WithSink(sinks.NewConsoleSink()),
	}
	if logPath != "" {
		fileSink, err := sinks.NewFileSink(logPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mtlog.WithSink(fileSink))
	}
	return &mtlogLogger{l: mtlog.New(opts...)}, nil
}

// NewNoop returns a Logger that discards everything; used in tests.
func NewNoop() Logger {
	return &mtlogLogger{l: mtlog.New(mtlog.WithMinimumLevel(core.FatalLevel))}
}

func parseLevel(level string) core.LogEventLevel {
	switch level {
	case "debug":
		return core.DebugLevel
	case "warn", "warning":
		return core.WarningLevel
	case "error":
		return core.ErrorLevel
	default:
		return core.InformationLevel
	}
}

func (m *mtlogLogger) Debug(messageTemplate string, args ...any)       { m.l.Debug(messageTemplate, args...) }
func (m *mtlogLogger) Information(messageTemplate string, args ...any) { m.l.Information(messageTemplate, args...) }
func (m *mtlogLogger) Warning(messageTemplate string, args ...any)     { m.l.Warning(messageTemplate, args...) }
func (m *mtlogLogger) Error(messageTemplate string, args ...any)       { m.l.Error(messageTemplate, args...) }

func (m *mtlogLogger) For(key string, value any) Logger {
	return &mtlogLogger{l: m.l.ForContext(key, value)}
}
