package logging

import (
	"log/slog"

	"github.com/rs/zerolog"
)

// DispatcherLogger lets the dispatcher and engine log through zerolog.
// Key-value pairs become event fields; pairs with a non-string key and an
// odd trailing key are dropped.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, kv ...any) { emit(l.logger.Debug(), msg, kv) }
func (l *DispatcherLogger) Info(msg string, kv ...any)  { emit(l.logger.Info(), msg, kv) }
func (l *DispatcherLogger) Warn(msg string, kv ...any)  { emit(l.logger.Warn(), msg, kv) }
func (l *DispatcherLogger) Error(msg string, kv ...any) { emit(l.logger.Error(), msg, kv) }

// emit is a no-op for events filtered by level or sampling.
func emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	if len(kv) > 1 {
		e = e.Fields(toFields(kv))
	}
	e.Msg(msg)
}

func toFields(kv []any) map[string]any {
	fields := make(map[string]any, len(kv)/2)
	for i := 1; i < len(kv); i += 2 {
		if key, ok := kv[i-1].(string); ok {
			fields[key] = kv[i]
		}
	}
	return fields
}

// SlogLogger adapts *slog.Logger to the same interface.
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Debug(msg string, kv ...any) { l.logger.Debug(msg, kv...) }
func (l *SlogLogger) Info(msg string, kv ...any)  { l.logger.Info(msg, kv...) }
func (l *SlogLogger) Warn(msg string, kv ...any)  { l.logger.Warn(msg, kv...) }
func (l *SlogLogger) Error(msg string, kv ...any) { l.logger.Error(msg, kv...) }
