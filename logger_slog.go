package ethauth

import (
	"context"
	"log/slog"
)

// SlogLogger adapts a *slog.Logger to Logger. Arguments are key/value
// pairs passed through as attributes.
type SlogLogger struct {
	l *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger wraps l, falling back to slog.Default when nil
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, args ...any) {
	s.log(slog.LevelDebug, msg, args...)
}

func (s *SlogLogger) Info(msg string, args ...any) {
	s.log(slog.LevelInfo, msg, args...)
}

func (s *SlogLogger) Warn(msg string, args ...any) {
	s.log(slog.LevelWarn, msg, args...)
}

func (s *SlogLogger) Error(msg string, args ...any) {
	s.log(slog.LevelError, msg, args...)
}

// With returns a child logger that always includes the given pairs
func (s *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{l: s.l.With(args...)}
}

func (s *SlogLogger) log(level slog.Level, msg string, args ...any) {
	s.l.Log(context.Background(), level, msg, args...)
}
