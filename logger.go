package socketsubject

import "log/slog"

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// scopedLogger appends a fixed set of key-value pairs to every entry.
// Works with any Logger, unlike slog.Logger.With.
type scopedLogger struct {
	logger Logger
	attrs  []any
}

func withAttrs(logger Logger, attrs ...any) Logger {
	if s, ok := logger.(*scopedLogger); ok {
		merged := make([]any, 0, len(s.attrs)+len(attrs))
		merged = append(merged, s.attrs...)
		merged = append(merged, attrs...)
		return &scopedLogger{logger: s.logger, attrs: merged}
	}
	return &scopedLogger{logger: logger, attrs: attrs}
}

func (s *scopedLogger) args(args []any) []any {
	out := make([]any, 0, len(s.attrs)+len(args))
	out = append(out, s.attrs...)
	return append(out, args...)
}

func (s *scopedLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, s.args(args)...) }
func (s *scopedLogger) Info(msg string, args ...any)  { s.logger.Info(msg, s.args(args)...) }
func (s *scopedLogger) Warn(msg string, args ...any)  { s.logger.Warn(msg, s.args(args)...) }
func (s *scopedLogger) Error(msg string, args ...any) { s.logger.Error(msg, s.args(args)...) }
