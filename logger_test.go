package socketsubject

import (
	"log/slog"
	"reflect"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// mockLogger records the last entry per level.
type mockLogger struct {
	level    string
	lastMsg  string
	lastArgs []any
}

func (l *mockLogger) record(level, msg string, args []any) {
	l.level = level
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func TestWithAttrs(t *testing.T) {
	mock := &mockLogger{}
	logger := withAttrs(mock, "target", "unix:///x")

	logger.Info("connected", "addr", "peer")
	if mock.level != "info" || mock.lastMsg != "connected" {
		t.Errorf("got %s %q", mock.level, mock.lastMsg)
	}
	want := []any{"target", "unix:///x", "addr", "peer"}
	if !reflect.DeepEqual(mock.lastArgs, want) {
		t.Errorf("args = %v, want %v", mock.lastArgs, want)
	}

	nested := withAttrs(logger, "generation", 2)
	nested.Warn("slow")
	want = []any{"target", "unix:///x", "generation", 2}
	if !reflect.DeepEqual(mock.lastArgs, want) {
		t.Errorf("nested args = %v, want %v", mock.lastArgs, want)
	}

	nested.Debug("d")
	if mock.level != "debug" {
		t.Errorf("level = %s, want debug", mock.level)
	}
	nested.Error("e")
	if mock.level != "error" {
		t.Errorf("level = %s, want error", mock.level)
	}
}

func TestWithAttrs_DoesNotAlias(t *testing.T) {
	mock := &mockLogger{}
	base := withAttrs(mock, "a", 1)

	one := withAttrs(base, "b", 2)
	two := withAttrs(base, "c", 3)

	one.Info("x")
	if !reflect.DeepEqual(mock.lastArgs, []any{"a", 1, "b", 2}) {
		t.Errorf("args = %v", mock.lastArgs)
	}
	two.Info("y")
	if !reflect.DeepEqual(mock.lastArgs, []any{"a", 1, "c", 3}) {
		t.Errorf("args = %v", mock.lastArgs)
	}
}
