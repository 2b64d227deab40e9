package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelDebug)

	logger.Info("phase finished", "phase", "compile")

	output := buf.String()
	if !strings.Contains(output, "phase finished") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, "phase=compile") {
		t.Errorf("expected output to contain 'phase=compile', got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(Logger)
		want    string
	}{
		{"Debug", func(l Logger) { l.Debug("debug msg") }, "debug msg"},
		{"Info", func(l Logger) { l.Info("info msg") }, "info msg"},
		{"Warn", func(l Logger) { l.Warn("warn msg") }, "warn msg"},
		{"Error", func(l Logger) { l.Error("error msg") }, "error msg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewText(&buf, slog.LevelDebug)

			tt.logFunc(logger)

			output := buf.String()
			if !strings.Contains(output, tt.want) {
				t.Errorf("expected output to contain %q, got: %s", tt.want, output)
			}
			if !strings.Contains(output, strings.ToUpper(tt.name)) {
				t.Errorf("expected output to contain level %q, got: %s", tt.name, output)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("INFO entry should be filtered at WARN level, got: %s", output)
	}
	if !strings.Contains(output, "shown") {
		t.Errorf("WARN entry missing, got: %s", output)
	}
}

func TestForPackage(t *testing.T) {
	var buf bytes.Buffer
	logger := ForPackage(NewText(&buf, slog.LevelDebug), "zlib", "1.3.1", "stage2")

	logger.Warn("network isolation unavailable")

	output := buf.String()
	if !strings.Contains(output, "package=zlib-1.3.1") {
		t.Errorf("expected package attribute, got: %s", output)
	}
	if !strings.Contains(output, "stage=stage2") {
		t.Errorf("expected stage attribute, got: %s", output)
	}
}

func TestForPackageNilLogger(t *testing.T) {
	logger := ForPackage(nil, "zlib", "1.3.1", "none")
	if _, ok := logger.(noopLogger); !ok {
		t.Errorf("ForPackage(nil) = %T, want noopLogger", logger)
	}
}

func TestNoopLoggerWith(t *testing.T) {
	logger := NewNoop()
	logger.Debug("debug")
	logger.Error("error")

	child := logger.With("key", "value")
	if _, ok := child.(noopLogger); !ok {
		t.Error("expected With() on noopLogger to return noopLogger")
	}
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	Default().Info("should not panic")

	var buf bytes.Buffer
	SetDefault(NewText(&buf, slog.LevelDebug))
	Default().Info("custom logger message")

	if !strings.Contains(buf.String(), "custom logger message") {
		t.Errorf("expected custom logger to be used, got: %s", buf.String())
	}
}

func TestDefaultLoggerConcurrency(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				Default().Info("concurrent read")
			}
			done <- true
		}()
		go func() {
			for j := 0; j < 100; j++ {
				SetDefault(NewNoop())
			}
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
