package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "json").Info("hello", "conversation_id", "5511")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["conversation_id"] != "5511" {
		t.Fatalf("missing attribute in %v", entry)
	}

	buf.Reset()
	newLogger(&buf, "info", "text").Info("hello", "backend", "primary")
	if !strings.Contains(buf.String(), "backend=primary") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var l *Logger
	child := l.With("k", "v")
	if child == nil || child.Logger == nil {
		t.Fatal("expected usable child logger")
	}
}
