package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		for _, output := range []string{"stdout", "stderr", "journal", ""} {
			logger := New(config.LoggingConfig{Level: "info", Format: format, Output: output}, "1.0.0")
			if logger == nil {
				t.Fatalf("New(%q, %q) returned nil", format, output)
			}
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogger_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "2.3.4", false)

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if entry["service"] != "hars-imp" {
		t.Errorf("service = %v, want hars-imp", entry["service"])
	}
	if entry["version"] != "2.3.4" {
		t.Errorf("version = %v, want 2.3.4", entry["version"])
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want value", entry["key"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "dev", false)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "dev", false)

	logger.With("component", "power").Info("acquired")

	if !strings.Contains(buf.String(), `"component":"power"`) {
		t.Errorf("output missing component attr: %s", buf.String())
	}
}

func TestResolveOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		journal string
		want    string
	}{
		{"explicit stdout", "stdout", "8:123", OutputStdout},
		{"explicit stderr", "STDERR", "", OutputStderr},
		{"explicit journal", "journal", "", OutputJournal},
		{"empty under systemd", "", "8:123", OutputJournal},
		{"empty in a terminal", "", "", OutputStdout},
		{"unknown", "syslog", "", OutputStdout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(journalStreamEnv, tt.journal)
			if got := resolveOutput(tt.output); got != tt.want {
				t.Errorf("resolveOutput(%q) = %q, want %q", tt.output, got, tt.want)
			}
		})
	}
}

func TestLogger_JournalOmitsTime(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "dev", true)

	logger.Info("suspending")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if _, ok := entry["time"]; ok {
		t.Errorf("journal output has time field: %s", buf.String())
	}
	if entry["msg"] != "suspending" {
		t.Errorf("msg = %v, want suspending", entry["msg"])
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	if logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("Discard() should not enable debug")
	}
}
