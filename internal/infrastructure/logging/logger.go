package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
)

const serviceName = "hars-imp"

// Output destinations.
const (
	OutputStdout  = "stdout"
	OutputStderr  = "stderr"
	OutputJournal = "journal"
)

// journalStreamEnv is set by systemd when stdout/stderr are connected to
// the journal.
const journalStreamEnv = "JOURNAL_STREAM"

// Logger wraps slog.Logger with the agent's default fields. It satisfies the
// small Logger interfaces declared by the internal packages.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from cfg.
//
// Output "journal" (or an empty output while running under systemd) writes
// to stderr without timestamps, since journald stamps every line itself.
func New(cfg config.LoggingConfig, version string) *Logger {
	switch resolveOutput(cfg.Output) {
	case OutputStderr:
		return newWithWriter(os.Stderr, cfg, version, false)
	case OutputJournal:
		return newWithWriter(os.Stderr, cfg, version, true)
	default:
		return newWithWriter(os.Stdout, cfg, version, false)
	}
}

func resolveOutput(output string) string {
	switch o := strings.ToLower(output); o {
	case OutputStdout, OutputStderr, OutputJournal:
		return o
	case "":
		if os.Getenv(journalStreamEnv) != "" {
			return OutputJournal
		}
	}
	return OutputStdout
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string, omitTime bool) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if omitTime {
		opts.ReplaceAttr = dropTime
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// parseLevel maps a config level to slog. Unknown values mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger that adds args to every record.
//
//	powerLog := logger.With("component", "power")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before the configuration is loaded: JSON at
// info level, journald-aware.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
