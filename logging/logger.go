// Package logging builds the slog loggers used across cloudops.
//
// Three formats are supported: json and text use the standard slog handlers,
// console uses charmbracelet/log for colourised terminal output. Activity logs
// can additionally be captured in memory through CapturingHandler so a run's
// history can show what each activity logged.
//
//	logger, err := logging.New(logging.Config{Level: "debug", Format: "console"})
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//	logger.Info("operation started", "handle", h)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text", "console"}
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level" toml:"level"`
	// Format is one of json, text, console. Defaults to json.
	Format string `yaml:"format" toml:"format"`
	// Output is stdout, stderr or a file path. Defaults to stderr.
	Output    string `yaml:"output" toml:"output"`
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks Level and Format. Empty values are accepted.
func (c Config) Validate() error {
	if c.Level != "" && !slices.Contains(validLevels, strings.ToLower(c.Level)) {
		return fmt.Errorf("level must be one of: %s", strings.Join(validLevels, ", "))
	}
	if c.Format != "" && !slices.Contains(validFormats, c.Format) {
		return fmt.Errorf("format must be one of: %s", strings.Join(validFormats, ", "))
	}
	return nil
}

// Logger is an slog.Logger that owns its output.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a logger for cfg.
func New(cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg.SetDefaults()

	level := parseLevel(cfg.Level)

	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger: slog.New(newHandler(w, cfg.Format, level, cfg.AddSource)),
		closer: closer,
	}, nil
}

// NewWithWriter creates a logger writing to w, mainly for tests and embedding.
func NewWithWriter(w io.Writer, cfg Config) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	cfg.SetDefaults()
	return &Logger{Logger: slog.New(newHandler(w, cfg.Format, parseLevel(cfg.Level), cfg.AddSource))}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func newHandler(w io.Writer, format string, level slog.Level, addSource bool) slog.Handler {
	switch format {
	case "console":
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			ReportCaller:    addSource,
			TimeFormat:      time.Kitchen,
		})
	case "text":
		return slog.NewTextHandler(w, handlerOptions(level, addSource))
	default:
		return slog.NewJSONHandler(w, handlerOptions(level, addSource))
	}
}

func handlerOptions(level slog.Level, addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
}

// parseLevel expects a validated level name.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", output, err)
	}
	return f, f, nil
}
