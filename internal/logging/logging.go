package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr whether to also write to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig returns configuration for debug mode.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a structured JSON logger writing to a rotating file per cfg,
// mirrored to stderr when cfg.WriteToStderr is set. The returned cleanup
// function flushes and closes the log file; callers hold it for the life of
// the process (the CLI wires it into the root command's post-run hook).
func Setup(cfg Config) (*slog.Logger, func(), error) {
	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return slog.New(handler), cleanup, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component names one of the indexing engine's subsystems, attached to log
// records so a single shared log file can be filtered by component without
// needing a separate logger per package.
type Component string

// The component tags used across the indexing engine's C1-C10 subsystems.
const (
	ComponentScanner      Component = "scanner"
	ComponentChunker      Component = "chunker"
	ComponentEmbed        Component = "embed"
	ComponentStore        Component = "store"
	ComponentSearch       Component = "search"
	ComponentOrchestrator Component = "orchestrator"
	ComponentConsistency  Component = "consistency"
	ComponentConfig       Component = "config"
)

// componentKey is the structured-logging attribute key under which Component
// values are recorded.
const componentKey = "component"

// For scopes a logger to a given component, so every record it emits carries
// a "component" attribute identifying which subsystem produced it.
func For(logger *slog.Logger, component Component) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String(componentKey, string(component)))
}
