package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"fmristage/internal/config"
)

// LogFileName is the file appended to inside the configured log directory.
const LogFileName = "fmristage.log"

// Options describes logger construction parameters. OutputPaths accepts
// "stdout", "stderr", or a file path; an empty list means stderr.
type Options struct {
	Level       string
	OutputPaths []string
	Development bool
}

// New constructs a console logger from opts. Caller locations are included at
// debug level or in development mode.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)

	w, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	return slog.New(newConsoleHandler(w, level, opts.Development || level <= slog.LevelDebug)), nil
}

// NewFromConfig logs to stderr and appends to LogFileName in the configured
// log directory. Stdout is left to command output such as plan tables.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}

	paths := []string{"stderr"}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		paths = append(paths, filepath.Join(dir, LogFileName))
	}
	return New(Options{Level: cfg.Logging.Level, OutputPaths: paths})
}

// NewHandler returns the console handler writing to w without caller
// locations.
func NewHandler(w io.Writer, level string) slog.Handler {
	return newConsoleHandler(w, parseLevel(level), false)
}

func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

func openOutputs(paths []string) (io.Writer, error) {
	var (
		seen    []string
		writers []io.Writer
	)
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || slices.Contains(seen, path) {
			continue
		}
		seen = append(seen, path)

		w, err := openOutput(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		return os.Stderr, nil
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openOutput(path string) (io.Writer, error) {
	switch path {
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
