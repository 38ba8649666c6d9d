package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for log files.
const (
	maxLogSizeMB  = 10
	maxLogBackups = 3
	maxLogAgeDays = 28
	logDirPerm    = 0750
)

// Options configures New.
type Options struct {
	// Writer receives log output. Nil means os.Stderr.
	Writer io.Writer

	// Verbose logs at debug level. Otherwise Level is used.
	Verbose bool

	// Level is the minimum level when Verbose is false.
	// The zero value is slog.LevelInfo.
	Level slog.Level

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// File, when set, also writes the log to this path, rotated by size.
	File string
}

// New creates a sanitizing logger. The returned closer releases the log
// file and must be called when the logger is no longer used; it is a no-op
// when no file was configured.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), logDirPerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
			MaxAge:     maxLogAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	level := opts.Level
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewSecureHandler(handler)), closer, nil
}

// NewSecureLogger creates a text logger writing to w. Verbose logs at debug
// level, otherwise only warnings and errors are written.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	logger, _, _ := New(Options{Writer: w, Verbose: verbose, Level: slog.LevelWarn}) //nolint:errcheck // no file, cannot fail
	return logger
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	logger, _, _ := New(Options{Writer: w, Verbose: verbose, Level: slog.LevelWarn, JSON: true}) //nolint:errcheck // no file, cannot fail
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
