package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ubuygold/puzzlebox/internal/config"
)

// New creates a new slog.Logger instance that writes to os.Stdout.
// If debug is true, the log level is set to Debug. Otherwise, it's set to Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a new slog.Logger instance with a specific writer.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewFromConfig creates a logger that writes to stdout and, when log.dir is
// set, to a size-rotated file named name.log inside that directory.
// The returned closer releases the file; it is a no-op without a log dir.
func NewFromConfig(cfg config.LogConfig, name string, debug bool) (*slog.Logger, io.Closer) {
	if cfg.Dir == "" {
		return New(debug), io.NopCloser(nil)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	return NewWithWriter(io.MultiWriter(os.Stdout, file), debug), file
}
