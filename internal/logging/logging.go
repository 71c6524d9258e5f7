// Package logging sets up structured JSON logging for the server via the
// standard library's log/slog, backed by a size-rotating file writer and an
// optional stderr tee.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls Setup.
type Options struct {
	Level         string // debug, info, warn, error
	FilePath      string // empty disables file logging
	MaxSizeMB     int
	MaxFiles      int
	WriteToStderr bool
}

// DefaultOptions mirrors the defaults used across the rest of the ambient
// stack: info level, 10MB rotation, 5 files kept, stderr tee on.
func DefaultOptions(dataDir string) Options {
	return Options{
		Level:         "info",
		FilePath:      dataDir + "/server.log",
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup builds a *slog.Logger per Options and returns a cleanup func that
// flushes and closes the underlying file.
func Setup(opts Options) (*slog.Logger, func(), error) {
	var (
		output io.Writer = os.Stderr
		closer func()    = func() {}
	)

	if opts.FilePath != "" {
		w, err := newRotatingWriter(opts.FilePath, opts.MaxSizeMB, opts.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		if opts.WriteToStderr {
			output = io.MultiWriter(w, os.Stderr)
		} else {
			output = w
		}
		closer = func() {
			_ = w.Sync()
			_ = w.Close()
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
	return slog.New(handler), closer, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
