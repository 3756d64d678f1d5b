package logging

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options selects how log records are rendered and where they go.
type Options struct {
	// Buffer holds all output back until SetOutput is called. The TUI
	// uses this so nothing is lost before its log pane exists.
	Buffer bool
	Level  string
	Format string
	// File, if set, receives a copy of every record.
	File string
}

// teeWriter buffers or forwards output and always copies it to the
// optional log file.
type teeWriter struct {
	mu        sync.Mutex
	pending   bytes.Buffer
	target    io.Writer
	file      *os.File
	buffering bool
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	switch {
	case w.buffering:
		w.pending.Write(p)
	case w.target != nil:
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var (
	writer *teeWriter
	level  = new(slog.LevelVar)
)

// ParseLevel maps a config string to a slog level, INFO if unknown.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the default slog logger.
func Init(opts Options) error {
	w := &teeWriter{buffering: opts.Buffer}
	if !opts.Buffer {
		w.target = os.Stderr
	}
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		w.file = file
	}
	if writer != nil {
		Close()
	}
	writer = w

	level.Set(ParseLevel(opts.Level))
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(opts.Format) == "json" {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetLevel changes the level of the installed logger.
func SetLevel(levelStr string) {
	level.Set(ParseLevel(levelStr))
}

// SetOutput flushes buffered output to target and continues writing
// there live.
func SetOutput(target io.Writer) error {
	if writer == nil {
		return errors.New("logging not initialised")
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.pending.Len() > 0 {
		if _, err := target.Write(writer.pending.Bytes()); err != nil {
			return err
		}
		writer.pending.Reset()
	}
	writer.target = target
	writer.buffering = false
	return nil
}

// Close releases the log file. Buffered output that never reached a
// live target goes to stderr unless the log file already has it, so
// that nothing is swallowed on exit.
func Close() error {
	if writer == nil {
		return nil
	}
	writer.mu.Lock()
	defer writer.mu.Unlock()

	var firstErr error
	if writer.pending.Len() > 0 && writer.file == nil {
		if _, err := os.Stderr.Write(writer.pending.Bytes()); err != nil {
			firstErr = err
		}
	}
	writer.pending.Reset()
	if writer.file != nil {
		if err := writer.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		writer.file = nil
	}
	return firstErr
}
