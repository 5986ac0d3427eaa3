// Package logging owns the process logger: text on stderr from the start,
// plus a rotated JSON log file once the configuration is known.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLevel is the log level used when not configured.
const DefaultLevel = slog.LevelInfo

// ParseLevel converts "debug", "info", "warn" or "error" (any case) to a
// slog.Level. It returns (DefaultLevel, false) for anything else.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// FileOptions configures the rotated log file.
type FileOptions struct {
	// Path of the log file. Empty keeps logging on the console only.
	Path string

	// MaxSizeMB rotates the file once it reaches this size.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int
}

// Manager handles logger lifecycle including the bootstrap-to-full transition.
// Components obtain a logger via Logger() and keep it across Upgrade calls.
type Manager struct {
	console io.Writer
	handler *swappable
	logger  *slog.Logger
	level   *slog.LevelVar
	file    *lumberjack.Logger
	mu      sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithConsole replaces stderr as the console output.
func WithConsole(w io.Writer) Option {
	return func(m *Manager) {
		if w != nil {
			m.console = w
		}
	}
}

// NewManager creates a logging manager in bootstrap mode: text on the console
// at info level.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		console: os.Stderr,
		level:   new(slog.LevelVar),
	}
	m.level.Set(DefaultLevel)

	for _, opt := range opts {
		opt(m)
	}

	m.handler = newSwappable(m.consoleHandler())
	m.logger = slog.New(m.handler)
	return m
}

// Logger returns the process logger. It is stable across Upgrade calls.
func (m *Manager) Logger() *slog.Logger {
	return m.logger
}

// Upgrade sets the level and, when file.Path is set, adds a JSON log file
// rotated by size next to the console output.
func (m *Manager) Upgrade(file FileOptions, level slog.Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level.Set(level)

	if file.Path == "" {
		m.handler.swap(m.consoleHandler())
		return nil
	}

	dir := filepath.Dir(file.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %q; %w", dir, err)
	}

	// Open eagerly so a bad path fails here rather than on the first record.
	probe, err := os.OpenFile(file.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %q; %w", file.Path, err)
	}
	_ = probe.Close()

	if m.file != nil {
		_ = m.file.Close()
	}
	m.file = &lumberjack.Logger{
		Filename:   file.Path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
	}

	m.handler.swap(slogmulti.Fanout(
		m.consoleHandler(),
		slog.NewJSONHandler(m.file, &slog.HandlerOptions{Level: m.level, ReplaceAttr: redact}),
	))
	return nil
}

// Close closes the log file, if any. The console output stays usable.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler.swap(m.consoleHandler())
	if m.file != nil {
		err := m.file.Close()
		m.file = nil
		return err
	}
	return nil
}

func (m *Manager) consoleHandler() slog.Handler {
	return slog.NewTextHandler(m.console, &slog.HandlerOptions{Level: m.level, ReplaceAttr: redact})
}
