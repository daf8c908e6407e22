// Package logging builds the process slog.Logger from configuration or
// LOG_* environment variables.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ----------------- Config -----------------

type Config struct {
	// Level defaults to Info. Config files set it through LevelName.
	Level     slog.Level `toml:"-" yaml:"-"`
	LevelName string     `toml:"level" yaml:"level"`

	// Format is "text" or "json" (default "text").
	Format string `toml:"format" yaml:"format"`

	// File is the path to the log file; empty = no file.
	File       string `toml:"file" yaml:"file"`
	AlsoStderr bool   `toml:"also_stderr" yaml:"also_stderr"` // default true
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"` // default 50
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"` // default 3

	// SetAsDefault installs the logger with slog.SetDefault.
	SetAsDefault bool `toml:"set_as_default" yaml:"set_as_default"`

	// Stderr replaces os.Stderr as the console destination.
	Stderr io.Writer `toml:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		LevelName:  "info",
		Format:     "text",
		AlsoStderr: true,
		MaxSizeMB:  50,
		MaxBackups: 3,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Resolve parses LevelName into Level and checks Format.
func (c *Config) Resolve() error {
	level, err := ParseLevel(c.LevelName)
	if err != nil {
		return err
	}
	c.Level = level

	switch strings.ToLower(c.Format) {
	case "json":
		c.Format = "json"
	case "text", "":
		c.Format = "text"
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

// NewConfigFromEnv reads LOG_* variables over DefaultConfig. Unparseable
// values keep their defaults. config.Default seeds its log section from it.
func NewConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if level, err := ParseLevel(v); err == nil {
			cfg.Level = level
			cfg.LevelName = strings.ToLower(v)
		}
	}

	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		cfg.Format = "json"
	case "text", "":
		cfg.Format = "text"
	}

	cfg.File = strings.TrimSpace(os.Getenv("LOG_FILE"))
	cfg.AlsoStderr = envBool(os.Getenv("LOG_STDERR"), true)
	cfg.MaxSizeMB = envInt(os.Getenv("LOG_MAX_SIZE_MB"), cfg.MaxSizeMB)

	cfg.SetAsDefault = true
	return cfg
}

func envBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return true
	case "0", "false", "f", "no", "n":
		return false
	default:
		return def
	}
}

func envInt(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// ----------------- Setup -----------------

// MultiHandler fans out to multiple slog.Handlers
type MultiHandler struct{ hs []slog.Handler }

// NewMultiHandler returns a handler writing every record to all of hs.
func NewMultiHandler(hs ...slog.Handler) MultiHandler {
	return MultiHandler{hs: hs}
}

func (m MultiHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithAttrs(attrs)
	}
	return MultiHandler{hs: out}
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithGroup(name)
	}
	return MultiHandler{hs: out}
}

// EnsureDir creates the parent directory of path if needed.
func EnsureDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a slog.Logger using cfg. The returned Closer releases the log
// file, if any; it is safe to call when no file is configured.
func New(cfg Config) (*slog.Logger, io.Closer) {
	handlers := make([]slog.Handler, 0, 2)
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := EnsureDir(cfg.File); err != nil {
			fmt.Fprintf(os.Stderr, "logging: file %q disabled: %v\n", cfg.File, err)
		} else {
			lj := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
			}
			closer = lj
			handlers = append(handlers, newHandler(lj, cfg.Format, opts))
		}
	}

	if cfg.AlsoStderr {
		var w io.Writer = os.Stderr
		if cfg.Stderr != nil {
			w = cfg.Stderr
		}
		handlers = append(handlers, newHandler(w, cfg.Format, opts))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		// fallback to stderr text
		h = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		h = handlers[0]
	default:
		h = NewMultiHandler(handlers...)
	}

	l := slog.New(h)
	if cfg.SetAsDefault {
		slog.SetDefault(l)
	}
	return l, closer
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
