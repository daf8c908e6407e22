package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LevelName = "debug"
	cfg.Format = "JSON"
	require.NoError(t, cfg.Resolve())
	assert.Equal(t, slog.LevelDebug, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	cfg.Format = "xml"
	assert.Error(t, cfg.Resolve())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_FILE", " /tmp/milkflow.log ")
	t.Setenv("LOG_STDERR", "no")
	t.Setenv("LOG_MAX_SIZE_MB", "7")

	cfg := NewConfigFromEnv()
	assert.Equal(t, slog.LevelWarn, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "/tmp/milkflow.log", cfg.File)
	assert.False(t, cfg.AlsoStderr)
	assert.Equal(t, 7, cfg.MaxSizeMB)
	assert.True(t, cfg.SetAsDefault)
}

func TestNewConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "shouting")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_STDERR", "maybe")
	t.Setenv("LOG_MAX_SIZE_MB", "lots")

	cfg := NewConfigFromEnv()
	assert.Equal(t, slog.LevelInfo, cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Empty(t, cfg.File)
	assert.True(t, cfg.AlsoStderr)
	assert.Equal(t, 50, cfg.MaxSizeMB)
}

func TestNewWritesToStderrWriter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.Stderr = &buf

	l, closer := New(cfg)
	defer closer.Close()

	l.Debug("hidden")
	l.Info("milk withdrawn", "amount", 1.0)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "milk withdrawn", rec["msg"])
	assert.Equal(t, 1.0, rec["amount"])
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "milkflow.log")

	var console bytes.Buffer
	cfg := DefaultConfig()
	cfg.File = path
	cfg.Stderr = &console

	l, closer := New(cfg)
	l.With("bucket", "milk").Warn("refill tick failed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refill tick failed")
	assert.Contains(t, string(data), "bucket=milk")
	assert.Contains(t, console.String(), "refill tick failed")
}

func TestMultiHandlerLevels(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	l := slog.New(h).WithGroup("milk")
	l.Info("tick", "n", 1)
	l.Error("broken")

	assert.Contains(t, debugBuf.String(), "milk.n=1")
	assert.Contains(t, debugBuf.String(), "broken")
	assert.NotContains(t, errorBuf.String(), "tick")
	assert.Contains(t, errorBuf.String(), "broken")
}

func TestSetAsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Stderr = &buf
	cfg.SetAsDefault = true

	l, _ := New(cfg)
	assert.Same(t, l, slog.Default())
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

func TestEnsureDir(t *testing.T) {
	require.NoError(t, EnsureDir(""))
	require.NoError(t, EnsureDir("plain.log"))

	path := filepath.Join(t.TempDir(), "a", "b", "c.log")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
