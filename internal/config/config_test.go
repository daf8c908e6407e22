package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "milkflow.toml", `
listen = "127.0.0.1:9000"

[milk]
capacity = 10
initial = 2.5
strict = true

[milk.refill]
amount = 0.5
period = "250ms"

[redis]
addr = "localhost:6379"
db = 2
key_ttl = "1h"

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Listen = "127.0.0.1:9000"
	want.Milk.Capacity = 10
	want.Milk.Initial = 2.5
	want.Milk.Strict = true
	want.Milk.Refill.Amount = 0.5
	want.Milk.Refill.Period = 250 * time.Millisecond
	want.Redis.Addr = "localhost:6379"
	want.Redis.DB = 2
	want.Redis.KeyTTL = time.Hour
	want.Log.LevelName = "debug"
	want.Log.Format = "json"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "milkflow.yaml", `
milk:
  capacity: 8
  withdraw_unit: 2
  refill:
    amount: 1
    cron: "@every 2s"
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Milk.Capacity = 8
	want.Milk.WithdrawUnit = 2
	want.Milk.Refill.Cron = "@every 2s"
	want.Metrics.Enabled = false

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyYAMLKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "milkflow.ini", "listen=:1"))
		require.Error(t, err)
		assert.True(t, mferrors.IsValidationError(err))
	})

	t.Run("unknown toml key", func(t *testing.T) {
		_, err := Load(writeFile(t, "milkflow.toml", "[milk]\ncapacty = 5\n"))
		assert.ErrorContains(t, err, "capacty")
	})

	t.Run("unknown yaml key", func(t *testing.T) {
		_, err := Load(writeFile(t, "milkflow.yaml", "milk:\n  capacty: 5\n"))
		assert.ErrorContains(t, err, "capacty")
	})

	t.Run("malformed toml", func(t *testing.T) {
		_, err := Load(writeFile(t, "milkflow.toml", "listen = \n"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "milkflow.toml", "[milk.refill]\nperiod = \"soon\"\n"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"zero capacity", func(c *Config) { c.Milk.Capacity = 0 }},
		{"initial above capacity", func(c *Config) { c.Milk.Initial = 6 }},
		{"negative initial", func(c *Config) { c.Milk.Initial = -1 }},
		{"zero withdraw unit", func(c *Config) { c.Milk.WithdrawUnit = 0 }},
		{"withdraw unit above capacity", func(c *Config) { c.Milk.WithdrawUnit = 6 }},
		{"zero refill amount", func(c *Config) { c.Milk.Refill.Amount = 0 }},
		{"zero refill period", func(c *Config) { c.Milk.Refill.Period = 0 }},
		{"bad cron", func(c *Config) { c.Milk.Refill.Cron = "whenever" }},
		{"zero amount with cron", func(c *Config) {
			c.Milk.Refill.Cron = "@every 1s"
			c.Milk.Refill.Amount = 0
		}},
		{"redis without key", func(c *Config) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.Key = ""
		}},
		{"redis without timeout", func(c *Config) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.Timeout = 0
		}},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"unknown log level", func(c *Config) { c.Log.LevelName = "loud" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, mferrors.IsValidationError(err), "got %T: %v", err, err)
		})
	}
}

func TestValidateCronIgnoresPeriod(t *testing.T) {
	cfg := Default()
	cfg.Milk.Refill.Cron = "*/2 * * * * *"
	cfg.Milk.Refill.Period = 0
	assert.NoError(t, cfg.Validate())
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Milk.Capacity = 7
	cfg.Milk.Initial = 3

	bucket := cfg.BucketConfig()
	assert.EqualValues(t, 7, bucket.Capacity)
	assert.EqualValues(t, 3, bucket.Initial)

	rate := cfg.RefillRate()
	assert.EqualValues(t, 1, rate.Amount)
	assert.Equal(t, time.Second, rate.Period)
}

func TestValidateSkipsDisabledRefill(t *testing.T) {
	cfg := Default()
	cfg.Milk.Refill.Enabled = false
	cfg.Milk.Refill.Amount = 0
	cfg.Milk.Refill.Period = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadRefillDisabled(t *testing.T) {
	cfg, err := Load(writeFile(t, "milkflow.toml", "[milk.refill]\nenabled = false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Milk.Refill.Enabled)
	assert.EqualValues(t, 1, cfg.Milk.Refill.Amount)
}

func TestDefaultReadsLogEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_FILE", "/var/log/milkflow.log")

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, slog.LevelWarn, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/log/milkflow.log", cfg.Log.File)

	// A config file still wins over the environment.
	cfg, err := Load(writeFile(t, "milkflow.yaml", "log:\n  level: debug\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}
