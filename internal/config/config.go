// Package config loads milkflowd configuration from TOML or YAML files.
// Command-line flags and MILKFLOW_* environment variables are layered on top
// by cmd/milkflowd.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/milkflow/internal/logging"
	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/milk"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

const module = "config"

// Config is the complete milkflowd configuration.
type Config struct {
	Listen  string         `toml:"listen" yaml:"listen"`
	Milk    Milk           `toml:"milk" yaml:"milk"`
	Redis   Redis          `toml:"redis" yaml:"redis"`
	Metrics Metrics        `toml:"metrics" yaml:"metrics"`
	Log     logging.Config `toml:"log" yaml:"log"`
}

// Milk configures the bucket and the withdrawal endpoint.
type Milk struct {
	Capacity     unit.Liters `toml:"capacity" yaml:"capacity"`
	Initial      unit.Liters `toml:"initial" yaml:"initial"`
	WithdrawUnit unit.Liters `toml:"withdraw_unit" yaml:"withdraw_unit"`

	// Strict answers 429 whenever the withdrawal itself comes back empty,
	// not only when the pre-check finds the bucket empty.
	Strict bool `toml:"strict" yaml:"strict"`

	Refill Refill `toml:"refill" yaml:"refill"`
}

// Refill configures the background refill task. Cron, when set, replaces Period.
// Instances sharing a Redis bucket should enable it on one of them only.
type Refill struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`

	Amount unit.Liters   `toml:"amount" yaml:"amount"`
	Period time.Duration `toml:"period" yaml:"period"`
	Cron   string        `toml:"cron" yaml:"cron"`
}

// Redis selects the shared bucket backend. An empty Addr keeps the bucket in process.
type Redis struct {
	Addr     string        `toml:"addr" yaml:"addr"`
	Password string        `toml:"password" yaml:"password"`
	DB       int           `toml:"db" yaml:"db"`
	Key      string        `toml:"key" yaml:"key"`
	Timeout  time.Duration `toml:"timeout" yaml:"timeout"`
	KeyTTL   time.Duration `toml:"key_ttl" yaml:"key_ttl"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Default returns the factory configuration: a 5 liter bucket starting
// empty, refilled with 1 liter every second, withdrawing 1 liter per request.
// The log section starts from the LOG_* environment variables.
func Default() Config {
	return Config{
		Listen: ":8000",
		Milk: Milk{
			Capacity:     5,
			Initial:      0,
			WithdrawUnit: 1,
			Refill: Refill{
				Enabled: true,
				Amount:  1,
				Period: time.Second,
			},
		},
		Redis: Redis{
			Key:     "milkflow:milk",
			Timeout: 500 * time.Millisecond,
			KeyTTL:  24 * time.Hour,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: logging.NewConfigFromEnv(),
	}
}

// Load reads path over Default. The format is chosen by extension: .toml,
// .yaml or .yml. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = decodeTOML(data, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	default:
		return cfg, mferrors.NewValidationError(module, "path", path, "unsupported extension "+ext).
			WithHint("use a .toml, .yaml or .yml file")
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys %v", undecoded)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section and resolves the log level name.
func (c *Config) Validate() error {
	if err := validation.ValidateNotEmpty(module, "listen", c.Listen); err != nil {
		return err
	}

	bucket := c.BucketConfig()
	if _, err := milk.NewWithConfig(bucket); err != nil {
		return err
	}
	if err := validation.ValidateFinite(module, "milk.withdraw_unit", float64(c.Milk.WithdrawUnit)); err != nil {
		return err
	}
	if err := validation.ValidatePositiveFloat(module, "milk.withdraw_unit", float64(c.Milk.WithdrawUnit)); err != nil {
		return err
	}
	if err := validation.ValidateAtMost(module, "milk.withdraw_unit", float64(c.Milk.WithdrawUnit), float64(c.Milk.Capacity)); err != nil {
		return err
	}

	switch {
	case !c.Milk.Refill.Enabled:
	case c.Milk.Refill.Cron != "":
		if _, err := milk.ParseCron(c.Milk.Refill.Cron); err != nil {
			return err
		}
		if err := validation.ValidatePositiveFloat(module, "milk.refill.amount", float64(c.Milk.Refill.Amount)); err != nil {
			return err
		}
	default:
		if err := c.RefillRate().Validate(); err != nil {
			return err
		}
	}

	if c.Redis.Addr != "" {
		if err := validation.ValidateNotEmpty(module, "redis.key", c.Redis.Key); err != nil {
			return err
		}
		if err := validation.ValidatePositiveDuration(module, "redis.timeout", c.Redis.Timeout); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return mferrors.NewValidationError(module, "metrics.path", c.Metrics.Path, "must start with /")
	}

	if err := c.Log.Resolve(); err != nil {
		return mferrors.NewValidationError(module, "log", c.Log.LevelName+"/"+c.Log.Format, err.Error())
	}
	return nil
}

// BucketConfig returns the in-process bucket configuration.
func (c *Config) BucketConfig() milk.Config {
	cfg := milk.DefaultConfig()
	cfg.Capacity = c.Milk.Capacity
	cfg.Initial = c.Milk.Initial
	return cfg
}

// RefillRate returns the configured refill amount and period.
func (c *Config) RefillRate() milk.RefillRate {
	return milk.RefillRate{Amount: c.Milk.Refill.Amount, Period: c.Milk.Refill.Period}
}
