package distributed

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

const module = "distributed"

// Config holds configuration for a Redis-backed bucket.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key is the Redis key prefix shared by every instance using this bucket
	Key string

	// Capacity is the maximum number of liters the bucket can hold
	Capacity unit.Liters

	// Initial is the level written when the bucket does not exist yet.
	// An existing level is never overwritten.
	Initial unit.Liters

	// InstanceID uniquely identifies this application instance
	InstanceID string

	// Timeout bounds every Redis round trip
	Timeout time.Duration

	// KeyTTL is how long idle keys live. Every write refreshes it; zero disables expiry.
	KeyTTL time.Duration

	// Logger receives lifecycle records. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration matching the in-process factory
// bucket: 5 liters capacity, starting empty.
func DefaultConfig() Config {
	return Config{
		Key:        "milkflow:milk",
		Capacity:   5,
		Initial:    0,
		InstanceID: generateInstanceID(),
		Timeout:    500 * time.Millisecond,
		KeyTTL:     24 * time.Hour,
	}
}

func validateConfig(config Config) error {
	if config.Redis == nil {
		return validation.ValidateNotNil(module, "redis", nil)
	}
	if err := validation.ValidateNotEmpty(module, "key", config.Key); err != nil {
		return err
	}
	if err := validation.ValidateFinite(module, "capacity", float64(config.Capacity)); err != nil {
		return err
	}
	if err := validation.ValidatePositiveFloat(module, "capacity", float64(config.Capacity)); err != nil {
		return err
	}
	if err := validation.ValidateFinite(module, "initial", float64(config.Initial)); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "initial", float64(config.Initial)); err != nil {
		return err
	}
	if err := validation.ValidateAtMost(module, "initial", float64(config.Initial), float64(config.Capacity)); err != nil {
		return err
	}
	if config.KeyTTL < 0 {
		return validation.ValidatePositiveDuration(module, "key_ttl", config.KeyTTL)
	}
	return nil
}

func applyConfigDefaults(config Config) Config {
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.Timeout <= 0 {
		config.Timeout = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

// generateInstanceID creates a unique identifier for this application instance.
func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "milkflow"
	}
	return hostname + "-" + uuid.NewString()
}

type keys struct {
	level     string
	config    string
	stats     string
	instances string
}

// newKeys derives the bucket's keys from prefix. The prefix is wrapped in a
// hash tag so that every key lands in one Redis Cluster slot, unless it
// already carries one.
func newKeys(prefix string) keys {
	if !hasHashTag(prefix) {
		prefix = "{" + prefix + "}"
	}
	return keys{
		level:     prefix + ":level",
		config:    prefix + ":config",
		stats:     prefix + ":stats",
		instances: prefix + ":instances",
	}
}

// hasHashTag reports whether key contains a non-empty {...} section, which
// Redis Cluster hashes instead of the whole key.
func hasHashTag(key string) bool {
	open := strings.IndexByte(key, '{')
	if open < 0 {
		return false
	}
	end := strings.IndexByte(key[open+1:], '}')
	return end > 0
}

func (k keys) all() []string {
	return []string{k.level, k.config, k.stats, k.instances}
}
