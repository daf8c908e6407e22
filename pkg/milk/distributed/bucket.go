package distributed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/milk"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

// Bucket is a milk.Bucket whose level lives in Redis, so that several
// application instances serve from the same stock. Every operation runs as a
// single Lua script and is therefore atomic across instances.
type Bucket struct {
	config Config
	keys   keys
	logger *slog.Logger

	availableScript *redis.Script
	fillScript      *redis.Script
	fulfillScript   *redis.Script
	withdrawScript  *redis.Script
}

// Stats holds shared bucket statistics.
type Stats struct {
	Level           unit.Liters
	Capacity        unit.Liters
	Withdrawals     int64
	Served          int64
	Refused         int64
	Fills           int64
	ActiveInstances []string
}

// New validates config, initializes the bucket keys if they do not exist yet
// and registers this instance.
func New(ctx context.Context, config Config) (*Bucket, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)

	b := &Bucket{
		config: config,
		keys:   newKeys(config.Key),
		logger: config.Logger.With("bucket", config.Key, "instance", config.InstanceID),

		availableScript: redis.NewScript(luaAvailable),
		fillScript:      redis.NewScript(luaFill),
		fulfillScript:   redis.NewScript(luaFulfill),
		withdrawScript:  redis.NewScript(luaWithdraw),
	}

	if err := b.initialize(ctx); err != nil {
		return nil, err
	}
	b.logger.Info("redis bucket ready", "capacity", float64(config.Capacity))
	return b, nil
}

// initialize sets up the initial state in Redis.
func (b *Bucket) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	pipe := b.config.Redis.Pipeline()

	// An existing level belongs to other instances and is kept.
	pipe.SetNX(ctx, b.keys.level, formatLiters(b.config.Initial), b.config.KeyTTL)

	pipe.HSet(ctx, b.keys.config, map[string]interface{}{
		"capacity": formatLiters(b.config.Capacity),
	})
	pipe.SAdd(ctx, b.keys.instances, b.config.InstanceID)
	if b.config.KeyTTL > 0 {
		pipe.Expire(ctx, b.keys.config, b.config.KeyTTL)
		pipe.Expire(ctx, b.keys.instances, b.config.KeyTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return backendError("initialize", b.config.Key, err)
	}
	return nil
}

// Capacity returns the maximum quantity the bucket can hold.
func (b *Bucket) Capacity() unit.Liters {
	return b.config.Capacity
}

// Available returns the shared level.
func (b *Bucket) Available(ctx context.Context) (unit.Liters, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	level, err := b.availableScript.Run(ctx, b.config.Redis, []string{b.keys.level}).Text()
	if err != nil {
		return 0, backendError("available", b.config.Key, err)
	}
	return parseLiters("available", b.config.Key, level)
}

// IsEmpty reports whether the shared level is at or below zero.
func (b *Bucket) IsEmpty(ctx context.Context) (bool, error) {
	level, err := b.Available(ctx)
	if err != nil {
		return false, err
	}
	return level <= 0, nil
}

// IsFull reports whether the shared level is at or above capacity.
func (b *Bucket) IsFull(ctx context.Context) (bool, error) {
	level, err := b.Available(ctx)
	if err != nil {
		return false, err
	}
	return level >= b.config.Capacity, nil
}

// FillBy adds amount to the shared level, saturating at capacity.
func (b *Bucket) FillBy(ctx context.Context, amount unit.Liters) error {
	if err := validation.ValidateAmount(module, "amount", float64(amount)); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	err := b.fillScript.Run(ctx, b.config.Redis, []string{b.keys.level, b.keys.stats},
		formatLiters(amount),
		formatLiters(b.config.Capacity),
		b.config.KeyTTL.Milliseconds(),
	).Err()
	if err != nil {
		return backendError("fill", b.config.Key, err)
	}
	return nil
}

// Fulfill sets the shared level to capacity.
func (b *Bucket) Fulfill(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	err := b.fulfillScript.Run(ctx, b.config.Redis, []string{b.keys.level},
		formatLiters(b.config.Capacity),
		b.config.KeyTTL.Milliseconds(),
	).Err()
	if err != nil {
		return backendError("fulfill", b.config.Key, err)
	}
	return nil
}

// WithdrawBy removes amount from the shared level if at least that much is
// available. Otherwise the level is unchanged and an empty Pack is returned.
func (b *Bucket) WithdrawBy(ctx context.Context, amount unit.Liters) (milk.Pack, error) {
	if err := validation.ValidateAmount(module, "amount", float64(amount)); err != nil {
		return milk.Pack{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	result, err := b.withdrawScript.Run(ctx, b.config.Redis, []string{b.keys.level, b.keys.stats},
		formatLiters(amount),
		b.config.KeyTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return milk.Pack{}, backendError("withdraw", b.config.Key, err)
	}

	// Script result: [served, level_after]
	if len(result) != 2 {
		return milk.Pack{}, backendError("withdraw", b.config.Key, fmt.Errorf("unexpected script result %v", result))
	}
	served, _ := result[0].(int64)
	if served != 1 {
		return milk.Pack{}, nil
	}

	after, _ := result[1].(string)
	b.logger.Debug("milk withdrawn", "amount", float64(amount), "after", after)
	return milk.PackOf(amount), nil
}

// Stats returns the shared level and counters of all instances.
func (b *Bucket) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	pipe := b.config.Redis.Pipeline()
	levelCmd := pipe.Get(ctx, b.keys.level)
	configCmd := pipe.HGetAll(ctx, b.keys.config)
	statsCmd := pipe.HGetAll(ctx, b.keys.stats)
	instancesCmd := pipe.SMembers(ctx, b.keys.instances)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, backendError("stats", b.config.Key, err)
	}

	level, _ := strconv.ParseFloat(levelCmd.Val(), 64)
	capacity := b.config.Capacity
	if stored, err := strconv.ParseFloat(configCmd.Val()["capacity"], 64); err == nil {
		capacity = unit.Liters(stored)
	}

	counters := lo.MapValues(statsCmd.Val(), func(v string, _ string) int64 {
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	})

	instances := instancesCmd.Val()
	slices.Sort(instances)

	return &Stats{
		Level:           unit.Liters(level),
		Capacity:        capacity,
		Withdrawals:     counters["withdrawals"],
		Served:          counters["served"],
		Refused:         counters["refused"],
		Fills:           counters["fills"],
		ActiveInstances: instances,
	}, nil
}

// Reset deletes the shared state and initializes it again from this
// instance's configuration.
func (b *Bucket) Reset(ctx context.Context) error {
	delCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	if err := b.config.Redis.Del(delCtx, b.keys.all()...).Err(); err != nil {
		return backendError("reset", b.config.Key, err)
	}
	return b.initialize(ctx)
}

// Close deregisters this instance. The shared level is left in place.
func (b *Bucket) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.Timeout)
	defer cancel()

	if err := b.config.Redis.SRem(ctx, b.keys.instances, b.config.InstanceID).Err(); err != nil {
		return backendError("close", b.config.Key, err)
	}
	b.logger.Info("redis bucket closed")
	return nil
}

// InstanceID returns the identifier this instance registered with.
func (b *Bucket) InstanceID() string {
	return b.config.InstanceID
}

func (b *Bucket) String() string {
	return fmt.Sprintf("distributed.Bucket{key=%s capacity=%g}", b.config.Key, float64(b.config.Capacity))
}

func backendError(operation, key string, err error) error {
	return mferrors.NewOperationError(module, operation, fmt.Errorf("%w: %w", mferrors.ErrBackend, err)).
		WithContext("key=" + key)
}

func parseLiters(operation, key, s string) (unit.Liters, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, backendError(operation, key, fmt.Errorf("malformed level %q", s))
	}
	return unit.Liters(f), nil
}

func formatLiters(l unit.Liters) string {
	return strconv.FormatFloat(float64(l), 'g', -1, 64)
}

var _ milk.Bucket = (*Bucket)(nil)
