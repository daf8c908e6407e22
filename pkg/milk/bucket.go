package milk

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

// Bucket holds a bounded, refillable quantity of milk.
//
// Every operation is linearizable: the level is read or mutated only while
// the bucket's exclusive lock is held. Operations block while the lock is
// contended and return ctx.Err() without any effect if ctx is done first.
type Bucket interface {
	// Capacity returns the maximum quantity the bucket can hold.
	Capacity() unit.Liters

	// Available returns the current level.
	Available(ctx context.Context) (unit.Liters, error)

	// IsEmpty reports whether the level is at or below zero.
	IsEmpty(ctx context.Context) (bool, error)

	// IsFull reports whether the level is at or above capacity.
	IsFull(ctx context.Context) (bool, error)

	// FillBy adds amount to the level, saturating at capacity.
	FillBy(ctx context.Context, amount unit.Liters) error

	// Fulfill sets the level to capacity.
	Fulfill(ctx context.Context) error

	// WithdrawBy removes amount if the bucket holds at least that much and
	// returns a Pack carrying it. Otherwise the level is left unchanged and
	// an empty Pack is returned. Insufficient stock is not an error.
	WithdrawBy(ctx context.Context, amount unit.Liters) (Pack, error)
}

// Pack is the receipt of a withdrawal: either the full requested quantity or
// nothing.
type Pack struct {
	quantity unit.Liters
}

// PackOf returns a Pack carrying l.
func PackOf(l unit.Liters) Pack {
	return Pack{quantity: l}
}

// Liters returns the quantity carried by the pack.
func (p Pack) Liters() unit.Liters {
	return p.quantity
}

// Empty reports whether the pack carries nothing.
func (p Pack) Empty() bool {
	return p.quantity <= 0
}

// Config holds configuration options for creating a new in-process Bucket.
type Config struct {
	// Capacity is the maximum number of liters the bucket can hold.
	Capacity unit.Liters

	// Initial is the starting level. It must not exceed Capacity.
	Initial unit.Liters

	// Name labels log records. Defaults to "milk".
	Name string

	// Logger receives withdrawal records at debug level. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration of the factory bucket: 5 liters
// capacity, starting empty.
func DefaultConfig() Config {
	return Config{
		Capacity: 5,
		Initial:  0,
		Name:     "milk",
	}
}

// LocalBucket is an in-process Bucket guarded by a FIFO lock.
type LocalBucket struct {
	// sem is a weight-1 semaphore used as a mutex; waiters are served in
	// arrival order and can give up through their context.
	sem      *semaphore.Weighted
	capacity unit.Liters
	level    unit.Liters
	name     string
	logger   *slog.Logger
}

// New creates a bucket with the given capacity and initial level.
func New(capacity, initial unit.Liters) (*LocalBucket, error) {
	cfg := DefaultConfig()
	cfg.Capacity = capacity
	cfg.Initial = initial
	return NewWithConfig(cfg)
}

// NewWithConfig creates a bucket from config. It returns a validation error
// if Capacity is not positive and finite or Initial lies outside [0, Capacity].
func NewWithConfig(config Config) (*LocalBucket, error) {
	if err := validation.ValidateFinite("milk", "capacity", float64(config.Capacity)); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveFloat("milk", "capacity", float64(config.Capacity)); err != nil {
		return nil, err
	}
	if err := validation.ValidateFinite("milk", "initial", float64(config.Initial)); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("milk", "initial", float64(config.Initial)); err != nil {
		return nil, err
	}
	if err := validation.ValidateAtMost("milk", "initial", float64(config.Initial), float64(config.Capacity)); err != nil {
		return nil, err
	}

	if config.Name == "" {
		config.Name = "milk"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalBucket{
		sem:      semaphore.NewWeighted(1),
		capacity: config.Capacity,
		level:    config.Initial,
		name:     config.Name,
		logger:   logger.With("bucket", config.Name),
	}, nil
}
