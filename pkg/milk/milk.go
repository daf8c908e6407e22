package milk

import (
	"context"
	"fmt"

	"github.com/vnykmshr/milkflow/pkg/common/validation"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

// Capacity returns the maximum quantity the bucket can hold.
func (b *LocalBucket) Capacity() unit.Liters {
	return b.capacity
}

// Available returns the current level.
func (b *LocalBucket) Available(ctx context.Context) (unit.Liters, error) {
	if err := b.lock(ctx); err != nil {
		return 0, err
	}
	defer b.unlock()
	return b.level, nil
}

// IsEmpty reports whether the level is at or below zero.
func (b *LocalBucket) IsEmpty(ctx context.Context) (bool, error) {
	level, err := b.Available(ctx)
	if err != nil {
		return false, err
	}
	return level <= 0, nil
}

// IsFull reports whether the level is at or above capacity.
func (b *LocalBucket) IsFull(ctx context.Context) (bool, error) {
	level, err := b.Available(ctx)
	if err != nil {
		return false, err
	}
	return level >= b.capacity, nil
}

// FillBy adds amount to the level, saturating at capacity.
func (b *LocalBucket) FillBy(ctx context.Context, amount unit.Liters) error {
	if err := validation.ValidateAmount("milk", "amount", float64(amount)); err != nil {
		return err
	}
	if err := b.lock(ctx); err != nil {
		return err
	}
	defer b.unlock()

	b.level = min(b.level+amount, b.capacity)
	return nil
}

// Fulfill sets the level to capacity.
func (b *LocalBucket) Fulfill(ctx context.Context) error {
	if err := b.lock(ctx); err != nil {
		return err
	}
	defer b.unlock()

	b.level = b.capacity
	return nil
}

// WithdrawBy removes amount if the bucket holds at least that much.
func (b *LocalBucket) WithdrawBy(ctx context.Context, amount unit.Liters) (Pack, error) {
	if err := validation.ValidateAmount("milk", "amount", float64(amount)); err != nil {
		return Pack{}, err
	}
	if err := b.lock(ctx); err != nil {
		return Pack{}, err
	}
	defer b.unlock()

	after := b.level - amount
	if after < 0 {
		return Pack{}, nil
	}

	b.level = after
	b.logger.Debug("milk withdrawn", "amount", float64(amount), "after", float64(after))
	return PackOf(amount), nil
}

func (b *LocalBucket) String() string {
	return fmt.Sprintf("milk.LocalBucket{name=%s capacity=%g}", b.name, float64(b.capacity))
}

func (b *LocalBucket) lock(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return b.sem.Acquire(ctx, 1)
}

func (b *LocalBucket) unlock() {
	b.sem.Release(1)
}
