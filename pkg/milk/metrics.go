package milk

import (
	"context"
	"sync/atomic"
	"time"

	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
	"github.com/vnykmshr/milkflow/pkg/metrics"
	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

// MetricsBucket wraps a Bucket with Prometheus metrics collection.
type MetricsBucket struct {
	bucket   Bucket
	name     string
	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool
}

// NewWithMetrics wraps bucket so that every operation is counted and timed
// under the given name. A nil registry selects metrics.DefaultRegistry.
func NewWithMetrics(bucket Bucket, name string, registry *metrics.Registry) *MetricsBucket {
	if registry == nil {
		registry = metrics.DefaultRegistry
	}
	mb := &MetricsBucket{
		bucket: bucket,
		name:   name,
	}
	mb.registry.Store(registry)
	mb.enabled.Store(true)
	registry.BucketCapacity.WithLabelValues(name).Set(float64(bucket.Capacity()))
	return mb
}

// Unwrap returns the decorated bucket.
func (mb *MetricsBucket) Unwrap() Bucket {
	return mb.bucket
}

// Capacity returns the maximum quantity the bucket can hold.
func (mb *MetricsBucket) Capacity() unit.Liters {
	return mb.bucket.Capacity()
}

// Available returns the current level and records it.
func (mb *MetricsBucket) Available(ctx context.Context) (unit.Liters, error) {
	defer mb.observe("available", time.Now())

	level, err := mb.bucket.Available(ctx)
	if err == nil {
		mb.setLevel(level)
	}
	return level, err
}

// IsEmpty reports whether the level is at or below zero.
func (mb *MetricsBucket) IsEmpty(ctx context.Context) (bool, error) {
	defer mb.observe("is_empty", time.Now())
	return mb.bucket.IsEmpty(ctx)
}

// IsFull reports whether the level is at or above capacity.
func (mb *MetricsBucket) IsFull(ctx context.Context) (bool, error) {
	defer mb.observe("is_full", time.Now())
	return mb.bucket.IsFull(ctx)
}

// FillBy adds amount to the level, saturating at capacity.
func (mb *MetricsBucket) FillBy(ctx context.Context, amount unit.Liters) error {
	start := time.Now()
	err := mb.bucket.FillBy(ctx, amount)
	mb.observe("fill", start)
	if err == nil {
		mb.refreshLevel(ctx)
	}
	return err
}

// Fulfill sets the level to capacity.
func (mb *MetricsBucket) Fulfill(ctx context.Context) error {
	start := time.Now()
	err := mb.bucket.Fulfill(ctx)
	mb.observe("fulfill", start)
	if err == nil {
		mb.setLevel(mb.bucket.Capacity())
	}
	return err
}

// WithdrawBy removes amount if available and counts the outcome.
func (mb *MetricsBucket) WithdrawBy(ctx context.Context, amount unit.Liters) (Pack, error) {
	start := time.Now()
	pack, err := mb.bucket.WithdrawBy(ctx, amount)
	mb.observe("withdraw", start)
	if err != nil || !mb.enabled.Load() {
		return pack, err
	}

	reg := mb.registry.Load()
	if pack.Empty() && amount > 0 {
		reg.WithdrawalsRefused.WithLabelValues(mb.name).Inc()
	} else {
		reg.WithdrawalsServed.WithLabelValues(mb.name).Inc()
		reg.LitersWithdrawn.WithLabelValues(mb.name).Add(float64(pack.Liters()))
	}
	mb.refreshLevel(ctx)
	return pack, nil
}

// EnableMetrics enables metrics collection. A non-nil config.Registry
// replaces the current registry; collectors it already holds are reused.
func (mb *MetricsBucket) EnableMetrics(config metrics.Config) error {
	if config.Registry != nil {
		reg, err := metrics.Register(config)
		if err != nil {
			return mferrors.NewOperationError("milk", "enable_metrics", err)
		}
		mb.registry.Store(reg)
	}
	mb.enabled.Store(config.Enabled)
	return nil
}

// DisableMetrics disables metrics collection.
func (mb *MetricsBucket) DisableMetrics() {
	mb.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mb *MetricsBucket) MetricsEnabled() bool {
	return mb.enabled.Load()
}

func (mb *MetricsBucket) observe(operation string, start time.Time) {
	if !mb.enabled.Load() {
		return
	}
	reg := mb.registry.Load()
	reg.BucketOperations.WithLabelValues(operation, mb.name).Inc()
	reg.BucketOpDuration.WithLabelValues(operation, mb.name).Observe(time.Since(start).Seconds())
}

func (mb *MetricsBucket) refreshLevel(ctx context.Context) {
	if !mb.enabled.Load() {
		return
	}
	if level, err := mb.bucket.Available(ctx); err == nil {
		mb.setLevel(level)
	}
}

func (mb *MetricsBucket) setLevel(level unit.Liters) {
	if !mb.enabled.Load() {
		return
	}
	mb.registry.Load().BucketLevel.WithLabelValues(mb.name).Set(float64(level))
}

var _ metrics.Instrumentable = (*MetricsBucket)(nil)
var _ Bucket = (*MetricsBucket)(nil)
var _ Bucket = (*LocalBucket)(nil)
