// Package metrics provides Prometheus instrumentation for milkflow components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metric instances for milkflow components.
type Registry struct {
	// Bucket Metrics
	BucketOperations   *prometheus.CounterVec
	BucketOpDuration   *prometheus.HistogramVec
	WithdrawalsServed  *prometheus.CounterVec
	WithdrawalsRefused *prometheus.CounterVec
	LitersWithdrawn    *prometheus.CounterVec
	BucketLevel        *prometheus.GaugeVec
	BucketCapacity     *prometheus.GaugeVec

	// Refill Metrics
	RefillTicks    *prometheus.CounterVec
	RefillFailures *prometheus.CounterVec

	// HTTP Metrics
	HTTPRequests *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by milkflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg, Namespace: DefaultNamespace})
}

// NewRegistryWithConfig creates a metrics registry honoring the namespace and
// constant labels of cfg. A nil cfg.Registry falls back to prometheus.DefaultRegisterer.
// It panics if a collector conflicts with one already registered.
func NewRegistryWithConfig(cfg Config) *Registry {
	r, err := Register(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Register creates a metrics registry like NewRegistryWithConfig. Collectors
// already registered with identical descriptors are reused, so registering
// the same Config twice shares one set of metrics. Conflicting
// registrations return an error.
func Register(cfg Config) (*Registry, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	r := newRegistry(ns, cfg.Labels)
	var errs []error
	r.BucketOperations = register(reg, r.BucketOperations, &errs)
	r.BucketOpDuration = register(reg, r.BucketOpDuration, &errs)
	r.WithdrawalsServed = register(reg, r.WithdrawalsServed, &errs)
	r.WithdrawalsRefused = register(reg, r.WithdrawalsRefused, &errs)
	r.LitersWithdrawn = register(reg, r.LitersWithdrawn, &errs)
	r.BucketLevel = register(reg, r.BucketLevel, &errs)
	r.BucketCapacity = register(reg, r.BucketCapacity, &errs)
	r.RefillTicks = register(reg, r.RefillTicks, &errs)
	r.RefillFailures = register(reg, r.RefillFailures, &errs)
	r.HTTPRequests = register(reg, r.HTTPRequests, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, returning the collector already registered under
// the same descriptor when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errs *[]error) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	*errs = append(*errs, err)
	return c
}

func newRegistry(ns string, labels prometheus.Labels) *Registry {
	return &Registry{
		// Bucket Metrics
		BucketOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "operations_total",
				Help:        "Total number of bucket operations",
				ConstLabels: labels,
			},
			[]string{"operation", "bucket"},
		),

		BucketOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "operation_duration_seconds",
				Help:        "Time spent in bucket operations, lock wait included",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"operation", "bucket"},
		),

		WithdrawalsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "withdrawals_served_total",
				Help:        "Total number of withdrawals that returned a full pack",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		WithdrawalsRefused: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "withdrawals_refused_total",
				Help:        "Total number of withdrawals that returned an empty pack",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		LitersWithdrawn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "liters_withdrawn_total",
				Help:        "Total liters handed out in packs",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		BucketLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "level_liters",
				Help:        "Liters currently held by the bucket",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		BucketCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "bucket",
				Name:        "capacity_liters",
				Help:        "Maximum liters the bucket can hold",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		// Refill Metrics
		RefillTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "refill",
				Name:        "ticks_total",
				Help:        "Total number of refill ticks applied",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		RefillFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "refill",
				Name:        "failures_total",
				Help:        "Total number of refill ticks that failed to fill the bucket",
				ConstLabels: labels,
			},
			[]string{"bucket"},
		),

		// HTTP Metrics
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total number of HTTP requests by route and status",
				ConstLabels: labels,
			},
			[]string{"route", "status"},
		),
	}
}
