/*
Package milkflow is a quantity-based rate limiter modelled as a milk bucket.

A bucket holds a fractional number of liters between zero and a fixed
capacity. Each request withdraws a unit; a background refiller tops the
bucket up at a constant rate; an admin call fills it to capacity. A request
arriving at an empty bucket is refused.

Packages:
  - pkg/milk: the Bucket interface, the in-process LocalBucket, the Refiller
    and a Prometheus-instrumented decorator
  - pkg/milk/unit: liters, US gallons, UK litres and pints, and the Measure
    JSON form converted by the withdrawal endpoint
  - pkg/milk/distributed: a Bucket shared between instances through Redis
  - pkg/metrics: the Prometheus registry
  - internal/server: the HTTP endpoints
  - cmd/milkflowd: the daemon

Example usage:

	import (
		"github.com/vnykmshr/milkflow/pkg/milk"
	)

	bucket, _ := milk.New(5, 0) // 5 liters, starting empty
	refiller, _ := milk.NewRefiller(bucket, milk.RefillConfig{Rate: milk.PerSecond(1)})
	go refiller.Run(ctx)

	if pack, _ := bucket.WithdrawBy(ctx, 1); !pack.Empty() {
		serve()
	}
*/
package milkflow
