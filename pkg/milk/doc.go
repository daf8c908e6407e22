/*
Package milk provides the milk bucket: a concurrency-safe token bucket holding
a floating-point quantity of liters, and the task that refills it.

A Bucket has a fixed capacity and a level that always stays within
[0, capacity]:

	b, err := milk.New(5, 0) // 5 liters capacity, starts empty
	if err != nil {
		return err
	}

	_ = b.FillBy(ctx, 1)            // saturates at capacity
	pack, _ := b.WithdrawBy(ctx, 1) // all or nothing
	if pack.Empty() {
		// not enough milk, level unchanged
	}

Withdrawals never split: a request either receives the full amount or an
empty Pack, and a failed attempt leaves the level untouched. Insufficient
stock is reported through the Pack, not through an error; errors are
reserved for invalid amounts (negative, NaN, infinite), context cancellation
while waiting for the lock, and backend failures of remote buckets.

The lock is a weight-1 semaphore, so waiters acquire it in arrival order and
can abandon the wait through their context.

# Refilling

A Refiller adds a fixed amount on every tick until its context is done:

	r, err := milk.NewRefiller(b, milk.RefillConfig{Rate: milk.PerSecond(1)})
	if err != nil {
		return err
	}
	go r.Run(ctx)

The first fill happens as soon as Run starts. Ticks may also come from a cron
expression (RefillConfig.Cron, e.g. "@every 2s" or "0 * * * * *").

# Metrics

NewWithMetrics decorates any Bucket with Prometheus counters and a level
gauge; see package metrics for the metric names.
*/
package milk
