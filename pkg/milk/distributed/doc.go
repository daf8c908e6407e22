/*
Package distributed provides a milk bucket whose level is shared through Redis.

Several application instances configured with the same Key serve withdrawals
from one stock. Each operation runs as a single Lua script, so the
all-or-nothing withdrawal and the saturating fill hold across instances
exactly as they do for the in-process milk.LocalBucket.

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	bucket, err := distributed.New(ctx, distributed.Config{
		Redis:    rdb,
		Key:      "milkflow:milk",
		Capacity: 5,
	})
	if err != nil {
		return err
	}
	defer bucket.Close()

	pack, err := bucket.WithdrawBy(ctx, 1)

The bucket satisfies milk.Bucket, so it can be refilled by a milk.Refiller
and decorated with milk.NewWithMetrics. When more than one instance runs a
Refiller, each of them fills the shared level; run the refill task on one
instance only to keep the configured rate (milkflowd --refill=false on the
others).

The level key is created with SETNX: the first instance decides the initial
level and later instances join the existing stock. Redis failures are
returned as *errors.OperationError values wrapping errors.ErrBackend.

# Keys

For a Key of "milkflow:milk" the bucket uses:

	{milkflow:milk}:level      current level, a decimal string
	{milkflow:milk}:config     hash with the configured capacity
	{milkflow:milk}:stats      hash with withdrawals, served, refused and fills counters
	{milkflow:milk}:instances  set of registered instance IDs

The braces are a Redis Cluster hash tag: all four keys share one slot, so the
scripts touching several of them work against a cluster client too. A Key
that already contains a hash tag is used as is.
*/
package distributed
