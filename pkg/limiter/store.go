package limiter

import (
	"context"
	"time"
)

// CounterStore is the shared mutable state behind every algorithm. All
// counters live here; the engine keeps none in process, so any number of
// replicas sharing a store enforce one global budget.
//
// Implementations must make SlidingAdd and Incr atomic with respect to
// concurrent callers on the same key. GetRaw/SetRaw round trips for bucket
// state are plain read-modify-write; under a race two callers can observe
// the same balance and both admit. That bounded over-admission is an
// accepted tradeoff, see the package documentation.
type CounterStore interface {
	// SlidingAdd evicts entries older than now-window, counts the
	// survivors, records the current attempt at now, and refreshes the key
	// TTL to window — as one atomic unit. It returns the pre-insert count
	// and the oldest surviving entry time (zero when the set was empty).
	SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, oldest time.Time, err error)

	// SlidingCount is the read-only variant used by status queries: it
	// evicts stale entries and counts, without recording an attempt.
	SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, oldest time.Time, err error)

	// GetRaw reads an opaque value; ok is false when the key is absent.
	GetRaw(ctx context.Context, key string) (value []byte, ok bool, err error)

	// SetRaw writes an opaque value with a TTL.
	SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr atomically increments an integer counter. The TTL is applied
	// only when the post-increment count is 1, so later increments cannot
	// extend an open window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// DeleteMatching removes all keys matching a glob pattern and reports
	// how many were deleted.
	DeleteMatching(ctx context.Context, pattern string) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
