package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CounterStore on Redis. Sliding windows live in
// sorted sets manipulated through a transactional pipeline, fixed windows
// use native INCR, and bucket state is stored as opaque JSON strings.
//
// Every operation runs under a short per-op timeout so a slow Redis cannot
// stall the request hot path; the engine converts timeouts into fail-open
// decisions.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	opTimeout  time.Duration
	maxEntries int64
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix (default "ratelimit:").
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTimeout sets the per-operation timeout (default 50ms).
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.opTimeout = d }
}

// WithMaxEntries caps how many timestamps a sliding-window set may hold.
// A client hammering past its limit keeps inserting attempt records; the
// cap bounds that growth (default 10000).
func WithMaxEntries(n int64) RedisOption {
	return func(s *RedisStore) { s.maxEntries = n }
}

// NewRedisStore verifies connectivity and returns a store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:     client,
		prefix:     "ratelimit:",
		opTimeout:  50 * time.Millisecond,
		maxEntries: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// SlidingAdd runs evict, count, insert and expire as one MULTI/EXEC unit.
func (s *RedisStore) SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	full := s.prefix + key
	nowScore := float64(now.UnixNano()) / 1e9
	cutoff := strconv.FormatFloat(nowScore-window.Seconds(), 'f', -1, 64)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, full, "-inf", cutoff)
	countCmd := pipe.ZCard(ctx, full)
	pipe.ZAdd(ctx, full, redis.Z{
		Score:  nowScore,
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	if s.maxEntries > 0 {
		pipe.ZRemRangeByRank(ctx, full, 0, -(s.maxEntries + 1))
	}
	oldestCmd := pipe.ZRangeWithScores(ctx, full, 0, 0)
	pipe.Expire(ctx, full, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return countCmd.Val(), oldestFromScores(oldestCmd.Val()), nil
}

// SlidingCount evicts and counts without recording an attempt.
func (s *RedisStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	full := s.prefix + key
	nowScore := float64(now.UnixNano()) / 1e9
	cutoff := strconv.FormatFloat(nowScore-window.Seconds(), 'f', -1, 64)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, full, "-inf", cutoff)
	countCmd := pipe.ZCard(ctx, full)
	oldestCmd := pipe.ZRangeWithScores(ctx, full, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return countCmd.Val(), oldestFromScores(oldestCmd.Val()), nil
}

func oldestFromScores(zs []redis.Z) time.Time {
	if len(zs) == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(zs[0].Score*1e9))
}

// GetRaw reads an opaque value; absent keys are not an error.
func (s *RedisStore) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return val, true, nil
}

// SetRaw writes an opaque value with a TTL.
func (s *RedisStore) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Incr atomically increments a window counter. The TTL is set only by the
// first writer of the window so later increments cannot extend it.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	full := s.prefix + key
	count, err := s.client.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, full, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}
	return count, nil
}

// DeleteMatching removes keys matching a glob pattern via SCAN, in batches.
func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	// Bulk resets are admin operations; give them a more generous budget
	// than the hot path.
	timeout := s.opTimeout * 100
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var deleted int64
	var batch []string
	iter := s.client.Scan(ctx, 0, s.prefix+pattern, 200).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			n, err := s.client.Del(ctx, batch...).Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
			}
			deleted += n
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(batch) > 0 {
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		deleted += n
	}
	return deleted, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
