package limiter

import (
	"context"
	"encoding/json"
	"math"
	"time"
)

// bucketState is the compound value stored per token bucket. Timestamps are
// float seconds since epoch so the stored form stays language-neutral.
type bucketState struct {
	Tokens     float64 `json:"tokens"`
	LastRefill float64 `json:"last_refill"`
}

// checkTokenBucket refills continuously at Requests/Window up to the burst
// capacity and consumes one token per admitted request. The state is read,
// recomputed, and written back; two racing callers may observe the same
// balance and both admit. That slight over-admission under contention is an
// accepted tradeoff documented on CounterStore.
func (e *Engine) checkTokenBucket(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	nowSec := float64(now.UnixNano()) / 1e9
	key := bucketKey(identifier, endpoint)

	state := bucketState{Tokens: float64(p.Requests), LastRefill: nowSec}
	raw, ok, err := e.store.GetRaw(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		// Corrupted state reinitializes to a full bucket.
		if err := json.Unmarshal(raw, &state); err != nil {
			state = bucketState{Tokens: float64(p.Requests), LastRefill: nowSec}
		}
	}

	capacity := p.Capacity()
	rate := p.RefillRate()
	elapsed := nowSec - state.LastRefill
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := math.Min(capacity, state.Tokens+elapsed*rate)

	allowed := tokens >= 1
	if allowed {
		tokens--
	}

	// Written back on every evaluation, allowed or not, so the refill clock
	// stays current.
	next, err := json.Marshal(bucketState{Tokens: tokens, LastRefill: nowSec})
	if err != nil {
		return Decision{}, err
	}
	if err := e.store.SetRaw(ctx, key, next, p.Window); err != nil {
		return Decision{}, err
	}

	var retryAfter time.Duration
	reset := now.Add(time.Duration((capacity - tokens) / rate * float64(time.Second)))
	if !allowed {
		retryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
		reset = now.Add(retryAfter)
	}

	return Decision{
		Allowed:        allowed,
		Limit:          p.Requests,
		Remaining:      int(math.Floor(tokens)),
		Reset:          reset.Unix(),
		RetryAfter:     retryAfter,
		Algorithm:      TokenBucket,
		Window:         p.Window,
		BucketCapacity: int(capacity),
	}, nil
}

// statusTokenBucket computes the refreshed balance without writing it back.
func (e *Engine) statusTokenBucket(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	nowSec := float64(now.UnixNano()) / 1e9

	state := bucketState{Tokens: float64(p.Requests), LastRefill: nowSec}
	raw, ok, err := e.store.GetRaw(ctx, bucketKey(identifier, endpoint))
	if err != nil {
		return Decision{}, err
	}
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			state = bucketState{Tokens: float64(p.Requests), LastRefill: nowSec}
		}
	}

	capacity := p.Capacity()
	rate := p.RefillRate()
	elapsed := nowSec - state.LastRefill
	if elapsed < 0 {
		elapsed = 0
	}
	tokens := math.Min(capacity, state.Tokens+elapsed*rate)

	return Decision{
		Allowed:        tokens >= 1,
		Limit:          p.Requests,
		Remaining:      int(math.Floor(tokens)),
		Reset:          now.Add(time.Duration((capacity - tokens) / rate * float64(time.Second))).Unix(),
		Algorithm:      TokenBucket,
		Window:         p.Window,
		BucketCapacity: int(capacity),
	}, nil
}
