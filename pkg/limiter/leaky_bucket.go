package limiter

import (
	"context"
	"encoding/json"
	"math"
	"time"
)

// leakyState is the compound value stored per leaky bucket.
type leakyState struct {
	Level    float64 `json:"level"`
	LastLeak float64 `json:"last_leak"`
}

// checkLeakyBucket drains the bucket continuously at Requests/Window and
// admits while the level is below the burst capacity. The TTL is twice the
// window so a bucket draining from full is not expired mid-drain.
func (e *Engine) checkLeakyBucket(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	nowSec := float64(now.UnixNano()) / 1e9
	key := leakyKey(identifier, endpoint)

	state := leakyState{Level: 0, LastLeak: nowSec}
	raw, ok, err := e.store.GetRaw(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		// Corrupted state reinitializes to an empty bucket.
		if err := json.Unmarshal(raw, &state); err != nil {
			state = leakyState{Level: 0, LastLeak: nowSec}
		}
	}

	capacity := p.Capacity()
	rate := p.RefillRate()
	elapsed := nowSec - state.LastLeak
	if elapsed < 0 {
		elapsed = 0
	}
	level := math.Max(0, state.Level-elapsed*rate)

	allowed := level < capacity
	if allowed {
		level++
	}

	next, err := json.Marshal(leakyState{Level: level, LastLeak: nowSec})
	if err != nil {
		return Decision{}, err
	}
	if err := e.store.SetRaw(ctx, key, next, 2*p.Window); err != nil {
		return Decision{}, err
	}

	remaining := int(math.Floor(capacity - level))
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	reset := now.Add(time.Duration(level / rate * float64(time.Second)))
	if !allowed {
		retryAfter = time.Duration((level - capacity + 1) / rate * float64(time.Second))
		reset = now.Add(retryAfter)
	}

	return Decision{
		Allowed:        allowed,
		Limit:          p.Requests,
		Remaining:      remaining,
		Reset:          reset.Unix(),
		RetryAfter:     retryAfter,
		Algorithm:      LeakyBucket,
		Window:         p.Window,
		BucketCapacity: int(capacity),
	}, nil
}

// statusLeakyBucket computes the drained level without writing it back.
func (e *Engine) statusLeakyBucket(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	nowSec := float64(now.UnixNano()) / 1e9

	state := leakyState{Level: 0, LastLeak: nowSec}
	raw, ok, err := e.store.GetRaw(ctx, leakyKey(identifier, endpoint))
	if err != nil {
		return Decision{}, err
	}
	if ok {
		if err := json.Unmarshal(raw, &state); err != nil {
			state = leakyState{Level: 0, LastLeak: nowSec}
		}
	}

	capacity := p.Capacity()
	rate := p.RefillRate()
	elapsed := nowSec - state.LastLeak
	if elapsed < 0 {
		elapsed = 0
	}
	level := math.Max(0, state.Level-elapsed*rate)

	remaining := int(math.Floor(capacity - level))
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:        level < capacity,
		Limit:          p.Requests,
		Remaining:      remaining,
		Reset:          now.Add(time.Duration(level / rate * float64(time.Second))).Unix(),
		Algorithm:      LeakyBucket,
		Window:         p.Window,
		BucketCapacity: int(capacity),
	}, nil
}
