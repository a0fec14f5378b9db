package limiter

import (
	"context"
	"time"
)

// checkSlidingWindow admits a request when fewer than Requests attempts
// survive in the trailing window. The attempt is recorded whether or not it
// is admitted: eviction runs before counting, so the set stays bounded by
// the window (plus the store's defensive per-key cap), and recording denied
// attempts keeps a hammering client from gaming the count.
func (e *Engine) checkSlidingWindow(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	count, oldest, err := e.store.SlidingAdd(ctx, slidingKey(identifier, endpoint), now, p.Window)
	if err != nil {
		return Decision{}, err
	}

	allowed := count < int64(p.Requests)
	remaining := p.Requests - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	// The window replenishes when the oldest surviving attempt ages out.
	// When this call is itself the first entry, oldest is that entry.
	reset := now.Add(p.Window)
	if !oldest.IsZero() {
		reset = oldest.Add(p.Window)
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = reset.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return Decision{
		Allowed:    allowed,
		Limit:      p.Requests,
		Remaining:  remaining,
		Reset:      reset.Unix(),
		RetryAfter: retryAfter,
		Algorithm:  SlidingWindow,
		Window:     p.Window,
	}, nil
}

// statusSlidingWindow counts the current window without inserting.
func (e *Engine) statusSlidingWindow(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	count, oldest, err := e.store.SlidingCount(ctx, slidingKey(identifier, endpoint), now, p.Window)
	if err != nil {
		return Decision{}, err
	}

	remaining := p.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	reset := now.Add(p.Window)
	if !oldest.IsZero() {
		reset = oldest.Add(p.Window)
	}

	return Decision{
		Allowed:   count < int64(p.Requests),
		Limit:     p.Requests,
		Remaining: remaining,
		Reset:     reset.Unix(),
		Algorithm: SlidingWindow,
		Window:    p.Window,
	}, nil
}
