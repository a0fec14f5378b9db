package limiter

import (
	"context"
	"strconv"
	"time"
)

// checkFixedWindow counts requests in the window starting at
// floor(now/window)*window. The start is computed in nanoseconds so
// sub-second windows stay well defined. The increment is the store's native
// atomic operation, so two racing requests cannot both claim the same
// sequence number. Denied attempts still increment: the count records
// attempts, and the window TTL was set by its first writer.
func (e *Engine) checkFixedWindow(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	window := p.Window.Nanoseconds()
	windowStart := now.UnixNano() - now.UnixNano()%window

	count, err := e.store.Incr(ctx, fixedKey(identifier, endpoint, windowStart), p.Window)
	if err != nil {
		return Decision{}, err
	}

	allowed := count <= int64(p.Requests)
	remaining := p.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	reset := time.Unix(0, windowStart+window)

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
		Algorithm:  FixedWindow,
		Window:     p.Window,
	}, nil
}

// statusFixedWindow reads the current window's counter without incrementing.
func (e *Engine) statusFixedWindow(ctx context.Context, identifier, endpoint string, p Policy) (Decision, error) {
	now := e.now()
	window := p.Window.Nanoseconds()
	windowStart := now.UnixNano() - now.UnixNano()%window

	var count int64
	raw, ok, err := e.store.GetRaw(ctx, fixedKey(identifier, endpoint, windowStart))
	if err != nil {
		return Decision{}, err
	}
	if ok {
		count, _ = strconv.ParseInt(string(raw), 10, 64)
	}

	remaining := p.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count < int64(p.Requests),
		Limit:     p.Requests,
		Remaining: remaining,
		Reset:     time.Unix(0, windowStart+window).Unix(),
		Algorithm: FixedWindow,
		Window:    p.Window,
	}, nil
}
