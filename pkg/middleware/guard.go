package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FloodGuard is a coarse in-process limiter used only while the counter
// store is failing. The engine fails open on store faults; the guard keeps
// "open" from meaning "unbounded" by capping each identifier locally.
type FloodGuard struct {
	mu           sync.Mutex
	entries      map[string]*guardEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type guardEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// GuardOption configures a FloodGuard.
type GuardOption func(*FloodGuard)

// WithIdleTTL sets how long an idle identifier's limiter is kept.
func WithIdleTTL(d time.Duration) GuardOption {
	return func(g *FloodGuard) { g.idleTTL = d }
}

// WithCleanupEvery sets the janitor interval.
func WithCleanupEvery(d time.Duration) GuardOption {
	return func(g *FloodGuard) { g.cleanupEvery = d }
}

// NewFloodGuard constructs a guard allowing rps sustained requests per
// identifier with the given burst.
func NewFloodGuard(rps float64, burst int, opts ...GuardOption) *FloodGuard {
	g := &FloodGuard{
		entries:      make(map[string]*guardEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow reports whether the identifier may proceed right now.
func (g *FloodGuard) Allow(key string) bool {
	now := time.Now()

	g.mu.Lock()
	ent, ok := g.entries[key]
	if !ok {
		ent = &guardEntry{lim: rate.NewLimiter(g.rps, g.burst)}
		g.entries[key] = ent
	}
	ent.lastSeen = now
	g.mu.Unlock()

	return ent.lim.Allow()
}

// Cleanup drops limiters not seen within the idle TTL.
func (g *FloodGuard) Cleanup() {
	cutoff := time.Now().Add(-g.idleTTL)

	g.mu.Lock()
	defer g.mu.Unlock()
	for key, ent := range g.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(g.entries, key)
		}
	}
}

// StartJanitor cleans idle entries periodically until ctx ends.
func (g *FloodGuard) StartJanitor(ctx context.Context) {
	if g.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(g.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				g.Cleanup()
			}
		}
	}()
}
