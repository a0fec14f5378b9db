package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Engine is the rate decision engine. One instance is constructed at
// process start and shared by every in-flight request; it holds no mutable
// per-request state, so no locking is needed around it. All counters live
// in the CounterStore.
type Engine struct {
	store    CounterStore
	registry *Registry
	probe    LoadProbe
	logger   *slog.Logger
	recorder MetricsRecorder
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger (default slog.Default).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder injects a metrics backend (default no-op).
func WithRecorder(r MetricsRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides the time source, used by tests to drive windows.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLoadProbe overrides the system load source for adaptive policies.
func WithLoadProbe(p LoadProbe) EngineOption {
	return func(e *Engine) { e.probe = p }
}

// NewEngine constructs an Engine over a counter store and policy registry.
func NewEngine(store CounterStore, registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		probe:    NewSystemProbe(),
		logger:   slog.Default(),
		recorder: &NoOpMetricsRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check resolves the policy for endpoint, adjusts it for tier and threat,
// and runs the policy's algorithm against the counter store.
//
// Check never returns an error: a miss in the registry means unlimited
// access, and a store fault produces a fail-open allow. Availability beats
// strict enforcement; the fault is logged and counted instead.
func (e *Engine) Check(ctx context.Context, identifier, endpoint, tier string, threat ThreatLevel) Decision {
	base, ok := e.registry.Resolve(endpoint)
	if !ok {
		return Decision{Allowed: true, Unlimited: true}
	}

	tags := map[string]string{"algorithm": base.Algorithm.String(), "endpoint": endpoint}
	start := time.Now()
	decision, err := e.dispatch(ctx, identifier, endpoint, base, tier, threat)
	e.recorder.Observe("ratelimit.latency", time.Since(start).Seconds(), tags)
	if err != nil {
		e.logger.Error("rate limit check failed, failing open",
			"error", err, "identifier", identifier, "endpoint", endpoint,
			"algorithm", base.Algorithm.String())
		e.recorder.Add("ratelimit.fail_open", 1, tags)
		return Decision{Allowed: true, FailOpen: true}
	}

	e.recorder.Add("ratelimit.check", 1, tags)
	if !decision.Allowed {
		e.recorder.Add("ratelimit.denied", 1, tags)
	}
	return decision
}

func (e *Engine) dispatch(ctx context.Context, identifier, endpoint string, base Policy, tier string, threat ThreatLevel) (Decision, error) {
	switch base.Algorithm {
	case TokenBucket:
		return e.checkTokenBucket(ctx, identifier, endpoint, Adjust(base, tier, threat))
	case LeakyBucket:
		return e.checkLeakyBucket(ctx, identifier, endpoint, Adjust(base, tier, threat))
	case FixedWindow:
		return e.checkFixedWindow(ctx, identifier, endpoint, Adjust(base, tier, threat))
	case Adaptive:
		// Adaptive applies the threat factor itself, combined with load;
		// adjusting for threat here as well would scale quota twice.
		return e.checkAdaptive(ctx, identifier, endpoint, base, tier, threat)
	default:
		return e.checkSlidingWindow(ctx, identifier, endpoint, Adjust(base, tier, threat))
	}
}

// Status reports the current window state for an identifier and endpoint
// without consuming quota. It reads the base policy unadjusted; the admin
// surface has no caller tier or live request to assess.
func (e *Engine) Status(ctx context.Context, identifier, endpoint string) (Decision, error) {
	base, ok := e.registry.Resolve(endpoint)
	if !ok {
		return Decision{Allowed: true, Unlimited: true}, nil
	}
	switch base.Algorithm {
	case TokenBucket:
		return e.statusTokenBucket(ctx, identifier, endpoint, base)
	case LeakyBucket:
		return e.statusLeakyBucket(ctx, identifier, endpoint, base)
	case FixedWindow:
		return e.statusFixedWindow(ctx, identifier, endpoint, base)
	default:
		return e.statusSlidingWindow(ctx, identifier, endpoint, base)
	}
}

// BulkReset deletes all counter state matching a glob pattern, for example
// "sliding:user:42:*". It returns the number of keys removed.
func (e *Engine) BulkReset(ctx context.Context, pattern string) (int64, error) {
	count, err := e.store.DeleteMatching(ctx, pattern)
	if err != nil {
		return count, fmt.Errorf("bulk reset %q: %w", pattern, err)
	}
	e.logger.Info("rate limit counters reset", "pattern", pattern, "deleted", count)
	return count, nil
}

func slidingKey(identifier, endpoint string) string {
	return "sliding:" + identifier + ":" + endpoint
}

func bucketKey(identifier, endpoint string) string {
	return "bucket:" + identifier + ":" + endpoint
}

func leakyKey(identifier, endpoint string) string {
	return "leaky:" + identifier + ":" + endpoint
}

func fixedKey(identifier, endpoint string, windowStart int64) string {
	return fmt.Sprintf("fixed:%s:%s:%d", identifier, endpoint, windowStart)
}
