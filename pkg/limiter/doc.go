// Package limiter provides an adaptive, multi-algorithm rate decision
// engine backed by a shared counter store.
//
// The primary entry point is the Engine:
//
//	dec := engine.Check(ctx, identifier, endpoint, tier, threat)
//
// The returned Decision contains whether the request is allowed, the
// effective limit and remaining quota, and timing hints for callers that
// want to set rate-limit headers (for example, Retry-After).
//
// # Overview
//
// Incoming requests are matched to a Policy by route prefix (longest prefix
// wins), the policy quota is scaled by the caller's tier and the assessed
// threat level, and one of five algorithms enforces it:
//
//   - Sliding window: a score-ordered set of attempt timestamps; precise
//     over the trailing window.
//   - Token bucket: continuous refill up to a burst capacity; smooth
//     sustained rates with bursts.
//   - Leaky bucket: continuous drain with a fill ceiling; shapes traffic
//     rather than counting it.
//   - Fixed window: an atomic counter per aligned window; cheapest, with
//     boundary bursts.
//   - Adaptive: samples host CPU and memory, shrinks quota under pressure,
//     and delegates the actual check to the sliding window.
//
// # Core Types
//
// Policy defines what is enforced: Requests per Window, the Algorithm, a
// BurstMultiplier for the bucket algorithms, and an optional per-threat
// reduction table. Policies are immutable values; tier and threat
// adjustment derives new values and never mutates the registry.
//
// Registry resolves a request path to its Policy: exact match first, then
// the longest registered prefix. A miss means the path is unlimited.
//
// # Backends
//
// The engine owns no counter state. Everything lives behind CounterStore:
//
//   - RedisStore: the production backend. Sliding windows are sorted sets
//     manipulated through a MULTI/EXEC pipeline, fixed windows use native
//     INCR, and bucket state is stored as JSON strings. Any number of
//     replicas sharing one Redis enforce a single global budget.
//
//   - MemoryStore: a process-local implementation with an injectable clock,
//     for unit tests and single-instance deployments.
//
// # Concurrency
//
// One Engine is constructed at process start and shared by all in-flight
// requests without locking; it holds only read-only configuration.
// Sliding-window and fixed-window updates are atomic in the store. Bucket
// state is read-modify-write: under a concurrent race two callers can read
// the same balance and both admit, a small bounded over-admission accepted
// in exchange for avoiding cross-store coordination. Deployments that need
// strict bucket accounting should front the bucket keys with a store-side
// transaction.
//
// # Error Policy
//
// The engine fails open. A counter store timeout or outage converts to an
// allow decision with Decision.FailOpen set, logged at error level and
// counted in metrics; it never surfaces as a request error. Store
// operations run under a sub-100ms timeout so a degraded store cannot
// stall the hot path. Malformed stored bucket state reinitializes to a
// full bucket.
package limiter
