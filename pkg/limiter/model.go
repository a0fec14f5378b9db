package limiter

import (
	"fmt"
	"math"
	"time"
)

// Algorithm selects how a Policy is enforced against the counter store.
type Algorithm int

const (
	SlidingWindow Algorithm = iota
	TokenBucket
	LeakyBucket
	FixedWindow
	Adaptive
)

var algorithmNames = map[Algorithm]string{
	SlidingWindow: "sliding_window",
	TokenBucket:   "token_bucket",
	LeakyBucket:   "leaky_bucket",
	FixedWindow:   "fixed_window",
	Adaptive:      "adaptive",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAlgorithm maps a config-file name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	for alg, n := range algorithmNames {
		if n == name {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// ThreatLevel is a coarse risk classification. Higher levels shrink quota
// for policies that opt in via ThreatReduction.
type ThreatLevel int

const (
	ThreatLow ThreatLevel = iota
	ThreatMedium
	ThreatHigh
	ThreatCritical
)

var threatNames = map[ThreatLevel]string{
	ThreatLow:      "low",
	ThreatMedium:   "medium",
	ThreatHigh:     "high",
	ThreatCritical: "critical",
}

func (t ThreatLevel) String() string {
	if name, ok := threatNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseThreatLevel maps a config-file name to a ThreatLevel.
func ParseThreatLevel(name string) (ThreatLevel, error) {
	for level, n := range threatNames {
		if n == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown threat level %q", ErrInvalidPolicy, name)
}

// Policy describes the rate limit applied to a route prefix.
//
// Policies are immutable values. Tier and threat adjustments always derive a
// new Policy from the registry's base value, so concurrent requests can be
// adjusted independently without synchronization.
type Policy struct {
	// Requests is the quota size per Window.
	Requests int

	// Window is the quota period.
	Window time.Duration

	// Algorithm selects the enforcement strategy.
	Algorithm Algorithm

	// BurstMultiplier is the capacity headroom for bucket algorithms.
	// Capacity = Requests * BurstMultiplier. Must be >= 1.
	BurstMultiplier float64

	// Adaptive enables threat-level quota reduction for this policy.
	Adaptive bool

	// ThreatReduction scales Requests per threat level when Adaptive is set.
	// A missing level means no reduction.
	ThreatReduction map[ThreatLevel]float64
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.Requests <= 0 {
		return ErrInvalidRequests
	}
	if p.Window <= 0 {
		return ErrInvalidWindow
	}
	if p.BurstMultiplier < 1.0 {
		return ErrInvalidBurst
	}
	for level, factor := range p.ThreatReduction {
		if factor <= 0 || factor > 1.0 {
			return fmt.Errorf("%w: threat factor %v for level %s", ErrInvalidPolicy, factor, level)
		}
	}
	return nil
}

// Capacity is the bucket ceiling: Requests scaled by BurstMultiplier.
func (p Policy) Capacity() float64 {
	return float64(p.Requests) * p.BurstMultiplier
}

// RefillRate is the sustained rate in requests per second.
func (p Policy) RefillRate() float64 {
	return float64(p.Requests) / p.Window.Seconds()
}

// DefaultThreatReduction is the reduction table used by the stock policies:
// elevated threat levels shrink quota progressively down to 10%.
func DefaultThreatReduction() map[ThreatLevel]float64 {
	return map[ThreatLevel]float64{
		ThreatLow:      1.0,
		ThreatMedium:   0.7,
		ThreatHigh:     0.4,
		ThreatCritical: 0.1,
	}
}

// AdaptiveInfo annotates a Decision made under the adaptive algorithm.
type AdaptiveInfo struct {
	// OriginalLimit is the tier-adjusted quota before load shedding.
	OriginalLimit int

	// Multiplier is the combined load and threat scale factor applied.
	Multiplier float64

	CPUPercent    float64
	MemoryPercent float64
	Threat        ThreatLevel
}

// Decision is the outcome of a rate limit check, directly consumable by
// callers that set rate-limit headers.
type Decision struct {
	// Allowed reports whether the request is permitted.
	Allowed bool

	// Unlimited is set when no policy matched the endpoint; the remaining
	// fields are zero and carry no meaning.
	Unlimited bool

	// FailOpen is set when the counter store failed and the engine allowed
	// the request by policy rather than by counting.
	FailOpen bool

	// Limit is the effective quota after tier/threat adjustment.
	Limit int

	// Remaining is the quota left in the current window after this decision.
	Remaining int

	// Reset is the unix timestamp at which the quota replenishes.
	Reset int64

	// RetryAfter is the suggested wait when denied, zero when allowed.
	RetryAfter time.Duration

	// Algorithm is the strategy that produced this decision.
	Algorithm Algorithm

	// Window is the quota period of the effective policy.
	Window time.Duration

	// BucketCapacity is the burst ceiling for bucket algorithms, zero
	// otherwise.
	BucketCapacity int

	// AdaptiveInfo is non-nil only for adaptive decisions.
	AdaptiveInfo *AdaptiveInfo
}

// tierMultipliers scales quota per caller classification. Unknown tiers
// fall back to 1.0.
var tierMultipliers = map[string]float64{
	"admin":        5.0,
	"premium":      3.0,
	"professional": 2.0,
	"standard":     1.0,
	"free":         0.5,
}

// TierMultiplier returns the quota scale for a caller tier.
func TierMultiplier(tier string) float64 {
	if m, ok := tierMultipliers[tier]; ok {
		return m
	}
	return 1.0
}

// Adjust derives the effective policy for one request: quota scaled by the
// caller's tier and, when the policy opts in, reduced by threat level.
//
// Adjust always starts from the base policy, so repeated adjustment cannot
// compound. The returned value is a copy; base is never mutated.
func Adjust(base Policy, tier string, threat ThreatLevel) Policy {
	multiplier := TierMultiplier(tier)
	if base.Adaptive {
		multiplier *= threatFactor(base, threat)
	}
	return scalePolicy(base, multiplier)
}

// scalePolicy returns a copy of base with Requests scaled and floored.
// Quota never drops below 1 so a valid policy stays valid.
func scalePolicy(base Policy, multiplier float64) Policy {
	scaled := base
	scaled.Requests = int(math.Floor(float64(base.Requests) * multiplier))
	if scaled.Requests < 1 {
		scaled.Requests = 1
	}
	return scaled
}

// threatFactor looks up the reduction for a threat level; absent levels mean
// no reduction.
func threatFactor(p Policy, threat ThreatLevel) float64 {
	if f, ok := p.ThreatReduction[threat]; ok {
		return f
	}
	return 1.0
}
