package limiter

import "context"

// Load-shedding bands. Only the single highest applicable band applies per
// resource; CPU and memory multipliers then stack with the threat factor.
const (
	cpuHighPercent = 80.0
	cpuWarnPercent = 60.0
	memHighPercent = 85.0
	memWarnPercent = 70.0
)

func cpuMultiplier(cpu float64) float64 {
	switch {
	case cpu > cpuHighPercent:
		return 0.5
	case cpu > cpuWarnPercent:
		return 0.7
	default:
		return 1.0
	}
}

func memMultiplier(mem float64) float64 {
	switch {
	case mem > memHighPercent:
		return 0.5
	case mem > memWarnPercent:
		return 0.8
	default:
		return 1.0
	}
}

// checkAdaptive shrinks quota under system pressure. It samples CPU and
// memory, combines the band multipliers with the policy's threat factor,
// scales the tier-adjusted quota, and runs the result through the sliding
// window check. A probe that cannot sample reports 0.0, which degrades to
// no shedding rather than failing closed.
func (e *Engine) checkAdaptive(ctx context.Context, identifier, endpoint string, base Policy, tier string, threat ThreatLevel) (Decision, error) {
	cpu := e.probe.CPUPercent()
	mem := e.probe.MemoryPercent()

	combined := cpuMultiplier(cpu) * memMultiplier(mem)
	if base.Adaptive {
		combined *= threatFactor(base, threat)
	}

	tierAdjusted := scalePolicy(base, TierMultiplier(tier))
	transient := scalePolicy(tierAdjusted, combined)
	transient.Algorithm = SlidingWindow

	decision, err := e.checkSlidingWindow(ctx, identifier, endpoint, transient)
	if err != nil {
		return Decision{}, err
	}
	decision.AdaptiveInfo = &AdaptiveInfo{
		OriginalLimit: tierAdjusted.Requests,
		Multiplier:    combined,
		CPUPercent:    cpu,
		MemoryPercent: mem,
		Threat:        threat,
	}
	return decision, nil
}
