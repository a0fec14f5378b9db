package limiter

import (
	"errors"
	"testing"
	"time"
)

func TestTierMultiplier(t *testing.T) {
	cases := []struct {
		tier string
		want float64
	}{
		{"admin", 5.0},
		{"premium", 3.0},
		{"professional", 2.0},
		{"standard", 1.0},
		{"free", 0.5},
		{"", 1.0},
		{"enterprise", 1.0},
	}
	for _, tc := range cases {
		if got := TierMultiplier(tc.tier); got != tc.want {
			t.Errorf("TierMultiplier(%q) = %v, want %v", tc.tier, got, tc.want)
		}
	}
}

func TestAdjust_TierScaling(t *testing.T) {
	base := Policy{
		Requests:        10,
		Window:          time.Minute,
		Algorithm:       SlidingWindow,
		BurstMultiplier: 1.0,
	}

	if got := Adjust(base, "admin", ThreatLow).Requests; got != 50 {
		t.Errorf("Expected admin quota 50, got %d", got)
	}
	if got := Adjust(base, "free", ThreatLow).Requests; got != 5 {
		t.Errorf("Expected free quota 5, got %d", got)
	}
	if base.Requests != 10 {
		t.Error("Adjust must not mutate the base policy")
	}
}

func TestAdjust_Idempotence(t *testing.T) {
	base := Policy{
		Requests:        10,
		Window:          time.Minute,
		Algorithm:       SlidingWindow,
		BurstMultiplier: 1.0,
	}

	// Adjusting twice from the same base must not compound.
	once := Adjust(base, "admin", ThreatLow)
	twice := Adjust(base, "admin", ThreatLow)
	if once.Requests != twice.Requests {
		t.Errorf("Repeated adjustment diverged: %d vs %d", once.Requests, twice.Requests)
	}
}

func TestAdjust_ThreatReduction(t *testing.T) {
	base := Policy{
		Requests:        100,
		Window:          time.Minute,
		Algorithm:       SlidingWindow,
		BurstMultiplier: 1.0,
		Adaptive:        true,
		ThreatReduction: DefaultThreatReduction(),
	}

	cases := []struct {
		threat ThreatLevel
		want   int
	}{
		{ThreatLow, 100},
		{ThreatMedium, 70},
		{ThreatHigh, 40},
		{ThreatCritical, 10},
	}
	for _, tc := range cases {
		if got := Adjust(base, "standard", tc.threat).Requests; got != tc.want {
			t.Errorf("Adjust at threat %s = %d, want %d", tc.threat, got, tc.want)
		}
	}
}

func TestAdjust_NonAdaptivePassThrough(t *testing.T) {
	base := Policy{
		Requests:        100,
		Window:          time.Minute,
		Algorithm:       SlidingWindow,
		BurstMultiplier: 1.0,
		Adaptive:        false,
		ThreatReduction: DefaultThreatReduction(),
	}

	for _, threat := range []ThreatLevel{ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical} {
		if got := Adjust(base, "standard", threat).Requests; got != 100 {
			t.Errorf("Non-adaptive policy was altered at threat %s: got %d", threat, got)
		}
	}
}

func TestAdjust_FloorsToOne(t *testing.T) {
	base := Policy{
		Requests:        1,
		Window:          time.Minute,
		Algorithm:       SlidingWindow,
		BurstMultiplier: 1.0,
		Adaptive:        true,
		ThreatReduction: DefaultThreatReduction(),
	}

	if got := Adjust(base, "free", ThreatCritical).Requests; got != 1 {
		t.Errorf("Expected quota floor of 1, got %d", got)
	}
}

func TestPolicy_Validate(t *testing.T) {
	valid := Policy{Requests: 10, Window: time.Minute, BurstMultiplier: 1.5}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid policy, got %v", err)
	}

	cases := []struct {
		name   string
		policy Policy
		want   error
	}{
		{"ZeroRequests", Policy{Requests: 0, Window: time.Minute, BurstMultiplier: 1}, ErrInvalidRequests},
		{"ZeroWindow", Policy{Requests: 1, Window: 0, BurstMultiplier: 1}, ErrInvalidWindow},
		{"SubUnityBurst", Policy{Requests: 1, Window: time.Minute, BurstMultiplier: 0.5}, ErrInvalidBurst},
		{"BadThreatFactor", Policy{
			Requests: 1, Window: time.Minute, BurstMultiplier: 1,
			ThreatReduction: map[ThreatLevel]float64{ThreatHigh: 1.5},
		}, ErrInvalidPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.policy.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPolicy_Derived(t *testing.T) {
	p := Policy{Requests: 10, Window: 20 * time.Second, BurstMultiplier: 1.5}
	if got := p.Capacity(); got != 15.0 {
		t.Errorf("Capacity = %v, want 15", got)
	}
	if got := p.RefillRate(); got != 0.5 {
		t.Errorf("RefillRate = %v, want 0.5", got)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for alg, name := range algorithmNames {
		got, err := ParseAlgorithm(name)
		if err != nil || got != alg {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseAlgorithm("round_robin"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestParseThreatLevel(t *testing.T) {
	for level, name := range threatNames {
		got, err := ParseThreatLevel(name)
		if err != nil || got != level {
			t.Errorf("ParseThreatLevel(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseThreatLevel("apocalyptic"); err == nil {
		t.Error("Expected an error for an unknown threat level")
	}
}
