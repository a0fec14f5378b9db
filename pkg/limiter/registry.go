package limiter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Registry maps route prefixes to policies. It is populated at startup and
// read-only afterwards, so Resolve needs no synchronization.
type Registry struct {
	exact    map[string]Policy
	prefixes []prefixEntry
}

type prefixEntry struct {
	prefix string
	policy Policy
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]Policy)}
}

// DefaultRegistry returns a registry preloaded with the stock policies for
// an archival-scraping API: tight limits on login and export, generous ones
// on search, adaptive shedding on the admin surface, and a broad fallback
// for everything under /api/v1.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for pattern, policy := range map[string]Policy{
		"/api/v1/auth/login": {
			Requests:        5,
			Window:          time.Minute,
			Algorithm:       SlidingWindow,
			BurstMultiplier: 1.0,
			Adaptive:        true,
			ThreatReduction: DefaultThreatReduction(),
		},
		"/api/v1/auth": {
			Requests:        20,
			Window:          time.Minute,
			Algorithm:       TokenBucket,
			BurstMultiplier: 1.5,
			Adaptive:        true,
			ThreatReduction: DefaultThreatReduction(),
		},
		"/api/v1/scrape": {
			Requests:        10,
			Window:          time.Minute,
			Algorithm:       LeakyBucket,
			BurstMultiplier: 1.2,
			Adaptive:        true,
			ThreatReduction: DefaultThreatReduction(),
		},
		"/api/v1/export": {
			Requests:        3,
			Window:          5 * time.Minute,
			Algorithm:       FixedWindow,
			BurstMultiplier: 1.0,
			Adaptive:        false,
		},
		"/api/v1/search": {
			Requests:        30,
			Window:          time.Minute,
			Algorithm:       SlidingWindow,
			BurstMultiplier: 2.0,
			Adaptive:        true,
			ThreatReduction: DefaultThreatReduction(),
		},
		"/api/v1/admin": {
			Requests:        100,
			Window:          time.Minute,
			Algorithm:       Adaptive,
			BurstMultiplier: 2.0,
			Adaptive:        true,
			ThreatReduction: DefaultThreatReduction(),
		},
		"/api/v1": {
			Requests:        60,
			Window:          time.Minute,
			Algorithm:       SlidingWindow,
			BurstMultiplier: 1.5,
			Adaptive:        true,
			ThreatReduction: DefaultThreatReduction(),
		},
	} {
		// Patterns are static, so Register cannot fail here.
		if err := r.Register(pattern, policy); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds or replaces the policy for a route pattern. Patterns match
// both exactly and as path prefixes.
func (r *Registry) Register(pattern string, policy Policy) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty route pattern", ErrInvalidPolicy)
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("policy for %q: %w", pattern, err)
	}
	if _, exists := r.exact[pattern]; exists {
		for i := range r.prefixes {
			if r.prefixes[i].prefix == pattern {
				r.prefixes[i].policy = policy
				break
			}
		}
		r.exact[pattern] = policy
		return nil
	}
	r.exact[pattern] = policy
	r.prefixes = append(r.prefixes, prefixEntry{prefix: pattern, policy: policy})
	// Longest prefix first, so a specific route overrides a broad fallback.
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
	return nil
}

// Resolve finds the policy governing a request path. Exact matches win,
// then the longest registered prefix. A miss means the path is unlimited.
func (r *Registry) Resolve(path string) (Policy, bool) {
	if policy, ok := r.exact[path]; ok {
		return policy, true
	}
	for _, entry := range r.prefixes {
		if strings.HasPrefix(path, entry.prefix) {
			return entry.policy, true
		}
	}
	return Policy{}, false
}

// Patterns returns the registered route patterns, longest first.
func (r *Registry) Patterns() []string {
	out := make([]string, len(r.prefixes))
	for i, entry := range r.prefixes {
		out[i] = entry.prefix
	}
	return out
}
