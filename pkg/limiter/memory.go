package limiter

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

type memorySet struct {
	scores    []float64
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore. Its state is not shared
// across replicas, so it cannot enforce a global budget; it exists for unit
// tests, local development, and single-instance deployments.
//
// The clock is injectable so tests can drive window expiry without
// sleeping.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	values  map[string]memoryValue
	sets    map[string]*memorySet
	failing bool
}

// NewMemoryStore constructs a MemoryStore. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:    now,
		values: make(map[string]memoryValue),
		sets:   make(map[string]*memorySet),
	}
}

// SetFailing makes every operation fail, simulating a store outage.
func (m *MemoryStore) SetFailing(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = v
}

func (m *MemoryStore) slidingLocked(key string, now time.Time, window time.Duration, record bool) (int64, time.Time) {
	set := m.sets[key]
	if set == nil || !set.expiresAt.IsZero() && set.expiresAt.Before(now) {
		set = &memorySet{}
		m.sets[key] = set
	}

	cutoff := float64(now.UnixNano())/1e9 - window.Seconds()
	idx := sort.SearchFloat64s(set.scores, cutoff)
	// SearchFloat64s finds the first score >= cutoff; eviction is inclusive
	// of the cutoff itself.
	for idx < len(set.scores) && set.scores[idx] <= cutoff {
		idx++
	}
	set.scores = append(set.scores[:0], set.scores[idx:]...)

	count := int64(len(set.scores))
	if record {
		score := float64(now.UnixNano()) / 1e9
		pos := sort.SearchFloat64s(set.scores, score)
		set.scores = append(set.scores, 0)
		copy(set.scores[pos+1:], set.scores[pos:])
		set.scores[pos] = score
		set.expiresAt = now.Add(window)
	}

	if len(set.scores) == 0 {
		return count, time.Time{}
	}
	return count, time.Unix(0, int64(set.scores[0]*1e9))
}

// SlidingAdd mirrors the Redis pipeline semantics: evict, count, insert,
// refresh TTL, under one lock.
func (m *MemoryStore) SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, time.Time{}, ErrStoreUnavailable
	}
	count, oldest := m.slidingLocked(key, now, window, true)
	return count, oldest, nil
}

// SlidingCount evicts and counts without recording an attempt.
func (m *MemoryStore) SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, time.Time{}, ErrStoreUnavailable
	}
	count, oldest := m.slidingLocked(key, now, window, false)
	return count, oldest, nil
}

// GetRaw reads a value, honoring expiry lazily.
func (m *MemoryStore) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, false, ErrStoreUnavailable
	}
	val, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	if !val.expiresAt.IsZero() && val.expiresAt.Before(m.now()) {
		delete(m.values, key)
		return nil, false, nil
	}
	return val.data, true, nil
}

// SetRaw writes a value with a TTL.
func (m *MemoryStore) SetRaw(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrStoreUnavailable
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.values[key] = memoryValue{data: value, expiresAt: expires}
	return nil
}

// Incr increments an integer counter stored as a decimal string, applying
// the TTL only on the first increment of the window.
func (m *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, ErrStoreUnavailable
	}
	now := m.now()
	var count int64
	val, ok := m.values[key]
	if ok && (val.expiresAt.IsZero() || !val.expiresAt.Before(now)) {
		count, _ = strconv.ParseInt(string(val.data), 10, 64)
	} else {
		val = memoryValue{}
	}
	count++
	val.data = []byte(strconv.FormatInt(count, 10))
	if count == 1 && ttl > 0 {
		val.expiresAt = now.Add(ttl)
	}
	m.values[key] = val
	return count, nil
}

// DeleteMatching removes keys matching a glob pattern from both key spaces.
func (m *MemoryStore) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, ErrStoreUnavailable
	}
	var deleted int64
	for key := range m.values {
		if globMatch(pattern, key) {
			delete(m.values, key)
			deleted++
		}
	}
	for key := range m.sets {
		if globMatch(pattern, key) {
			delete(m.sets, key)
			deleted++
		}
	}
	return deleted, nil
}

// globMatch matches Redis-style globs: '*' spans any sequence including
// path separators, '?' matches one byte. path.Match is not usable here
// because its '*' stops at '/'.
func globMatch(pattern, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// Ping reports the simulated health state.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrStoreUnavailable
	}
	return nil
}
