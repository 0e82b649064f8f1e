package generator

import (
	"fmt"
	"sync"
	"time"
)

// rateLimiter enforces minimum spacing between emitted signals and a trailing
// hourly ceiling. Spacing is checked before the ceiling so a rejection always
// carries a single authoritative reason.
type rateLimiter struct {
	mu         sync.Mutex
	minSpacing time.Duration
	maxPerHour int
	emitted    []time.Time
}

func newRateLimiter(minSpacing time.Duration, maxPerHour int) *rateLimiter {
	return &rateLimiter{minSpacing: minSpacing, maxPerHour: maxPerHour}
}

// Allow reports whether a signal may be emitted at now, recording it when
// permitted. On rejection the reason names the violated rule.
func (r *rateLimiter) Allow(now time.Time) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	kept := r.emitted[:0]
	for _, ts := range r.emitted {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.emitted = kept

	if r.minSpacing > 0 && len(r.emitted) > 0 {
		last := r.emitted[len(r.emitted)-1]
		if now.Sub(last) < r.minSpacing {
			return false, fmt.Sprintf("minimum spacing %s not elapsed since last signal", r.minSpacing)
		}
	}
	if r.maxPerHour > 0 && len(r.emitted) >= r.maxPerHour {
		return false, fmt.Sprintf("hourly ceiling of %d signals reached", r.maxPerHour)
	}
	r.emitted = append(r.emitted, now)
	return true, ""
}

// CountLastHour returns how many signals were emitted in the trailing hour.
func (r *rateLimiter) CountLastHour(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-time.Hour)
	n := 0
	for _, ts := range r.emitted {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
