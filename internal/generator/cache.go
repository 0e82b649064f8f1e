package generator

import (
	"sync"
	"time"

	"adapilot/internal/signal"
)

// dedupCache remembers signal fingerprints for a sliding window so the
// service can drop functionally identical signals emitted close together.
type dedupCache struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[uint64]time.Time
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{window: window, seen: make(map[uint64]time.Time)}
}

// Seen reports whether fp is inside the window. Expired entries are swept on
// every lookup. Membership is recorded separately, on acceptance only, so a
// rate-limited signal does not block a later identical one.
func (c *dedupCache) Seen(fp uint64, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.window)
	for k, ts := range c.seen {
		if ts.Before(cutoff) {
			delete(c.seen, k)
		}
	}
	ts, ok := c.seen[fp]
	return ok && !ts.Before(cutoff)
}

func (c *dedupCache) Record(fp uint64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[fp] = now
}

func (c *dedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// signalCache retains emitted signals by id for a bounded horizon so other
// components can resolve a signal after the fact.
type signalCache struct {
	mu      sync.Mutex
	horizon time.Duration
	entries map[string]*signal.TradingSignal
	stored  map[string]time.Time
}

func newSignalCache(horizon time.Duration) *signalCache {
	return &signalCache{
		horizon: horizon,
		entries: make(map[string]*signal.TradingSignal),
		stored:  make(map[string]time.Time),
	}
}

func (c *signalCache) Put(s *signal.TradingSignal, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.horizon)
	for id, ts := range c.stored {
		if ts.Before(cutoff) {
			delete(c.entries, id)
			delete(c.stored, id)
		}
	}
	c.entries[s.ID] = s
	c.stored[s.ID] = now
}

func (c *signalCache) Get(id string) (*signal.TradingSignal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[id]
	return s, ok
}

// Snapshot returns the cached signals, newest first.
func (c *signalCache) Snapshot() []*signal.TradingSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*signal.TradingSignal, 0, len(c.entries))
	for _, s := range c.entries {
		out = append(out, s)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Timestamp.After(out[i].Timestamp) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
