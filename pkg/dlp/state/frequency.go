package state

import (
	"hash/fnv"
	"sync"
	"time"
)

// Clock returns the current time. Swapped out in tests.
type Clock func() time.Time

const shardCount = 32

// Tracker holds sliding-window match counters keyed by (subject, rule).
// Counters are created lazily on first use. Keys hash onto shards so
// concurrent evaluations of unrelated keys never contend on one lock;
// operations on the same key are serialized by the shard mutex, making
// increment-then-count linearizable per key.
type Tracker struct {
	shards [shardCount]*shard
	clock  Clock
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	entries []entry
}

type entry struct {
	ts       time.Time
	distinct string
}

// NewTracker creates a tracker using the real clock.
func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

// NewTrackerWithClock creates a tracker with an injected clock.
func NewTrackerWithClock(clock Clock) *Tracker {
	t := &Tracker{clock: clock}
	for i := range t.shards {
		t.shards[i] = &shard{counters: make(map[string]*counter)}
	}
	return t
}

// Key builds the counter key for a subject under a specific policy rule.
func Key(subject, policyID, ruleID string) string {
	return subject + "\x00" + policyID + "\x00" + ruleID
}

// RecordAndCount appends one match observation for key and returns the
// rolling count of observations whose timestamp falls inside
// [now-window, now]. When distinctField is set the count is of distinct
// values instead of raw observations. Append, eviction, and count happen
// under one lock so concurrent callers never lose updates.
func (t *Tracker) RecordAndCount(key string, ts time.Time, window time.Duration, distinctValue string, distinct bool) int {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &counter{}
		s.counters[key] = c
	}

	c.entries = append(c.entries, entry{ts: ts, distinct: distinctValue})
	return c.countLocked(t.clock(), window, distinct)
}

// Count returns the rolling count for key without recording anything.
func (t *Tracker) Count(key string, window time.Duration, distinct bool) int {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return 0
	}
	return c.countLocked(t.clock(), window, distinct)
}

// countLocked evicts entries that aged out of the window, then counts
// entries inside [now-window, now]. Entries timestamped ahead of now are
// kept but not counted: out-of-order arrival is expected and they become
// countable once the clock catches up.
func (c *counter) countLocked(now time.Time, window time.Duration, distinct bool) int {
	cutoff := now.Add(-window)

	kept := c.entries[:0]
	for _, e := range c.entries {
		if !e.ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	c.entries = kept

	if !distinct {
		n := 0
		for _, e := range c.entries {
			if !e.ts.After(now) {
				n++
			}
		}
		return n
	}

	seen := make(map[string]struct{}, len(c.entries))
	for _, e := range c.entries {
		if !e.ts.After(now) {
			seen[e.distinct] = struct{}{}
		}
	}
	return len(seen)
}

// Sweep drops counters whose newest entry is older than maxAge, bounding
// memory for subjects that went quiet. Intended to run on a schedule.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	cutoff := t.clock().Add(-maxAge)
	removed := 0

	for _, s := range t.shards {
		s.mu.Lock()
		for key, c := range s.counters {
			if len(c.entries) == 0 || c.entries[len(c.entries)-1].ts.Before(cutoff) {
				delete(s.counters, key)
				removed++
			}
		}
		s.mu.Unlock()
	}

	return removed
}

// Len returns the number of live counters.
func (t *Tracker) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.counters)
		s.mu.Unlock()
	}
	return n
}

func (t *Tracker) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%shardCount]
}
