package tier

import (
	"sync"
	"time"

	"github.com/stratadb/strata/internal/model"
)

// WarmTier holds entries aged out of the hot working set. It is bounded but
// larger than hot; over-capacity inserts push the longest-idle entry into
// the eviction sink (the cold tier).
type WarmTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*model.TierEntry
	sink     evictionSink
}

// NewWarmTier creates a warm tier with a fixed entry capacity
func NewWarmTier(capacity int) *WarmTier {
	if capacity <= 0 {
		capacity = 1
	}
	return &WarmTier{
		capacity: capacity,
		entries:  make(map[string]*model.TierEntry),
	}
}

// SetEvictionSink wires the destination for evicted entries
func (t *WarmTier) SetEvictionSink(sink evictionSink) {
	t.sink = sink
}

// Name returns the tier identifier
func (t *WarmTier) Name() model.Tier {
	return model.TierWarm
}

// TryGet returns the entry for a key
func (t *WarmTier) TryGet(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[fullKey]
	return entry, ok
}

// Insert adds or replaces an entry, evicting the longest-idle entry if
// the tier is over capacity
func (t *WarmTier) Insert(entry *model.TierEntry) {
	var evicted []*model.TierEntry

	t.mu.Lock()
	entry.Tier = model.TierWarm
	t.entries[entry.FullKey] = entry
	for len(t.entries) > t.capacity {
		victim := t.idlestLocked()
		if victim == nil {
			break
		}
		delete(t.entries, victim.FullKey)
		evicted = append(evicted, victim)
	}
	t.mu.Unlock()

	if t.sink != nil {
		for _, victim := range evicted {
			t.sink(victim)
		}
	}
}

// idlestLocked returns the entry with the oldest last access.
// Caller holds the lock.
func (t *WarmTier) idlestLocked() *model.TierEntry {
	var victim *model.TierEntry
	for _, entry := range t.entries {
		if victim == nil || entry.LastAccess.Before(victim.LastAccess) {
			victim = entry
		}
	}
	return victim
}

// Remove deletes and returns the entry for a key
func (t *WarmTier) Remove(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[fullKey]
	if ok {
		delete(t.entries, fullKey)
	}
	return entry, ok
}

// Len returns the current entry count
func (t *WarmTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Capacity returns the configured entry bound
func (t *WarmTier) Capacity() int {
	return t.capacity
}

// IdleKeys returns keys whose last access is at or before the cutoff
func (t *WarmTier) IdleKeys(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idle []string
	for key, entry := range t.entries {
		if !entry.LastAccess.After(cutoff) {
			idle = append(idle, key)
		}
	}
	return idle
}
