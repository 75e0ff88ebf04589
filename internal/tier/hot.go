package tier

import (
	"container/list"
	"sync"
	"time"

	"github.com/stratadb/strata/internal/model"
)

// HotTier is a bounded, least-recently-used store for the working set.
// Over-capacity inserts push the LRU entry into the eviction sink, which
// the manager wires to the warm tier.
type HotTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element // full key -> lru element
	lru      *list.List               // front = most recently used
	sink     evictionSink
}

// NewHotTier creates a hot tier with a fixed entry capacity
func NewHotTier(capacity int) *HotTier {
	if capacity <= 0 {
		capacity = 1
	}
	return &HotTier{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// SetEvictionSink wires the destination for evicted entries
func (t *HotTier) SetEvictionSink(sink evictionSink) {
	t.sink = sink
}

// Name returns the tier identifier
func (t *HotTier) Name() model.Tier {
	return model.TierHot
}

// TryGet returns the entry and marks it most recently used
func (t *HotTier) TryGet(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[fullKey]
	if !ok {
		return nil, false
	}
	t.lru.MoveToFront(elem)
	return elem.Value.(*model.TierEntry), true
}

// Insert adds or replaces an entry, evicting the least-recently-used
// entry if the tier is over capacity
func (t *HotTier) Insert(entry *model.TierEntry) {
	var evicted []*model.TierEntry

	t.mu.Lock()
	entry.Tier = model.TierHot
	if elem, ok := t.entries[entry.FullKey]; ok {
		elem.Value = entry
		t.lru.MoveToFront(elem)
	} else {
		t.entries[entry.FullKey] = t.lru.PushFront(entry)
	}
	for t.lru.Len() > t.capacity {
		oldest := t.lru.Back()
		victim := oldest.Value.(*model.TierEntry)
		t.lru.Remove(oldest)
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

// Remove deletes and returns the entry for a key
func (t *HotTier) Remove(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[fullKey]
	if !ok {
		return nil, false
	}
	t.lru.Remove(elem)
	delete(t.entries, fullKey)
	return elem.Value.(*model.TierEntry), true
}

// Len returns the current entry count
func (t *HotTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

// Capacity returns the configured entry bound
func (t *HotTier) Capacity() int {
	return t.capacity
}

// IdleKeys returns keys whose last access is at or before the cutoff
func (t *HotTier) IdleKeys(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idle []string
	for key, elem := range t.entries {
		if !elem.Value.(*model.TierEntry).LastAccess.After(cutoff) {
			idle = append(idle, key)
		}
	}
	return idle
}
