package tier

import (
	"sync"
	"time"

	"github.com/stratadb/strata/internal/model"
)

// DeepTier is the floor of the hierarchy: per-entry summaries only, never
// evicted further. A hit regenerates an approximate tier entry from the
// summary; the payload itself is recovered from the version store, which
// never forgets.
type DeepTier struct {
	mu      sync.Mutex
	entries map[string]model.EntrySummary
}

// NewDeepTier creates an empty deep tier
func NewDeepTier() *DeepTier {
	return &DeepTier{
		entries: make(map[string]model.EntrySummary),
	}
}

// Name returns the tier identifier
func (t *DeepTier) Name() model.Tier {
	return model.TierDeep
}

// TryGet regenerates a tier entry from the retained summary
func (t *DeepTier) TryGet(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary, ok := t.entries[fullKey]
	if !ok {
		return nil, false
	}
	return regenerate(summary), true
}

// Insert reduces an entry to its summary form
func (t *DeepTier) Insert(entry *model.TierEntry) {
	t.InsertSummary(model.EntrySummary{
		FullKey:     entry.FullKey,
		WriteID:     entry.WriteID,
		ContentID:   entry.ContentID,
		AccessCount: entry.AccessCount,
		LastAccess:  entry.LastAccess,
		Fitness:     entry.Fitness,
		DemotedAt:   time.Now(),
	})
}

// InsertSummary stores a prepared summary, keeping descendant counts the
// fitness sweep already computed
func (t *DeepTier) InsertSummary(summary model.EntrySummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[summary.FullKey] = summary
}

// Remove deletes and returns the regenerated entry for a key. Used when a
// read promotes a deep entry back into the working set.
func (t *DeepTier) Remove(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary, ok := t.entries[fullKey]
	if !ok {
		return nil, false
	}
	delete(t.entries, fullKey)
	return regenerate(summary), true
}

// Len returns the number of retained summaries
func (t *DeepTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Summaries returns a copy of all retained summaries for genome export
func (t *DeepTier) Summaries() []model.EntrySummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.EntrySummary, 0, len(t.entries))
	for _, summary := range t.entries {
		out = append(out, summary)
	}
	return out
}

func regenerate(summary model.EntrySummary) *model.TierEntry {
	return &model.TierEntry{
		FullKey:     summary.FullKey,
		WriteID:     summary.WriteID,
		ContentID:   summary.ContentID,
		Tier:        model.TierDeep,
		LastAccess:  summary.LastAccess,
		AccessCount: summary.AccessCount,
		Fitness:     summary.Fitness,
	}
}
