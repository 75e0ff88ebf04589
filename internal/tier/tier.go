package tier

import (
	"github.com/stratadb/strata/internal/model"
)

// Store is the uniform capability set every tier implements. The manager
// composes stores into an ordered cascade; no tier knows about any other.
type Store interface {
	Name() model.Tier
	TryGet(fullKey string) (*model.TierEntry, bool)
	Insert(entry *model.TierEntry)
	Remove(fullKey string) (*model.TierEntry, bool)
	Len() int
}

// evictionSink receives entries a tier pushes out when over capacity
type evictionSink func(entry *model.TierEntry)

func cloneEntry(e *model.TierEntry) *model.TierEntry {
	c := *e
	return &c
}
