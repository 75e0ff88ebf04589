package tier

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/s2"

	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/internal/model"
)

// ColdTier is unbounded. Arriving entries land in an open epoch; the
// consolidation scheduler periodically seals it, packing the batch into a
// single compressed block. Sealed blocks are decoded on demand, so rarely
// touched entries cost a few bytes each instead of a live struct.
type ColdTier struct {
	mu       sync.Mutex
	open     map[string]*model.TierEntry
	openID   string
	openedAt time.Time
	sealed   []*sealedEpoch
	index    map[string]int // full key -> position in sealed
}

type sealedEpoch struct {
	id       string
	sealedAt time.Time
	count    int
	blob     []byte // s2-compressed CBOR-encoded []epochEntry
}

// epochEntry is the wire form of a tier entry inside a sealed block
type epochEntry struct {
	FullKey     string  `cbor:"k"`
	WriteID     string  `cbor:"w"`
	ContentID   string  `cbor:"c"`
	AccessCount int64   `cbor:"a"`
	LastAccess  int64   `cbor:"t"` // unix nanoseconds
	Fitness     float64 `cbor:"f"`
}

// NewColdTier creates a cold tier with a fresh open epoch
func NewColdTier() *ColdTier {
	return &ColdTier{
		open:     make(map[string]*model.TierEntry),
		openID:   uuid.NewString(),
		openedAt: time.Now(),
		index:    make(map[string]int),
	}
}

// Name returns the tier identifier
func (t *ColdTier) Name() model.Tier {
	return model.TierCold
}

// TryGet returns the entry for a key from the open epoch or, failing that,
// by decoding the sealed block holding it
func (t *ColdTier) TryGet(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.open[fullKey]; ok {
		return entry, true
	}

	pos, ok := t.index[fullKey]
	if !ok {
		return nil, false
	}
	entries, err := t.sealed[pos].decode()
	if err != nil {
		return nil, false
	}
	for _, ee := range entries {
		if ee.FullKey == fullKey {
			return ee.toEntry(), true
		}
	}
	return nil, false
}

// Insert adds an entry to the open epoch. A key already present in a
// sealed block is superseded there.
func (t *ColdTier) Insert(entry *model.TierEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry.Tier = model.TierCold
	if pos, ok := t.index[entry.FullKey]; ok {
		t.removeFromSealedLocked(pos, entry.FullKey)
	}
	t.open[entry.FullKey] = entry
}

// Remove deletes and returns the entry for a key
func (t *ColdTier) Remove(fullKey string) (*model.TierEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.open[fullKey]; ok {
		delete(t.open, fullKey)
		return entry, true
	}

	pos, ok := t.index[fullKey]
	if !ok {
		return nil, false
	}
	entry := t.removeFromSealedLocked(pos, fullKey)
	return entry, entry != nil
}

// removeFromSealedLocked extracts one key from a sealed block, rewriting
// the block without it. Caller holds the lock.
func (t *ColdTier) removeFromSealedLocked(pos int, fullKey string) *model.TierEntry {
	epoch := t.sealed[pos]
	entries, err := epoch.decode()
	if err != nil {
		return nil
	}

	var removed *model.TierEntry
	remaining := make([]epochEntry, 0, len(entries))
	for _, ee := range entries {
		if ee.FullKey == fullKey {
			removed = ee.toEntry()
			continue
		}
		remaining = append(remaining, ee)
	}
	if removed == nil {
		return nil
	}

	delete(t.index, fullKey)
	if blob, err := encodeEpoch(remaining); err == nil {
		epoch.blob = blob
		epoch.count = len(remaining)
	}
	return removed
}

// CloseEpoch seals the open epoch into a compressed block and opens a new
// one. Returns the sealed entry count, zero when the epoch was empty.
func (t *ColdTier) CloseEpoch(now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.open) == 0 {
		return 0, nil
	}

	entries := make([]epochEntry, 0, len(t.open))
	for _, entry := range t.open {
		entries = append(entries, fromEntry(entry))
	}
	blob, err := encodeEpoch(entries)
	if err != nil {
		return 0, fmt.Errorf("failed to seal epoch %s: %w", t.openID, err)
	}

	pos := len(t.sealed)
	t.sealed = append(t.sealed, &sealedEpoch{
		id:       t.openID,
		sealedAt: now,
		count:    len(entries),
		blob:     blob,
	})
	for key := range t.open {
		t.index[key] = pos
	}

	t.open = make(map[string]*model.TierEntry)
	t.openID = uuid.NewString()
	t.openedAt = now
	return len(entries), nil
}

// Snapshot returns a copy of every entry, open and sealed. The fitness
// sweep scores placements from this without holding the tier lock.
func (t *ColdTier) Snapshot() []*model.TierEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var all []*model.TierEntry
	for _, entry := range t.open {
		all = append(all, cloneEntry(entry))
	}
	for _, epoch := range t.sealed {
		entries, err := epoch.decode()
		if err != nil {
			continue
		}
		for _, ee := range entries {
			if _, superseded := t.open[ee.FullKey]; superseded {
				continue
			}
			if pos, ok := t.index[ee.FullKey]; !ok || t.sealed[pos] != epoch {
				continue
			}
			all = append(all, ee.toEntry())
		}
	}
	return all
}

// Len returns the total entry count across open and sealed epochs
func (t *ColdTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open) + len(t.index)
}

// SealedEpochs returns the number of sealed blocks
func (t *ColdTier) SealedEpochs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sealed)
}

// CompressedBytes returns the total size of sealed blocks
func (t *ColdTier) CompressedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total int64
	for _, epoch := range t.sealed {
		total += int64(len(epoch.blob))
	}
	return total
}

func encodeEpoch(entries []epochEntry) ([]byte, error) {
	raw, err := codec.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, raw), nil
}

func (e *sealedEpoch) decode() ([]epochEntry, error) {
	raw, err := s2.Decode(nil, e.blob)
	if err != nil {
		return nil, err
	}
	var entries []epochEntry
	if err := codec.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func fromEntry(entry *model.TierEntry) epochEntry {
	return epochEntry{
		FullKey:     entry.FullKey,
		WriteID:     entry.WriteID,
		ContentID:   entry.ContentID,
		AccessCount: entry.AccessCount,
		LastAccess:  entry.LastAccess.UnixNano(),
		Fitness:     entry.Fitness,
	}
}

func (e epochEntry) toEntry() *model.TierEntry {
	return &model.TierEntry{
		FullKey:     e.FullKey,
		WriteID:     e.WriteID,
		ContentID:   e.ContentID,
		Tier:        model.TierCold,
		LastAccess:  time.Unix(0, e.LastAccess),
		AccessCount: e.AccessCount,
		Fitness:     e.Fitness,
	}
}
