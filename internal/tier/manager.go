package tier

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/internal/model"
)

// Manager composes the four tiers into one cascading lookup. Every
// cross-tier movement happens under a single lock, so an entry is never
// observable in two tiers at once, or in none.
type Manager struct {
	mu     sync.Mutex
	hot    *HotTier
	warm   *WarmTier
	cold   *ColdTier
	deep   *DeepTier
	logger *zap.Logger
	now    func() time.Time
}

// ManagerConfig holds tier sizing
type ManagerConfig struct {
	HotCapacity  int
	WarmCapacity int
}

// NewManager creates the four tiers and wires their eviction sinks into
// the cascade: hot overflows into warm, warm overflows into cold
func NewManager(cfg *ManagerConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		hot:    NewHotTier(cfg.HotCapacity),
		warm:   NewWarmTier(cfg.WarmCapacity),
		cold:   NewColdTier(),
		deep:   NewDeepTier(),
		logger: logger,
		now:    time.Now,
	}
	m.hot.SetEvictionSink(m.warm.Insert)
	m.warm.SetEvictionSink(m.cold.Insert)
	return m
}

// WithClock overrides the time source. Sweeps and access stamps become
// deterministic under test.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Lookup cascades hot, warm, cold, deep. The first tier with a hit touches
// the entry's access metadata; hits below hot move the entry into hot
// before returning. Returns the tier that served the hit.
func (m *Manager) Lookup(fullKey string) (*model.TierEntry, model.Tier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if entry, ok := m.hot.TryGet(fullKey); ok {
		entry.Touch(now)
		return entry, model.TierHot, true
	}

	for _, lower := range []Store{m.warm, m.cold, m.deep} {
		entry, ok := lower.Remove(fullKey)
		if !ok {
			continue
		}
		source := lower.Name()
		entry.Touch(now)
		m.hot.Insert(entry)
		m.logger.Debug("Promoted tier entry",
			zap.String("full_key", fullKey),
			zap.String("from", string(source)))
		return entry, source, true
	}

	return nil, "", false
}

// Insert places a fresh entry into the hot tier. Used on writes and on
// the cold-start path when only the version store still knows the key.
// Any stale placement of the same key in a lower tier is dropped first,
// so a re-written key never appears in two tiers.
func (m *Manager) Insert(entry *model.TierEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lower := range []Store{m.warm, m.cold, m.deep} {
		lower.Remove(entry.FullKey)
	}
	entry.Touch(m.now())
	m.hot.Insert(entry)
}

// Remove drops a key from whichever tier holds it
func (m *Manager) Remove(fullKey string) (*model.TierEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, store := range []Store{m.hot, m.warm, m.cold, m.deep} {
		if entry, ok := store.Remove(fullKey); ok {
			return entry, true
		}
	}
	return nil, false
}

// DemoteHotIdle moves hot entries idle past the cutoff into warm.
// Returns the number of entries moved.
func (m *Manager) DemoteHotIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	for _, key := range m.hot.IdleKeys(cutoff) {
		if entry, ok := m.hot.Remove(key); ok {
			m.warm.Insert(entry)
			moved++
		}
	}
	return moved
}

// DemoteWarmIdle moves warm entries idle past the cutoff into the cold
// tier's open epoch. Returns the number of entries moved.
func (m *Manager) DemoteWarmIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	moved := 0
	for _, key := range m.warm.IdleKeys(cutoff) {
		if entry, ok := m.warm.Remove(key); ok {
			m.cold.Insert(entry)
			moved++
		}
	}
	return moved
}

// CloseColdEpoch seals the cold tier's open epoch
func (m *Manager) CloseColdEpoch() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cold.CloseEpoch(m.now())
}

// DemoteColdUnfit scores every cold entry with the supplied function and
// demotes those below the threshold to deep summaries. Scoring runs on a
// snapshot; the move itself re-checks presence, so a concurrent promotion
// wins over a stale demotion decision.
func (m *Manager) DemoteColdUnfit(threshold float64, score func(*model.TierEntry) (float64, int)) int {
	snapshot := m.cold.Snapshot()

	demoted := 0
	for _, candidate := range snapshot {
		fitness, descendants := score(candidate)
		if fitness >= threshold {
			continue
		}

		m.mu.Lock()
		entry, ok := m.cold.Remove(candidate.FullKey)
		if ok {
			entry.Fitness = fitness
			m.deep.InsertSummary(model.EntrySummary{
				FullKey:         entry.FullKey,
				WriteID:         entry.WriteID,
				ContentID:       entry.ContentID,
				AccessCount:     entry.AccessCount,
				LastAccess:      entry.LastAccess,
				Fitness:         fitness,
				DescendantCount: descendants,
				DemotedAt:       m.now(),
			})
			demoted++
		}
		m.mu.Unlock()
	}
	return demoted
}

// ExportGenome serializes the deep tier plus lineage topology counters
// into a deterministic encoding
func (m *Manager) ExportGenome(roots []string, nodeCount, edgeCount int) ([]byte, error) {
	genome := model.Genome{
		Roots:      roots,
		Entries:    m.deep.Summaries(),
		NodeCount:  nodeCount,
		EdgeCount:  edgeCount,
		ExportedAt: m.now(),
	}
	return codec.Marshal(genome)
}

// Stats reports per-tier occupancy
type Stats struct {
	HotLen         int
	HotCapacity    int
	WarmLen        int
	WarmCapacity   int
	ColdLen        int
	ColdEpochs     int
	ColdBlockBytes int64
	DeepLen        int
}

// Stats returns current per-tier occupancy
func (m *Manager) Stats() Stats {
	return Stats{
		HotLen:         m.hot.Len(),
		HotCapacity:    m.hot.Capacity(),
		WarmLen:        m.warm.Len(),
		WarmCapacity:   m.warm.Capacity(),
		ColdLen:        m.cold.Len(),
		ColdEpochs:     m.cold.SealedEpochs(),
		ColdBlockBytes: m.cold.CompressedBytes(),
		DeepLen:        m.deep.Len(),
	}
}
