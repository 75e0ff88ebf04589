package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/model"
	"github.com/stratadb/strata/internal/service"
	"github.com/stratadb/strata/internal/storage/lineage"
	"github.com/stratadb/strata/internal/tier"
	"github.com/stratadb/strata/internal/util/workerpool"
)

// steppedClock advances only when told, so sweep cutoffs are deterministic
type steppedClock struct {
	current time.Time
}

func newSteppedClock() *steppedClock {
	return &steppedClock{current: time.Unix(1_700_000_000, 0)}
}

func (c *steppedClock) now() time.Time { return c.current }

func (c *steppedClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func consolidationFixture(t *testing.T) (*service.ConsolidationService, *tier.Manager, *lineage.Graph, *steppedClock) {
	t.Helper()
	logger := zap.NewNop()
	clock := newSteppedClock()

	tiers := tier.NewManager(&tier.ManagerConfig{
		HotCapacity:  8,
		WarmCapacity: 32,
	}, logger).WithClock(clock.now)
	graph := lineage.NewGraph()

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "consolidation",
		MaxWorkers: 2,
		QueueSize:  8,
		Logger:     logger,
	})
	t.Cleanup(func() { pool.Stop(time.Second) })

	svc := service.NewConsolidationService(
		&service.ConsolidationConfig{
			HotSweepInterval:  time.Hour,
			WarmSweepInterval: time.Hour,
			ColdSweepInterval: time.Hour,
			HotIdleThreshold:  time.Minute,
			WarmIdleThreshold: 10 * time.Minute,
			FitnessThreshold:  0.5,
			RecencyWeight:     0.5,
			FrequencyWeight:   0.3,
			DescendantWeight:  0.2,
		},
		tiers,
		graph,
		pool,
		nil,
		logger,
	).WithClock(clock.now)

	return svc, tiers, graph, clock
}

func insertTierEntry(tiers *tier.Manager, fullKey, writeID string) {
	tiers.Insert(&model.TierEntry{
		FullKey:   fullKey,
		WriteID:   writeID,
		ContentID: "content-" + writeID,
	})
}

func TestSweepHotIdle(t *testing.T) {
	svc, tiers, _, clock := consolidationFixture(t)

	insertTierEntry(tiers, "ns:idle", "w-idle")
	clock.advance(2 * time.Minute)
	insertTierEntry(tiers, "ns:fresh", "w-fresh")

	moved := svc.SweepHotIdle()
	assert.Equal(t, 1, moved)

	stats := tiers.Stats()
	assert.Equal(t, 1, stats.HotLen)
	assert.Equal(t, 1, stats.WarmLen)

	// Idle again later, the fresh entry crosses the threshold too
	clock.advance(2 * time.Minute)
	assert.Equal(t, 1, svc.SweepHotIdle())
	assert.Equal(t, 0, tiers.Stats().HotLen)
}

func TestSweepWarmIdleSealsEpoch(t *testing.T) {
	svc, tiers, _, clock := consolidationFixture(t)

	insertTierEntry(tiers, "ns:a", "w-a")
	clock.advance(2 * time.Minute)
	require.Equal(t, 1, svc.SweepHotIdle())

	// Not yet past the warm threshold
	clock.advance(5 * time.Minute)
	assert.Equal(t, 0, svc.SweepWarmIdle())

	clock.advance(10 * time.Minute)
	assert.Equal(t, 1, svc.SweepWarmIdle())

	stats := tiers.Stats()
	assert.Equal(t, 0, stats.WarmLen)
	assert.Equal(t, 1, stats.ColdLen)
	assert.Equal(t, 1, stats.ColdEpochs)
}

func TestSweepColdFitnessDemotesDisconnectedIdle(t *testing.T) {
	svc, tiers, graph, clock := consolidationFixture(t)

	// Two cold entries: one with descendants, one idle leaf
	require.NoError(t, graph.Record("w-rooted", nil))
	require.NoError(t, graph.Record("w-child", []string{"w-rooted"}))
	require.NoError(t, graph.Record("w-child2", []string{"w-rooted"}))
	require.NoError(t, graph.Record("w-child3", []string{"w-rooted"}))
	require.NoError(t, graph.Record("w-child4", []string{"w-rooted"}))
	require.NoError(t, graph.Record("w-leaf", nil))

	insertTierEntry(tiers, "ns:rooted", "w-rooted")
	insertTierEntry(tiers, "ns:leaf", "w-leaf")
	clock.advance(2 * time.Minute)
	require.Equal(t, 2, svc.SweepHotIdle())
	clock.advance(20 * time.Minute)
	require.Equal(t, 2, svc.SweepWarmIdle())

	// Both entries are long idle; only the connected one stays cold.
	// recency ~ 0, frequency = log1p(1) * 0.3 ~ 0.21 for both, the rooted
	// entry adds log1p(4) * 0.2 ~ 0.32 and clears the 0.5 threshold.
	clock.advance(24 * time.Hour)
	demoted := svc.SweepColdFitness()
	assert.Equal(t, 1, demoted)

	stats := tiers.Stats()
	assert.Equal(t, 1, stats.ColdLen)
	assert.Equal(t, 1, stats.DeepLen)

	// The demoted entry is the leaf and it remains reachable from deep
	entry, source, ok := tiers.Lookup("ns:leaf")
	require.True(t, ok)
	assert.Equal(t, model.TierDeep, source)
	assert.Equal(t, "w-leaf", entry.WriteID)
}

func TestFitnessWeights(t *testing.T) {
	svc, _, graph, clock := consolidationFixture(t)

	require.NoError(t, graph.Record("w-parent", nil))
	require.NoError(t, graph.Record("w-child", []string{"w-parent"}))

	fresh := &model.TierEntry{WriteID: "w-parent", LastAccess: clock.now(), AccessCount: 1}
	score, descendants := svc.Fitness(fresh)
	assert.Equal(t, 1, descendants)
	assert.Greater(t, score, 0.5)

	stale := &model.TierEntry{WriteID: "w-child", LastAccess: clock.now().Add(-24 * time.Hour), AccessCount: 0}
	staleScore, staleDescendants := svc.Fitness(stale)
	assert.Equal(t, 0, staleDescendants)
	assert.Less(t, staleScore, 0.1)
}

func TestSchedulerLifecycle(t *testing.T) {
	svc, _, _, _ := consolidationFixture(t)

	assert.False(t, svc.Running())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	assert.True(t, svc.Running())

	// Start is idempotent
	svc.Start(ctx)
	assert.True(t, svc.Running())

	svc.Stop()
	assert.False(t, svc.Running())
}

func TestSchedulerSweepsOnTick(t *testing.T) {
	logger := zap.NewNop()
	clock := newSteppedClock()

	tiers := tier.NewManager(&tier.ManagerConfig{
		HotCapacity:  8,
		WarmCapacity: 32,
	}, logger).WithClock(clock.now)
	graph := lineage.NewGraph()

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "consolidation",
		MaxWorkers: 2,
		QueueSize:  8,
		Logger:     logger,
	})
	defer pool.Stop(time.Second)

	svc := service.NewConsolidationService(
		&service.ConsolidationConfig{
			HotSweepInterval:  10 * time.Millisecond,
			WarmSweepInterval: time.Hour,
			ColdSweepInterval: time.Hour,
			HotIdleThreshold:  time.Minute,
			WarmIdleThreshold: time.Hour,
			FitnessThreshold:  0.5,
			RecencyWeight:     0.5,
			FrequencyWeight:   0.3,
			DescendantWeight:  0.2,
		},
		tiers,
		graph,
		pool,
		nil,
		logger,
	).WithClock(clock.now)

	insertTierEntry(tiers, "ns:idle", "w-idle")
	clock.advance(5 * time.Minute)

	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return tiers.Stats().WarmLen == 1
	}, 2*time.Second, 10*time.Millisecond)
}
