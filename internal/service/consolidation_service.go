package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/metrics"
	"github.com/stratadb/strata/internal/model"
	"github.com/stratadb/strata/internal/storage/lineage"
	"github.com/stratadb/strata/internal/tier"
	"github.com/stratadb/strata/internal/util/workerpool"
)

// ConsolidationService is the background scheduler that migrates entries
// down the tier hierarchy. Three sub-sweeps run on independent intervals:
// a short hot-idle sweep, a medium warm-idle sweep that also closes the
// cold epoch, and a long fitness sweep that demotes unfit cold entries to
// deep. Sweeps run through the worker pool and never block foreground
// reads or writes.
type ConsolidationService struct {
	config     *ConsolidationConfig
	tiers      *tier.Manager
	graph      *lineage.Graph
	workerPool *workerpool.WorkerPool
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
	stopOnce   sync.Once
	stopChan   chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

// ConsolidationConfig holds scheduler configuration
type ConsolidationConfig struct {
	HotSweepInterval  time.Duration
	WarmSweepInterval time.Duration
	ColdSweepInterval time.Duration
	HotIdleThreshold  time.Duration
	WarmIdleThreshold time.Duration
	FitnessThreshold  float64
	RecencyWeight     float64
	FrequencyWeight   float64
	DescendantWeight  float64
}

// NewConsolidationService creates a new consolidation scheduler
func NewConsolidationService(
	cfg *ConsolidationConfig,
	tiers *tier.Manager,
	graph *lineage.Graph,
	pool *workerpool.WorkerPool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ConsolidationService {
	return &ConsolidationService{
		config:     cfg,
		tiers:      tiers,
		graph:      graph,
		workerPool: pool,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		stopChan:   make(chan struct{}),
	}
}

// WithClock overrides the time source for deterministic testing
func (s *ConsolidationService) WithClock(now func() time.Time) *ConsolidationService {
	s.now = now
	return s
}

// Start launches the three sweep loops. Lifecycle is explicit: the
// scheduler does nothing until started and stops cleanly between sweeps.
func (s *ConsolidationService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(3)
	go s.sweepLoop(ctx, s.config.HotSweepInterval, "hot_idle", s.SweepHotIdle)
	go s.sweepLoop(ctx, s.config.WarmSweepInterval, "warm_idle", s.SweepWarmIdle)
	go s.sweepLoop(ctx, s.config.ColdSweepInterval, "cold_fitness", s.SweepColdFitness)

	s.logger.Info("Consolidation scheduler started",
		zap.Duration("hot_interval", s.config.HotSweepInterval),
		zap.Duration("warm_interval", s.config.WarmSweepInterval),
		zap.Duration("cold_interval", s.config.ColdSweepInterval))
}

// Stop halts the scheduler and waits for in-flight sweeps to finish
func (s *ConsolidationService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Consolidation scheduler stopped")
}

// Running reports whether the scheduler is active
func (s *ConsolidationService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ConsolidationService) sweepLoop(ctx context.Context, interval time.Duration, name string, sweep func() int) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.submitSweep(ctx, name, sweep)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *ConsolidationService) submitSweep(ctx context.Context, name string, sweep func() int) {
	task := workerpool.Task{
		ID: name + "-" + uuid.NewString(),
		Fn: func(context.Context) error {
			moved := sweep()
			if moved > 0 {
				s.logger.Debug("Sweep moved entries",
					zap.String("sweep", name),
					zap.Int("moved", moved))
			}
			if s.metrics != nil {
				s.metrics.RecordSweep(name, moved)
			}
			return nil
		},
		Context: ctx,
	}

	if !s.workerPool.TrySubmit(task) {
		s.logger.Warn("Worker pool rejected sweep, running inline", zap.String("sweep", name))
		task.Fn(ctx)
	}
}

// SweepHotIdle demotes hot entries idle past the hot threshold into warm.
// Returns the number of entries moved.
func (s *ConsolidationService) SweepHotIdle() int {
	cutoff := s.now().Add(-s.config.HotIdleThreshold)
	return s.tiers.DemoteHotIdle(cutoff)
}

// SweepWarmIdle demotes warm entries idle past the warm threshold into the
// cold tier's open epoch, then closes the epoch. Returns the number of
// entries moved.
func (s *ConsolidationService) SweepWarmIdle() int {
	cutoff := s.now().Add(-s.config.WarmIdleThreshold)
	moved := s.tiers.DemoteWarmIdle(cutoff)

	sealed, err := s.tiers.CloseColdEpoch()
	if err != nil {
		s.logger.Error("Failed to close cold epoch", zap.Error(err))
	} else if sealed > 0 {
		s.logger.Info("Sealed cold epoch", zap.Int("entries", sealed))
	}
	return moved
}

// SweepColdFitness scores every cold entry and demotes those below the
// fitness threshold to deep summaries. Returns the number demoted.
func (s *ConsolidationService) SweepColdFitness() int {
	return s.tiers.DemoteColdUnfit(s.config.FitnessThreshold, s.Fitness)
}

// Fitness computes an entry's retention score: a weighted combination of
// access recency, access frequency, and lineage descendant count. Higher
// means more worth keeping in cold.
func (s *ConsolidationService) Fitness(entry *model.TierEntry) (float64, int) {
	idle := s.now().Sub(entry.LastAccess).Seconds()
	if idle < 0 {
		idle = 0
	}
	descendants := s.graph.DescendantCount(entry.WriteID)

	recency := 1.0 / (1.0 + idle)
	frequency := math.Log1p(float64(entry.AccessCount))
	connectivity := math.Log1p(float64(descendants))

	score := s.config.RecencyWeight*recency +
		s.config.FrequencyWeight*frequency +
		s.config.DescendantWeight*connectivity
	return score, descendants
}
