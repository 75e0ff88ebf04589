package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	// Operation metrics
	PutRequestsTotal   prometheus.Counter
	PutRequestsDuration prometheus.Histogram
	PutRequestsBytes   prometheus.Histogram
	GetRequestsTotal   prometheus.CounterVec
	GetRequestsDuration prometheus.Histogram
	GetMissesTotal     prometheus.Counter

	// Tier metrics
	TierEntriesTotal    prometheus.GaugeVec
	TierPromotionsTotal prometheus.CounterVec
	TierDemotionsTotal  prometheus.CounterVec
	ColdEpochsSealed    prometheus.Counter
	ColdBlockBytes      prometheus.Gauge

	// Version store metrics
	VersionsTotal     prometheus.Gauge
	UniqueValuesTotal prometheus.Gauge
	KeysTotal         prometheus.Gauge
	DedupRatio        prometheus.Gauge

	// Lineage metrics
	LineageNodesTotal prometheus.Gauge
	LineageEdgesTotal prometheus.Gauge

	// Commit log metrics
	CommitLogAppendsTotal prometheus.Counter
	CommitLogReplayedTotal prometheus.Counter

	// Consolidation metrics
	SweepRunsTotal     prometheus.CounterVec
	SweepMovedTotal    prometheus.CounterVec

	// System metrics
	MemoryUsageBytes prometheus.Gauge
	GoroutinesTotal  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	return &Metrics{
		PutRequestsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "engine",
			Name:        "put_requests_total",
			Help:        "Total number of put requests",
			ConstLabels: labels,
		}),
		PutRequestsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "strata",
			Subsystem:   "engine",
			Name:        "put_requests_duration_seconds",
			Help:        "Histogram of put request durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		PutRequestsBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "strata",
			Subsystem:   "engine",
			Name:        "put_requests_bytes",
			Help:        "Histogram of put payload sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(256, 2, 10), // 256B to 128KB
		}),
		GetRequestsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "engine",
			Name:        "get_requests_total",
			Help:        "Total number of get requests by serving source",
			ConstLabels: labels,
		}, []string{"source"}),
		GetRequestsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "strata",
			Subsystem:   "engine",
			Name:        "get_requests_duration_seconds",
			Help:        "Histogram of get request durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		GetMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "engine",
			Name:        "get_misses_total",
			Help:        "Total number of get requests for absent keys",
			ConstLabels: labels,
		}),

		TierEntriesTotal: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "tier",
			Name:        "entries_total",
			Help:        "Current number of entries by tier",
			ConstLabels: labels,
		}, []string{"tier"}),
		TierPromotionsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "tier",
			Name:        "promotions_total",
			Help:        "Total promotions into hot by source tier",
			ConstLabels: labels,
		}, []string{"from"}),
		TierDemotionsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "tier",
			Name:        "demotions_total",
			Help:        "Total demotions by destination tier",
			ConstLabels: labels,
		}, []string{"to"}),
		ColdEpochsSealed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "tier",
			Name:        "cold_epochs_sealed_total",
			Help:        "Total number of sealed cold epochs",
			ConstLabels: labels,
		}),
		ColdBlockBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "tier",
			Name:        "cold_block_bytes",
			Help:        "Total compressed size of sealed cold blocks",
			ConstLabels: labels,
		}),

		VersionsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "store",
			Name:        "versions_total",
			Help:        "Total number of retained versions",
			ConstLabels: labels,
		}),
		UniqueValuesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "store",
			Name:        "unique_values_total",
			Help:        "Number of distinct deduplicated payloads",
			ConstLabels: labels,
		}),
		KeysTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "store",
			Name:        "keys_total",
			Help:        "Number of keys with a live current version",
			ConstLabels: labels,
		}),
		DedupRatio: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "store",
			Name:        "dedup_ratio",
			Help:        "Unique payloads divided by total versions",
			ConstLabels: labels,
		}),

		LineageNodesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "lineage",
			Name:        "nodes_total",
			Help:        "Number of recorded lineage nodes",
			ConstLabels: labels,
		}),
		LineageEdgesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "lineage",
			Name:        "edges_total",
			Help:        "Number of recorded lineage edges",
			ConstLabels: labels,
		}),

		CommitLogAppendsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "commitlog",
			Name:        "appends_total",
			Help:        "Total number of commit log appends",
			ConstLabels: labels,
		}),
		CommitLogReplayedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "commitlog",
			Name:        "replayed_entries_total",
			Help:        "Total number of entries replayed at startup",
			ConstLabels: labels,
		}),

		SweepRunsTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "consolidation",
			Name:        "sweep_runs_total",
			Help:        "Total sweep executions by sweep name",
			ConstLabels: labels,
		}, []string{"sweep"}),
		SweepMovedTotal: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "strata",
			Subsystem:   "consolidation",
			Name:        "sweep_moved_total",
			Help:        "Total entries migrated by sweep name",
			ConstLabels: labels,
		}, []string{"sweep"}),

		MemoryUsageBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Current memory usage in bytes",
			ConstLabels: labels,
		}),
		GoroutinesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace:   "strata",
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Current number of goroutines",
			ConstLabels: labels,
		}),
	}
}

// RecordPut records metrics for a put request
func (m *Metrics) RecordPut(duration float64, bytes int) {
	m.PutRequestsTotal.Inc()
	m.PutRequestsDuration.Observe(duration)
	m.PutRequestsBytes.Observe(float64(bytes))
	m.CommitLogAppendsTotal.Inc()
}

// RecordGet records metrics for a get request served by the given source
func (m *Metrics) RecordGet(duration float64, source string) {
	m.GetRequestsTotal.WithLabelValues(source).Inc()
	m.GetRequestsDuration.Observe(duration)
	if source != "hot" {
		m.TierPromotionsTotal.WithLabelValues(source).Inc()
	}
}

// RecordGetMiss records a get for an absent key
func (m *Metrics) RecordGetMiss() {
	m.GetMissesTotal.Inc()
}

// RecordReplayedEntry records one replayed commit log entry
func (m *Metrics) RecordReplayedEntry() {
	m.CommitLogReplayedTotal.Inc()
}

// RecordSweep records one sweep execution and the entries it migrated
func (m *Metrics) RecordSweep(sweep string, moved int) {
	m.SweepRunsTotal.WithLabelValues(sweep).Inc()
	m.SweepMovedTotal.WithLabelValues(sweep).Add(float64(moved))
}

// UpdateTierStats updates per-tier occupancy gauges
func (m *Metrics) UpdateTierStats(hot, warm, cold, deep int, epochBytes int64) {
	m.TierEntriesTotal.WithLabelValues("hot").Set(float64(hot))
	m.TierEntriesTotal.WithLabelValues("warm").Set(float64(warm))
	m.TierEntriesTotal.WithLabelValues("cold").Set(float64(cold))
	m.TierEntriesTotal.WithLabelValues("deep").Set(float64(deep))
	m.ColdBlockBytes.Set(float64(epochBytes))
}

// UpdateStoreStats updates version store gauges
func (m *Metrics) UpdateStoreStats(keys, versions, uniqueValues int, dedupRatio float64) {
	m.KeysTotal.Set(float64(keys))
	m.VersionsTotal.Set(float64(versions))
	m.UniqueValuesTotal.Set(float64(uniqueValues))
	m.DedupRatio.Set(dedupRatio)
}

// UpdateLineageStats updates lineage graph gauges
func (m *Metrics) UpdateLineageStats(nodes, edges int) {
	m.LineageNodesTotal.Set(float64(nodes))
	m.LineageEdgesTotal.Set(float64(edges))
}

// UpdateSystemStats updates process-level gauges
func (m *Metrics) UpdateSystemStats(memoryUsage int64, goroutines int) {
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}
