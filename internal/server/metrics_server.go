package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stratadb/strata/internal/metrics"
	"github.com/stratadb/strata/internal/service"
)

// MetricsServer serves Prometheus metrics via HTTP
type MetricsServer struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	engine     *service.StorageService
	logger     *zap.Logger
	stopChan   chan struct{}
}

// MetricsServerConfig holds configuration for the metrics server
type MetricsServerConfig struct {
	Port int
}

// NewMetricsServer creates a new metrics server
func NewMetricsServer(cfg *MetricsServerConfig, m *metrics.Metrics, engine *service.StorageService, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()

	ms := &MetricsServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics:  m,
		engine:   engine,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	// Register Prometheus metrics handler
	mux.Handle("/metrics", promhttp.Handler())

	// Register health check endpoint
	mux.HandleFunc("/health", ms.healthHandler)

	// Register readiness endpoint
	mux.HandleFunc("/ready", ms.readyHandler)

	return ms
}

// Start starts the metrics server
func (s *MetricsServer) Start() error {
	s.logger.Info("Starting metrics server", zap.String("addr", s.httpServer.Addr))

	// Start gauge refresher
	go s.collectEngineMetrics()

	// Start HTTP server
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the metrics server
func (s *MetricsServer) Stop() error {
	s.logger.Info("Stopping metrics server")

	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	return nil
}

// healthHandler handles health check requests
func (s *MetricsServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// readyHandler handles readiness check requests
func (s *MetricsServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Check hot tier pressure
	stats := s.engine.Stats()
	hotUtilization := 0.0
	if stats.Tiers.HotCapacity > 0 {
		hotUtilization = float64(stats.Tiers.HotLen) / float64(stats.Tiers.HotCapacity)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","timestamp":"%s","keys":%d,"hot_utilization":%.2f}`,
		time.Now().Format(time.RFC3339), stats.KeyCount, hotUtilization)
}

// collectEngineMetrics periodically refreshes engine and system gauges
func (s *MetricsServer) collectEngineMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateEngineMetrics()
		case <-s.stopChan:
			return
		}
	}
}

// updateEngineMetrics updates engine and system gauges
func (s *MetricsServer) updateEngineMetrics() {
	stats := s.engine.Stats()

	s.metrics.UpdateStoreStats(stats.KeyCount, stats.VersionCount, stats.UniqueValueCount, stats.DedupRatio)
	s.metrics.UpdateLineageStats(stats.LineageNodes, stats.LineageEdges)
	s.metrics.UpdateTierStats(stats.Tiers.HotLen, stats.Tiers.WarmLen, stats.Tiers.ColdLen, stats.Tiers.DeepLen, stats.Tiers.ColdBlockBytes)

	// Get memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.metrics.UpdateSystemStats(int64(memStats.Alloc), runtime.NumGoroutine())
}
