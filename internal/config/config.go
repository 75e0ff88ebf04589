package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the engine
type Config struct {
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	CommitLog     CommitLogConfig     `yaml:"commit_log"`
	Tiers         TiersConfig         `yaml:"tiers"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	WorkerPool    WorkerPoolConfig    `yaml:"worker_pool"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// EngineConfig holds engine identity and shutdown configuration
type EngineConfig struct {
	NodeID          string        `yaml:"node_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds storage paths
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	CommitLogDir string `yaml:"commit_log_dir"`
}

// CommitLogConfig holds commit log configuration
type CommitLogConfig struct {
	SegmentSize int64 `yaml:"segment_size"`
	SyncWrites  bool  `yaml:"sync_writes"`
}

// TiersConfig holds tier sizing
type TiersConfig struct {
	HotCapacity  int `yaml:"hot_capacity"`
	WarmCapacity int `yaml:"warm_capacity"`
}

// ConsolidationConfig holds the background scheduler configuration
type ConsolidationConfig struct {
	HotSweepInterval  time.Duration `yaml:"hot_sweep_interval"`
	WarmSweepInterval time.Duration `yaml:"warm_sweep_interval"`
	ColdSweepInterval time.Duration `yaml:"cold_sweep_interval"`
	HotIdleThreshold  time.Duration `yaml:"hot_idle_threshold"`
	WarmIdleThreshold time.Duration `yaml:"warm_idle_threshold"`
	FitnessThreshold  float64       `yaml:"fitness_threshold"`
	RecencyWeight     float64       `yaml:"recency_weight"`
	FrequencyWeight   float64       `yaml:"frequency_weight"`
	DescendantWeight  float64       `yaml:"descendant_weight"`
}

// WorkerPoolConfig holds background worker pool sizing
type WorkerPoolConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueSize  int `yaml:"queue_size"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Engine.ShutdownTimeout == 0 {
		cfg.Engine.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/strata"
	}
	if cfg.Storage.CommitLogDir == "" {
		cfg.Storage.CommitLogDir = cfg.Storage.DataDir + "/commitlog"
	}

	if cfg.CommitLog.SegmentSize == 0 {
		cfg.CommitLog.SegmentSize = 67108864 // 64MB
	}

	if cfg.Tiers.HotCapacity == 0 {
		cfg.Tiers.HotCapacity = 1024
	}
	if cfg.Tiers.WarmCapacity == 0 {
		cfg.Tiers.WarmCapacity = 8192
	}

	if cfg.Consolidation.HotSweepInterval == 0 {
		cfg.Consolidation.HotSweepInterval = 30 * time.Second
	}
	if cfg.Consolidation.WarmSweepInterval == 0 {
		cfg.Consolidation.WarmSweepInterval = 5 * time.Minute
	}
	if cfg.Consolidation.ColdSweepInterval == 0 {
		cfg.Consolidation.ColdSweepInterval = 30 * time.Minute
	}
	if cfg.Consolidation.HotIdleThreshold == 0 {
		cfg.Consolidation.HotIdleThreshold = 1 * time.Minute
	}
	if cfg.Consolidation.WarmIdleThreshold == 0 {
		cfg.Consolidation.WarmIdleThreshold = 15 * time.Minute
	}
	if cfg.Consolidation.FitnessThreshold == 0 {
		cfg.Consolidation.FitnessThreshold = 0.1
	}
	if cfg.Consolidation.RecencyWeight == 0 {
		cfg.Consolidation.RecencyWeight = 0.5
	}
	if cfg.Consolidation.FrequencyWeight == 0 {
		cfg.Consolidation.FrequencyWeight = 0.3
	}
	if cfg.Consolidation.DescendantWeight == 0 {
		cfg.Consolidation.DescendantWeight = 0.2
	}

	if cfg.WorkerPool.MaxWorkers == 0 {
		cfg.WorkerPool.MaxWorkers = 4
	}
	if cfg.WorkerPool.QueueSize == 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine.NodeID == "" {
		return fmt.Errorf("engine.node_id is required")
	}
	if c.Tiers.HotCapacity < 1 {
		return fmt.Errorf("tiers.hot_capacity must be at least 1")
	}
	if c.Tiers.WarmCapacity < c.Tiers.HotCapacity {
		return fmt.Errorf("tiers.warm_capacity must be at least tiers.hot_capacity")
	}
	if c.Consolidation.FitnessThreshold < 0 {
		return fmt.Errorf("consolidation.fitness_threshold must be non-negative")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	return nil
}
