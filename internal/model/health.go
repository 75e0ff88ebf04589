package model

// HealthStatus represents the health state of the engine process
type HealthStatus struct {
	NodeID    string
	Status    NodeStatus
	Timestamp int64
	Metrics   HealthMetrics
}

// NodeStatus defines the operational status of the engine
type NodeStatus string

const (
	NodeStatusHealthy   NodeStatus = "healthy"
	NodeStatusDegraded  NodeStatus = "degraded"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
)

// HealthMetrics contains engine-level health metrics
type HealthMetrics struct {
	MemoryUsage    float64
	DiskUsage      float64
	HotUtilization float64
	HitRate        float64
	ErrorRate      float64
}
