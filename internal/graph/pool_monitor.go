package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PoolStats summarizes connection pool configuration. The Neo4j Go driver
// does not expose live pool occupancy; detailed monitoring belongs to
// Neo4j's own metrics endpoint, not this process.
type PoolStats struct {
	MaxPoolSize int
}

// GetPoolStats returns the configured pool size.
func (n *Neo4jBackend) GetPoolStats() PoolStats {
	return PoolStats{MaxPoolSize: 50}
}

// WatchPoolHealth runs periodic connectivity checks until ctx is canceled.
func (n *Neo4jBackend) WatchPoolHealth(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("starting pool health monitor", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("pool health monitor stopped")
			return
		case <-ticker.C:
			if err := n.driver.VerifyConnectivity(ctx); err != nil {
				logger.Warn("pool health check failed", "error", err)
			} else {
				logger.Debug("pool health check passed")
			}
		}
	}
}

// RecommendedPoolSize returns a pool size sized to expected concurrency,
// clamped to [10, 100].
func RecommendedPoolSize(expectedConcurrentRequests int) int {
	recommended := expectedConcurrentRequests * 3 / 2
	if recommended < 10 {
		return 10
	}
	if recommended > 100 {
		return 100
	}
	return recommended
}

// PoolHealthStatus is the result of a CheckPoolHealth call.
type PoolHealthStatus struct {
	Healthy       bool
	Message       string
	LastCheckTime time.Time
}

// CheckPoolHealth verifies connectivity and flags a slow check (>5s) as
// unhealthy even when the driver itself reports no error.
func (n *Neo4jBackend) CheckPoolHealth(ctx context.Context) (*PoolHealthStatus, error) {
	start := time.Now()
	err := n.driver.VerifyConnectivity(ctx)
	status := &PoolHealthStatus{LastCheckTime: time.Now()}

	if err != nil {
		status.Healthy = false
		status.Message = fmt.Sprintf("health check failed: %v", err)
		return status, err
	}

	if d := time.Since(start); d > 5*time.Second {
		status.Healthy = false
		status.Message = fmt.Sprintf("health check slow: %v (threshold: 5s)", d)
		return status, fmt.Errorf("health check timeout")
	}

	status.Healthy = true
	status.Message = "pool healthy"
	return status, nil
}
