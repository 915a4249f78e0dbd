package database

import (
	"context"
	"database/sql"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the result of a readiness probe.
type HealthStatus struct {
	Status          string                 `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`
	ResponseTime    time.Duration          `json:"response_time"`
	ConnectionCount int                    `json:"connection_count"`
	Errors          []string               `json:"errors,omitempty"`
	Details         map[string]interface{} `json:"details"`
}

const healthTableQuery = `SELECT to_regclass('public.documents') IS NOT NULL`

// checkHealth pings the pool, verifies the documents table exists and flags
// a saturated pool as degraded.
func checkHealth(ctx context.Context, db *sql.DB, timeout time.Duration) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}
	defer func() { status.ResponseTime = time.Since(start) }()

	if db == nil {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, "database not initialized")
		return status
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, "ping: "+err.Error())
		return status
	}

	var exists bool
	if err := db.QueryRowContext(ctx, healthTableQuery).Scan(&exists); err != nil {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, "documents table: "+err.Error())
		return status
	}
	if !exists {
		status.Status = StatusUnhealthy
		status.Errors = append(status.Errors, "documents table missing")
		return status
	}

	stats := db.Stats()
	status.ConnectionCount = stats.OpenConnections
	status.Details["open_connections"] = stats.OpenConnections
	status.Details["in_use"] = stats.InUse
	status.Details["idle"] = stats.Idle
	status.Details["wait_count"] = stats.WaitCount

	if stats.MaxOpenConnections > 0 && stats.InUse*10 >= stats.MaxOpenConnections*9 {
		status.Status = StatusDegraded
		status.Errors = append(status.Errors, "connection pool near capacity")
	}
	return status
}
