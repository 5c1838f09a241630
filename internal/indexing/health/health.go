// Package health provides run status reporting over HTTP.
package health

import "time"

// SystemStatus represents the overall health state of the client.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
	StatusPending  SystemStatus = "pending" // no run finished yet
)

// RunHealth contains the health-relevant fields of the last run.
type RunHealth struct {
	RunID         string        `json:"run_id"`
	Status        SystemStatus  `json:"status"`
	Total         int           `json:"total"`
	Recovered     int           `json:"recovered"`
	Unrecoverable []int32       `json:"unrecoverable"`
	FinishedAt    time.Time     `json:"finished_at"`
	Duration      time.Duration `json:"duration_ns"`
}

// HealthReport contains the full health report.
type HealthReport struct {
	SystemStatus SystemStatus `json:"system_status"`
	Runs         int          `json:"runs"`
	LastRun      *RunHealth   `json:"last_run,omitempty"`
}
