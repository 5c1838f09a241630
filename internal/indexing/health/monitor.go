package health

import (
	"sync"

	"github.com/vietddude/packetfeed/internal/core/domain"
)

// Monitor keeps the outcome of the most recent run.
type Monitor struct {
	mu      sync.RWMutex
	runs    int
	lastRun *RunHealth
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// ObserveRun records a finished run.
func (m *Monitor) ObserveRun(report domain.RunReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs++
	m.lastRun = &RunHealth{
		RunID:         report.RunID,
		Status:        statusFor(report),
		Total:         report.Total,
		Recovered:     report.Recovered,
		Unrecoverable: report.Unrecoverable,
		FinishedAt:    report.FinishedAt,
		Duration:      report.Duration(),
	}
}

// CheckHealth returns the current report.
func (m *Monitor) CheckHealth() HealthReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := HealthReport{
		SystemStatus: StatusPending,
		Runs:         m.runs,
	}
	if m.lastRun != nil {
		last := *m.lastRun
		report.LastRun = &last
		report.SystemStatus = last.Status
	}
	return report
}

// Evaluate status: exhausted fetch is critical, leftover gaps degrade.
func statusFor(report domain.RunReport) SystemStatus {
	switch report.Status() {
	case domain.RunStatusExhausted:
		return StatusCritical
	case domain.RunStatusPartial:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
