package domain

import "time"

// RunStatus summarises how a recovery run ended.
type RunStatus string

const (
	RunStatusComplete  RunStatus = "complete"  // no gaps left
	RunStatusPartial   RunStatus = "partial"   // some sequences could not be recovered
	RunStatusExhausted RunStatus = "exhausted" // initial fetch gave up
)

// RunReport describes one recovery run.
type RunReport struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Received      int       `json:"received"`
	Recovered     int       `json:"recovered"`
	Total         int       `json:"total"`
	Missing       []int32   `json:"missing"`
	Unrecoverable []int32   `json:"unrecoverable"`
	Exhausted     bool      `json:"exhausted"`
}

// Status derives the run status from the report counters.
func (r *RunReport) Status() RunStatus {
	switch {
	case r.Exhausted:
		return RunStatusExhausted
	case len(r.Unrecoverable) > 0:
		return RunStatusPartial
	default:
		return RunStatusComplete
	}
}

// Duration is the wall time spent on the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
