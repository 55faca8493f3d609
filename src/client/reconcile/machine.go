// Package reconcile converges a locally displayed job view with the
// authoritative server-side job state by polling GET /api/jobs/:id. Push
// events can nudge a session to refresh early, but polling alone is
// sufficient: push delivery is best-effort.
package reconcile

import (
	"time"

	"leadgrid/src/client/api"
)

// State is the reconciler's own lifecycle, deliberately smaller than the
// five-state job vocabulary: the loop only needs to know whether to keep
// scheduling fetches.
type State int

const (
	// StateIdle means no job is being tracked; no fetch is ever issued.
	StateIdle State = iota
	// StateInflight means the last snapshot was waiting, active or delayed.
	StateInflight
	// StateTerminal means the job completed or failed; polling has stopped
	// permanently for this identifier.
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInflight:
		return "inflight"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

// DefaultInterval is the fixed polling cadence while a job is in flight.
const DefaultInterval = 2 * time.Second

// NextDelay returns the delay before the next fetch for the given state. The
// second return value is false when no further fetch must be scheduled.
func NextDelay(s State, interval time.Duration) (time.Duration, bool) {
	if s != StateInflight {
		return 0, false
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return interval, true
}

// UIStatus is the collapsed presentation vocabulary rendered by dashboards.
type UIStatus string

const (
	UIStatusIdle      UIStatus = "idle"
	UIStatusScraping  UIStatus = "scraping"
	UIStatusRunning   UIStatus = "running"
	UIStatusCompleted UIStatus = "completed"
	UIStatusFailed    UIStatus = "failed"
)

// classify maps a backend job status onto the reconciler state and the UI
// vocabulary. activeLabel is what an in-flight job is shown as (scraping for
// scrape jobs, running otherwise). Unknown statuses are treated as in-flight
// so a newer backend cannot silently halt polling.
func classify(status string, activeLabel UIStatus) (State, UIStatus) {
	switch status {
	case api.JobCompleted:
		return StateTerminal, UIStatusCompleted
	case api.JobFailed:
		return StateTerminal, UIStatusFailed
	case api.JobWaiting, api.JobActive, api.JobDelayed:
		return StateInflight, activeLabel
	default:
		return StateInflight, activeLabel
	}
}
