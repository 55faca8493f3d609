package reconcile

import (
	"context"
	"sync"
	"time"

	"leadgrid/src/client/api"
	"leadgrid/src/infrastructure/log"
)

// Snapshot is the observable state of one tracked job. Downstream views
// render it directly.
type Snapshot struct {
	Identifier string
	UIStatus   UIStatus
	Progress   int
	Found      int
	Saved      int
	Message    string
}

// StatusFetcher fetches one job snapshot. *api.Client satisfies it.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, jobID string) (*api.JobStatus, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval overrides the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithActiveStatus sets the UI label shown while the job is in flight.
func WithActiveStatus(s UIStatus) Option {
	return func(t *Tracker) { t.activeLabel = s }
}

// WithOnUpdate registers a callback invoked whenever a session's snapshot
// changes. The callback runs on the polling goroutine; keep it cheap.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(t *Tracker) { t.onUpdate = fn }
}

// Tracker owns at most one live reconciliation session. Tracking a new job
// identifier supersedes and cancels the previous session.
type Tracker struct {
	fetcher     StatusFetcher
	interval    time.Duration
	activeLabel UIStatus
	onUpdate    func(Snapshot)

	mu      sync.Mutex
	current *Session
}

func NewTracker(fetcher StatusFetcher, opts ...Option) *Tracker {
	t := &Tracker{
		fetcher:     fetcher,
		interval:    DefaultInterval,
		activeLabel: UIStatusRunning,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts reconciling the given job identifier and returns its session.
// An empty identifier returns a disabled session that never fetches. Any
// previously tracked session is cancelled first: a late response for the old
// identifier can never touch the new session's snapshot.
func (t *Tracker) Track(jobID string) *Session {
	t.mu.Lock()
	prev := t.current
	s := newSession(t, jobID)
	t.current = s
	t.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	if jobID == "" {
		s.disable()
		return s
	}

	go s.run()
	return s
}

// Reset cancels the current session, if any, returning the tracker to idle.
func (t *Tracker) Reset() {
	t.mu.Lock()
	prev := t.current
	t.current = nil
	t.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

// Snapshot returns the current session's snapshot, or an idle snapshot when
// nothing is tracked.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	s := t.current
	t.mu.Unlock()

	if s == nil {
		return Snapshot{UIStatus: UIStatusIdle}
	}
	return s.Snapshot()
}

// Session is one reconciliation timeline for one job identifier. Cancel is
// idempotent and is the only way to stop the loop early; a timer firing
// after cancellation is a no-op.
type Session struct {
	tracker *Tracker
	id      string

	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}

	mu   sync.Mutex
	snap Snapshot
}

func newSession(t *Tracker, jobID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		tracker: t,
		id:      jobID,
		ctx:     ctx,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		snap:    Snapshot{Identifier: jobID, UIStatus: UIStatusIdle},
	}
}

// disable marks a session as permanently idle without ever fetching.
func (s *Session) disable() {
	s.cancel()
	close(s.done)
}

// Cancel stops the session. Safe to call any number of times.
func (s *Session) Cancel() {
	s.cancel()
}

// Refresh requests an immediate out-of-band fetch, typically because a push
// event reported the job finished. Redundant refreshes coalesce.
func (s *Session) Refresh() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Done closes when the session reached a terminal state or was cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) run() {
	defer close(s.done)

	for {
		status, err := s.tracker.fetcher.GetJobStatus(s.ctx, s.id)
		if s.ctx.Err() != nil {
			return
		}

		if err != nil {
			// Transient by definition: the last good snapshot stays, and the
			// next tick retries. A failed fetch is never a failed job.
			log.Debug("job status fetch failed, will retry", "job_id", s.id, "error", err.Error())
		} else {
			state := s.apply(status)
			if state == StateTerminal {
				return
			}
		}

		delay, ok := NextDelay(StateInflight, s.tracker.interval)
		if !ok {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.kick:
			timer.Stop()
		}
	}
}

// apply folds a fetched snapshot into the observable state. Counters only
// move forward; re-applying an identical snapshot leaves it untouched.
func (s *Session) apply(status *api.JobStatus) State {
	state, uiStatus := classify(status.Status, s.tracker.activeLabel)

	s.mu.Lock()
	next := s.snap
	next.UIStatus = uiStatus
	if status.Progress > next.Progress {
		next.Progress = status.Progress
	}
	if status.ItemCount > next.Found {
		next.Found = status.ItemCount
	}
	if status.Saved > next.Saved {
		next.Saved = status.Saved
	}
	switch {
	case uiStatus == UIStatusFailed && status.FailedReason != nil && *status.FailedReason != "":
		next.Message = *status.FailedReason
	case uiStatus == UIStatusFailed:
		next.Message = "Job failed"
	case status.Message != "":
		next.Message = status.Message
	}

	changed := next != s.snap
	s.snap = next
	s.mu.Unlock()

	if changed && s.tracker.onUpdate != nil {
		s.tracker.onUpdate(next)
	}

	return state
}
