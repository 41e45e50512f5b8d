package sweep

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type UnassignedRunner interface {
	RunUnassignedSweep(ctx context.Context, verbose bool) (*UnassignedSummary, error)
}

// Scheduler runs the unassigned sweep on an interval and on demand. Runs never
// overlap: a trigger during a run is coalesced into the next one.
type Scheduler struct {
	runner   UnassignedRunner
	interval time.Duration
	verbose  bool

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastRunUnixNano     atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRuns           atomic.Int64
	totalMatched        atomic.Int64
	totalFailed         atomic.Int64
	totalErrors         atomic.Int64
	running             atomic.Bool
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewScheduler(runner UnassignedRunner, interval time.Duration, verbose bool) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:            runner,
		interval:          interval,
		verbose:           verbose,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// Trigger requests an immediate run (best-effort, non-blocking).
func (s *Scheduler) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalRuns     int64      `json:"totalRuns"`
	TotalMatched  int64      `json:"totalMatched"`
	TotalFailed   int64      `json:"totalFailed"`
	TotalErrors   int64      `json:"totalErrors"`
	Running       bool       `json:"running"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalRuns:    s.totalRuns.Load(),
		TotalMatched: s.totalMatched.Load(),
		TotalFailed:  s.totalFailed.Load(),
		TotalErrors:  s.totalErrors.Load(),
		Running:      s.running.Load(),
	}
	if n := s.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	s.lastRunUnixNano.Store(time.Now().UTC().UnixNano())
	s.totalRuns.Add(1)

	sum, err := s.runner.RunUnassignedSweep(ctx, s.verbose)
	if sum != nil {
		s.totalMatched.Add(int64(sum.Matched))
		s.totalFailed.Add(int64(sum.Failed))
	}
	if err != nil {
		s.totalErrors.Add(1)
		s.lastErrorMu.Lock()
		s.lastError = err.Error()
		s.lastErrorMu.Unlock()
		slog.Error("unassigned sweep", "error", err.Error())
	}
}
