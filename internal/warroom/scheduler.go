package warroom

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Syncer performs the four pull fetches of one refresh cycle. Each fetch
// is isolated: a failure is logged and the cycle moves on.
type Syncer interface {
	PullDetail(ctx context.Context) error
	PullTimeline(ctx context.Context) error
	PullStats(ctx context.Context) error
	PullExecutions(ctx context.Context) error
}

// SyncScheduler runs the repeating pull cycle. At most one timer is ever
// active: Start is re-entrant and replaces any running cycle. Concurrent
// refreshes coalesce unless forced.
type SyncScheduler struct {
	syncer      Syncer
	interval    time.Duration
	pollTimeout time.Duration
	log         *slog.Logger

	mu         sync.Mutex
	stop       chan struct{}
	refreshing atomic.Bool
	visible    bool
}

// NewSyncScheduler creates a stopped scheduler.
func NewSyncScheduler(syncer Syncer, interval, pollTimeout time.Duration, log *slog.Logger) *SyncScheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &SyncScheduler{
		syncer:      syncer,
		interval:    interval,
		pollTimeout: pollTimeout,
		log:         log,
		visible:     true,
	}
}

// Start begins the repeating cycle, replacing any existing one.
func (s *SyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *SyncScheduler) startLocked() {
	s.stopLocked()
	stop := make(chan struct{})
	s.stop = stop

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RefreshNow(false)
			case <-stop:
				return
			}
		}
	}()
}

// Stop cancels the repeating cycle. Safe when already stopped.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *SyncScheduler) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Running reports whether a repeating cycle is active.
func (s *SyncScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// RefreshNow runs one cycle immediately. While a cycle is in flight,
// unforced calls are coalesced into a no-op; force bypasses the guard.
func (s *SyncScheduler) RefreshNow(force bool) {
	if !s.refreshing.CompareAndSwap(false, true) {
		if !force {
			return
		}
	}
	defer s.refreshing.Store(false)
	s.runCycle()
}

// runCycle performs the four fetches in order. Fetches are independent;
// one failing never blocks the rest.
func (s *SyncScheduler) runCycle() {
	fetches := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"detail", s.syncer.PullDetail},
		{"timeline", s.syncer.PullTimeline},
		{"stats", s.syncer.PullStats},
		{"executions", s.syncer.PullExecutions},
	}
	for _, fetch := range fetches {
		ctx, cancel := context.WithTimeout(context.Background(), s.pollTimeout)
		if err := fetch.fn(ctx); err != nil {
			s.log.Warn("sync: fetch failed", "fetch", fetch.name, "error", err)
		}
		cancel()
	}
}

// SetVisible adapts the cycle to console foreground state: hidden stops
// polling, visible forces a catch-up refresh and restarts it.
func (s *SyncScheduler) SetVisible(visible bool) {
	s.mu.Lock()
	if visible == s.visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible
	if !visible {
		s.stopLocked()
		s.mu.Unlock()
		return
	}
	s.startLocked()
	s.mu.Unlock()

	s.RefreshNow(true)
}
