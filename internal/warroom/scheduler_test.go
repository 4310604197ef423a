package warroom

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSyncer counts fetches and can fail selected ones.
type recordingSyncer struct {
	mu       sync.Mutex
	calls    []string
	failing  map[string]error
	block    chan struct{}
	detail   atomic.Int32
	timeline atomic.Int32
}

func newRecordingSyncer() *recordingSyncer {
	return &recordingSyncer{failing: map[string]error{}}
}

func (r *recordingSyncer) record(name string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls = append(r.calls, name)
	err := r.failing[name]
	r.mu.Unlock()
	return err
}

func (r *recordingSyncer) PullDetail(ctx context.Context) error {
	r.detail.Add(1)
	return r.record("detail")
}
func (r *recordingSyncer) PullTimeline(ctx context.Context) error {
	r.timeline.Add(1)
	return r.record("timeline")
}
func (r *recordingSyncer) PullStats(ctx context.Context) error      { return r.record("stats") }
func (r *recordingSyncer) PullExecutions(ctx context.Context) error { return r.record("executions") }

func (r *recordingSyncer) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func testScheduler(s Syncer, interval time.Duration) *SyncScheduler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSyncScheduler(s, interval, time.Second, log)
}

func TestCycleRunsFetchesInOrder(t *testing.T) {
	syncer := newRecordingSyncer()
	sched := testScheduler(syncer, time.Hour)
	sched.RefreshNow(true)

	want := []string{"detail", "timeline", "stats", "executions"}
	got := syncer.sequence()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFetchFailureDoesNotBlockOthers(t *testing.T) {
	syncer := newRecordingSyncer()
	syncer.failing["timeline"] = errors.New("boom")
	sched := testScheduler(syncer, time.Hour)
	sched.RefreshNow(true)

	got := syncer.sequence()
	if len(got) != 4 {
		t.Fatalf("all four fetches should run despite a failure, got %v", got)
	}
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	syncer := newRecordingSyncer()
	syncer.block = make(chan struct{})
	sched := testScheduler(syncer, time.Hour)

	done := make(chan struct{})
	go func() {
		sched.RefreshNow(false)
		close(done)
	}()
	// Wait until the first cycle is inside a fetch.
	waitUntil(t, func() bool { return syncer.detail.Load() == 1 })

	// An unforced overlap must be a no-op, not a second cycle.
	sched.RefreshNow(false)
	if got := syncer.detail.Load(); got != 1 {
		t.Fatalf("coalesced refresh still ran, detail fetches = %d", got)
	}

	close(syncer.block)
	<-done
}

func TestStartIsReentrant(t *testing.T) {
	syncer := newRecordingSyncer()
	sched := testScheduler(syncer, 5*time.Millisecond)
	sched.Start()
	sched.Start() // must replace, not stack, the timer
	defer sched.Stop()

	time.Sleep(26 * time.Millisecond)
	sched.Stop()
	ran := syncer.detail.Load()

	// A stacked second timer would roughly double the cycle count.
	if ran < 2 || ran > 8 {
		t.Fatalf("unexpected cycle count %d for a single timer", ran)
	}
}

func TestStopHaltsCycles(t *testing.T) {
	syncer := newRecordingSyncer()
	sched := testScheduler(syncer, 5*time.Millisecond)
	sched.Start()
	waitUntil(t, func() bool { return syncer.detail.Load() >= 1 })
	sched.Stop()
	if sched.Running() {
		t.Fatal("scheduler should report stopped")
	}

	at := syncer.detail.Load()
	time.Sleep(20 * time.Millisecond)
	if syncer.detail.Load() != at {
		t.Fatal("cycles kept running after Stop")
	}
}

func TestVisibilityTransitions(t *testing.T) {
	syncer := newRecordingSyncer()
	sched := testScheduler(syncer, time.Hour)
	sched.Start()
	defer sched.Stop()

	sched.SetVisible(false)
	if sched.Running() {
		t.Fatal("hidden console should stop the cycle")
	}

	before := syncer.detail.Load()
	sched.SetVisible(true)
	if !sched.Running() {
		t.Fatal("visible console should restart the cycle")
	}
	if syncer.detail.Load() != before+1 {
		t.Fatal("becoming visible should force one catch-up refresh")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
