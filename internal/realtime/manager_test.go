package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/warboard/warboard/internal/api"
)

func TestReconnectDelaySchedule(t *testing.T) {
	base := 2000 * time.Millisecond
	cap := 30000 * time.Millisecond
	want := []int64{2000, 3000, 4500, 6750, 10125, 15187}
	for i, ms := range want {
		got := reconnectDelay(i+1, base, cap)
		if got.Milliseconds() != ms {
			t.Errorf("attempt %d: expected %dms, got %s", i+1, ms, got)
		}
	}
}

func TestReconnectDelayCaps(t *testing.T) {
	base := 2000 * time.Millisecond
	cap := 30000 * time.Millisecond
	for attempt := 8; attempt <= 12; attempt++ {
		if got := reconnectDelay(attempt, base, cap); got != cap {
			t.Errorf("attempt %d: expected cap %s, got %s", attempt, cap, got)
		}
	}
}

// fakeConn is a scripted websocket connection.
type fakeConn struct {
	mu      sync.Mutex
	frames  chan frame
	written []frame
	closed  atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan frame, 16)}
}

func (c *fakeConn) ReadJSON(v any) error {
	f, ok := <-c.frames
	if !ok {
		return io.ErrUnexpectedEOF
	}
	*(v.(*frame)) = f
	return nil
}

func (c *fakeConn) WriteJSON(v any) error {
	if c.closed.Load() {
		return errors.New("connection closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v.(frame))
	return nil
}

func (c *fakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.frames)
	}
	return nil
}

func (c *fakeConn) sent() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, len(c.written))
	copy(out, c.written)
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testConfig() Config {
	return Config{
		URL:            "ws://example.test/ws",
		BaseDelay:      time.Millisecond,
		CapDelay:       5 * time.Millisecond,
		MaxAttempts:    3,
		ConnectTimeout: 100 * time.Millisecond,
	}
}

func TestConnectEmitsJoin(t *testing.T) {
	conn := newFakeConn()
	m := NewManager(testConfig(), nil, Handlers{}, quietLogger())
	m.dial = func(ctx context.Context, url string, header http.Header) (wireConn, error) {
		return conn, nil
	}

	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateConnected })

	sent := conn.sent()
	if len(sent) != 1 || sent[0].Event != eventJoin {
		t.Fatalf("expected single join frame, got %+v", sent)
	}
	var data map[string]string
	if err := json.Unmarshal(sent[0].Data, &data); err != nil || data["event_id"] != "evt-1" {
		t.Fatalf("unexpected join data %s", sent[0].Data)
	}
	m.Disconnect()
}

func TestDispatchRoutesEvents(t *testing.T) {
	conn := newFakeConn()
	var (
		mu      sync.Mutex
		entries []api.TimelineEntry
		updates []api.ExecutionTask
	)
	handlers := Handlers{
		OnTimelineEntry: func(e api.TimelineEntry) {
			mu.Lock()
			entries = append(entries, e)
			mu.Unlock()
		},
		OnExecutionUpdate: func(task api.ExecutionTask) {
			mu.Lock()
			updates = append(updates, task)
			mu.Unlock()
		},
	}
	m := NewManager(testConfig(), nil, handlers, quietLogger())
	m.dial = func(ctx context.Context, url string, header http.Header) (wireConn, error) {
		return conn, nil
	}
	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateConnected })

	conn.frames <- frame{Event: eventNewMessage, Data: json.RawMessage(`{"id":7,"message_id":"m-7","message_type":"plain","message_content":"hi"}`)}
	conn.frames <- frame{Event: eventNewMessage, Data: json.RawMessage(`"not an object"`)}
	conn.frames <- frame{Event: eventExecutionUpdate, Data: json.RawMessage(`{"execution_id":"ex-1","status":"completed"}`)}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(entries) == 1 && len(updates) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if entries[0].DBID != 7 {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if updates[0].Status != api.ExecutionCompleted {
		t.Fatalf("unexpected update %+v", updates[0])
	}
	m.Disconnect()
}

func TestManualDisconnectSuppressesReconnect(t *testing.T) {
	var dials atomic.Int32
	m := NewManager(testConfig(), nil, Handlers{}, quietLogger())
	m.dial = func(ctx context.Context, url string, header http.Header) (wireConn, error) {
		dials.Add(1)
		return newFakeConn(), nil
	}
	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateConnected })

	m.Disconnect()
	if m.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", m.State())
	}

	// The server-side close raced by Disconnect must not trigger a redial.
	time.Sleep(30 * time.Millisecond)
	if got := dials.Load(); got != 1 {
		t.Fatalf("expected no reconnect after manual disconnect, got %d dials", got)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state drifted to %s after manual disconnect", m.State())
	}
}

func TestFailedAfterAttemptBudget(t *testing.T) {
	var dials atomic.Int32
	m := NewManager(testConfig(), nil, Handlers{}, quietLogger())
	m.dial = func(ctx context.Context, url string, header http.Header) (wireConn, error) {
		dials.Add(1)
		return nil, errors.New("connection refused")
	}
	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateFailed })

	// Initial dial plus MaxAttempts reconnects.
	if got := dials.Load(); got != 4 {
		t.Fatalf("expected 4 dials, got %d", got)
	}

	// Failed is terminal: it never self-recovers.
	time.Sleep(30 * time.Millisecond)
	if m.State() != StateFailed {
		t.Fatalf("failed state should be terminal, got %s", m.State())
	}
	if got := dials.Load(); got != 4 {
		t.Fatalf("failed state kept dialing, got %d dials", got)
	}
}

func TestConnectClearsFailedState(t *testing.T) {
	var allow atomic.Bool
	m := NewManager(testConfig(), nil, Handlers{}, quietLogger())
	m.dial = func(ctx context.Context, url string, header http.Header) (wireConn, error) {
		if !allow.Load() {
			return nil, errors.New("connection refused")
		}
		return newFakeConn(), nil
	}
	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateFailed })

	allow.Store(true)
	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateConnected })
	m.Disconnect()
}

func TestReconnectAfterConnectionLost(t *testing.T) {
	var (
		mu    sync.Mutex
		conns []*fakeConn
	)
	m := NewManager(testConfig(), nil, Handlers{}, quietLogger())
	m.dial = func(ctx context.Context, url string, header http.Header) (wireConn, error) {
		conn := newFakeConn()
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		return conn, nil
	}
	m.Connect("evt-1")
	waitFor(t, time.Second, func() bool { return m.State() == StateConnected })

	// Server drops the connection; the manager must dial again on its own.
	mu.Lock()
	first := conns[0]
	mu.Unlock()
	first.Close()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) >= 2 && m.State() == StateConnected
	})
	m.Disconnect()
}
