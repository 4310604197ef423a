package warroom

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/warboard/warboard/internal/api"
	"github.com/warboard/warboard/internal/realtime"
)

type recordRenderer struct {
	mu      sync.Mutex
	entries []api.TimelineEntry
	queues  [][]api.ExecutionTask
	stats   []api.EventStats
	details []api.EventDetail
	notices []string
}

func (r *recordRenderer) RenderEntry(e api.TimelineEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}
func (r *recordRenderer) RenderQueue(tasks []api.ExecutionTask) {
	r.mu.Lock()
	r.queues = append(r.queues, tasks)
	r.mu.Unlock()
}
func (r *recordRenderer) RenderStats(s api.EventStats) {
	r.mu.Lock()
	r.stats = append(r.stats, s)
	r.mu.Unlock()
}
func (r *recordRenderer) RenderDetail(d api.EventDetail) {
	r.mu.Lock()
	r.details = append(r.details, d)
	r.mu.Unlock()
}
func (r *recordRenderer) RenderConnection(from, to realtime.State) {}
func (r *recordRenderer) RenderNotice(msg string) {
	r.mu.Lock()
	r.notices = append(r.notices, msg)
	r.mu.Unlock()
}

func (r *recordRenderer) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestController(t *testing.T, handler http.Handler) (*Controller, *recordRenderer, *atomic.Int32) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var unauthorized atomic.Int32
	rend := &recordRenderer{}
	c := NewController("evt-1", Deps{
		Client:         api.NewClient(srv.URL, nil, api.Options{PollRetries: 1}),
		Renderer:       rend,
		OnUnauthorized: func() { unauthorized.Add(1) },
		Log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return c, rend, &unauthorized
}

func pushEntry(dbID int64, kind, content string) api.TimelineEntry {
	return api.TimelineEntry{
		DBID:       dbID,
		Kind:       kind,
		Origin:     api.OriginOperator,
		RawPayload: json.RawMessage(content),
	}
}

func TestPushEntryIngestAndRender(t *testing.T) {
	c, rend, _ := newTestController(t, http.NotFoundHandler())

	c.handlePushEntry(pushEntry(1, api.KindPlain, `"hello"`))
	c.handlePushEntry(pushEntry(1, api.KindPlain, `"hello"`)) // duplicate

	if got := rend.entryCount(); got != 1 {
		t.Fatalf("expected one rendered entry, got %d", got)
	}
	if len(c.Timeline()) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(c.Timeline()))
	}
}

func TestPushEntryInvalidPayloadDropped(t *testing.T) {
	c, rend, _ := newTestController(t, http.NotFoundHandler())

	c.handlePushEntry(pushEntry(2, "mystery_kind", `{}`))

	if rend.entryCount() != 0 || len(c.Timeline()) != 0 {
		t.Fatal("invalid payload should be dropped, not stored or rendered")
	}
}

func TestStateRelevantPushTriggersOutOfBandRefresh(t *testing.T) {
	var statsHits, detailHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/event/evt-1/stats", func(w http.ResponseWriter, r *http.Request) {
		statsHits.Add(1)
		w.Write([]byte(`{"status":"success","data":{"task_count":1,"action_count":0,"command_count":0}}`))
	})
	mux.HandleFunc("/event/evt-1", func(w http.ResponseWriter, r *http.Request) {
		detailHits.Add(1)
		w.Write([]byte(`{"status":"success","data":{"event_id":"evt-1","event_name":"intrusion"}}`))
	})
	c, _, _ := newTestController(t, mux)

	c.handlePushEntry(pushEntry(3, api.KindCommandResult, `{"command_name":"nmap","status":"completed"}`))

	waitUntil(t, func() bool { return statsHits.Load() == 1 && detailHits.Load() == 1 })
}

func TestPlainPushSkipsOutOfBandRefresh(t *testing.T) {
	var hits atomic.Int32
	c, _, _ := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"status":"success"}`))
	}))

	c.handlePushEntry(pushEntry(4, api.KindPlain, `"chatter"`))
	time.Sleep(20 * time.Millisecond)
	if hits.Load() != 0 {
		t.Fatal("plain chat must not trigger stats or detail refresh")
	}
}

func TestSendMessageEchoDeduplicatesLaterPush(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/event/send_message/evt-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"id":9,"message_id":"m-9","message_from":"user","message_type":"plain","message_content":"hi room"}}`))
	})
	c, rend, _ := newTestController(t, mux)

	if err := c.SendMessage(context.Background(), "hi room"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	// The push copy of the same row arrives afterwards.
	c.handlePushEntry(pushEntry(9, api.KindPlain, `"hi room"`))

	if got := rend.entryCount(); got != 1 {
		t.Fatalf("echo plus push should render once, got %d", got)
	}
}

func TestSubmitExecutionResult(t *testing.T) {
	var completes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/event/evt-1/execution/ex-1/complete", func(w http.ResponseWriter, r *http.Request) {
		completes.Add(1)
		w.Write([]byte(`{"status":"success"}`))
	})
	c, _, _ := newTestController(t, mux)
	c.handleNewExecution(api.ExecutionTask{ExecutionID: "ex-1", Status: api.ExecutionWaiting})

	if err := c.SubmitExecutionResult(context.Background(), "ex-1", "two hosts found", ""); err != nil {
		t.Fatalf("SubmitExecutionResult: %v", err)
	}
	if completes.Load() != 1 {
		t.Fatal("completion endpoint not called")
	}
	if len(c.WaitingTasks()) != 0 {
		t.Fatal("submitted task should leave the queue")
	}

	// The guard must be released after a settled submission.
	if err := c.SubmitExecutionResult(context.Background(), "ex-1", "again", ""); err != nil {
		t.Fatalf("second submission should not hit the in-flight guard: %v", err)
	}
}

func TestSubmitGuardReleasedOnFailure(t *testing.T) {
	c, _, _ := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	c.handleNewExecution(api.ExecutionTask{ExecutionID: "ex-1", Status: api.ExecutionWaiting})

	if err := c.SubmitExecutionResult(context.Background(), "ex-1", "r", ""); err == nil {
		t.Fatal("expected submission error")
	}
	if len(c.WaitingTasks()) != 1 {
		t.Fatal("failed submission must keep the task queued")
	}
	// Guard released even though the request failed.
	if err := c.SubmitExecutionResult(context.Background(), "ex-1", "r", ""); errors.Is(err, ErrSubmitInFlight) {
		t.Fatal("guard not released after failure")
	}
}

func TestUnauthorizedEndsSession(t *testing.T) {
	c, _, unauthorized := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := c.SendMessage(context.Background(), "hello")
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if unauthorized.Load() != 1 {
		t.Fatal("unauthorized callback not invoked")
	}
}

func TestPullTimelineUsesCursor(t *testing.T) {
	var gotCursor atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/event/evt-1/messages", func(w http.ResponseWriter, r *http.Request) {
		gotCursor.Store(r.URL.Query().Get("last_message_db_id"))
		w.Write([]byte(`{"status":"success","data":[{"id":21,"message_id":"m-21","message_type":"plain","message_content":"new"}]}`))
	})
	c, _, _ := newTestController(t, mux)
	c.handlePushEntry(pushEntry(20, api.KindPlain, `"old"`))

	if err := c.PullTimeline(context.Background()); err != nil {
		t.Fatalf("PullTimeline: %v", err)
	}
	if got := gotCursor.Load(); got != "20" {
		t.Fatalf("expected cursor 20, got %v", got)
	}
	if len(c.Timeline()) != 2 {
		t.Fatalf("expected 2 entries after pull, got %d", len(c.Timeline()))
	}
}

func TestTeardownIdempotent(t *testing.T) {
	c, _, _ := newTestController(t, http.NotFoundHandler())
	c.Teardown()
	c.Teardown()
	if c.ConnectionState() != realtime.StateDisconnected {
		t.Fatalf("expected disconnected after teardown, got %s", c.ConnectionState())
	}
}
