package warroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warboard/warboard/internal/api"
	"github.com/warboard/warboard/internal/realtime"
)

// ErrSubmitInFlight is returned when a result submission is attempted
// while another one is still running. Controls stay disabled until the
// active submission settles.
var ErrSubmitInFlight = errors.New("warroom: a result submission is already in progress")

// Archiver persists session history. May be absent; the controller
// treats archiving as best effort.
type Archiver interface {
	SaveEntry(incidentID string, entry api.TimelineEntry) error
	SaveResult(incidentID, taskKey, result, status string) error
	SaveTransition(incidentID, from, to string) error
}

// Mirror republishes ingested timeline entries to an analytics stream.
// May be absent; publishing is best effort.
type Mirror interface {
	Publish(ctx context.Context, incidentID string, entry api.TimelineEntry) error
}

// Deps carries the controller's collaborators. Client and Renderer are
// required; Archive and Mirror are optional.
type Deps struct {
	Client         *api.Client
	Tokens         api.TokenSource
	Renderer       Renderer
	Archive        Archiver
	Mirror         Mirror
	Realtime       realtime.Config
	SyncInterval   time.Duration
	PollTimeout    time.Duration
	OnUnauthorized func()
	Log            *slog.Logger
}

// Controller owns one incident session: it feeds push events and pull
// snapshots into the stores, forwards operator intents to the REST
// collaborator, and re-renders whenever a store reports a change.
type Controller struct {
	incidentID string
	client     *api.Client
	renderer   Renderer
	archive    Archiver
	mirror     Mirror
	onUnauth   func()
	log        *slog.Logger

	conn  *realtime.Manager
	sched *SyncScheduler

	mu     sync.Mutex
	store  *TimelineStore
	queue  *ExecutionQueue
	detail *api.EventDetail
	stats  *api.EventStats

	submitting atomic.Bool
	teardown   sync.Once
}

// NewController builds a session for one incident. Nothing runs until
// Start.
func NewController(incidentID string, deps Deps) *Controller {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		incidentID: incidentID,
		client:     deps.Client,
		renderer:   deps.Renderer,
		archive:    deps.Archive,
		mirror:     deps.Mirror,
		onUnauth:   deps.OnUnauthorized,
		log:        log,
		store:      NewTimelineStore(),
		queue:      NewExecutionQueue(),
	}
	c.conn = realtime.NewManager(deps.Realtime, deps.Tokens, realtime.Handlers{
		OnTimelineEntry:   c.handlePushEntry,
		OnExecutionTask:   c.handleNewExecution,
		OnExecutionUpdate: c.handleExecutionUpdate,
		OnStatus:          c.handleStatus,
		OnStateChange:     c.handleConnState,
	}, log)
	c.sched = NewSyncScheduler(c, deps.SyncInterval, deps.PollTimeout, log)
	return c
}

// Start performs a full catch-up refresh, joins the push channel and
// begins the repeating pull cycle.
func (c *Controller) Start() {
	c.sched.RefreshNow(true)
	c.conn.Connect(c.incidentID)
	c.sched.Start()
}

// Teardown stops polling and leaves the push channel. Idempotent.
func (c *Controller) Teardown() {
	c.teardown.Do(func() {
		c.sched.Stop()
		c.conn.Disconnect()
	})
}

// SetVisible forwards console foreground transitions to the scheduler.
func (c *Controller) SetVisible(visible bool) {
	c.sched.SetVisible(visible)
}

// RefreshNow forces an immediate pull cycle.
func (c *Controller) RefreshNow() {
	c.sched.RefreshNow(true)
}

// ConnectionState returns the push channel state.
func (c *Controller) ConnectionState() realtime.State {
	return c.conn.State()
}

// Timeline returns the stored entries in insertion order.
func (c *Controller) Timeline() []api.TimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Entries()
}

// WaitingTasks returns the execution queue contents.
func (c *Controller) WaitingTasks() []api.ExecutionTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Tasks()
}

// ingest decodes and stores one timeline entry. Entries that fail
// payload validation are dropped with a diagnostic, never stored.
func (c *Controller) ingest(entry api.TimelineEntry) bool {
	if entry.Payload == nil {
		payload, err := api.DecodePayload(entry.Kind, entry.RawPayload)
		if err != nil {
			c.log.Warn("warroom: dropping invalid entry", "db_id", entry.DBID, "kind", entry.Kind, "error", err)
			return false
		}
		entry.Payload = payload
	}

	c.mu.Lock()
	changed := c.store.Ingest(entry)
	c.mu.Unlock()
	if !changed {
		return false
	}

	c.renderer.RenderEntry(entry)
	if c.archive != nil {
		_ = c.archive.SaveEntry(c.incidentID, entry)
	}
	if c.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = c.mirror.Publish(ctx, c.incidentID, entry)
		cancel()
	}
	return true
}

// handlePushEntry bridges a pushed message into the store. State-bearing
// kinds additionally trigger an out-of-band stats and detail refresh,
// since those are not derivable from the timeline alone.
func (c *Controller) handlePushEntry(entry api.TimelineEntry) {
	if !c.ingest(entry) {
		return
	}
	if entry.StateRelevant() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.PullStats(ctx); err != nil {
				c.log.Warn("warroom: out-of-band stats refresh failed", "error", err)
			}
			if err := c.PullDetail(ctx); err != nil {
				c.log.Warn("warroom: out-of-band detail refresh failed", "error", err)
			}
		}()
	}
}

func (c *Controller) handleNewExecution(task api.ExecutionTask) {
	c.mu.Lock()
	changed := c.queue.UpsertFromPush(task)
	tasks := c.queue.Tasks()
	c.mu.Unlock()
	if changed {
		c.renderer.RenderQueue(tasks)
	}
}

func (c *Controller) handleExecutionUpdate(task api.ExecutionTask) {
	c.mu.Lock()
	changed := c.queue.ApplyUpdate(task)
	tasks := c.queue.Tasks()
	c.mu.Unlock()
	if changed {
		c.renderer.RenderQueue(tasks)
	}
}

func (c *Controller) handleStatus(status realtime.StatusEvent) {
	msg := status.Message
	if msg == "" {
		msg = status.State
	}
	c.renderer.RenderNotice(msg)
}

func (c *Controller) handleConnState(from, to realtime.State) {
	c.renderer.RenderConnection(from, to)
	if c.archive != nil {
		_ = c.archive.SaveTransition(c.incidentID, string(from), string(to))
	}
}

// SendMessage posts a chat message and stores the server's echo so the
// push copy arriving later is a duplicate no-op.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	entry, err := c.client.SendMessage(ctx, c.incidentID, text)
	if err != nil {
		return c.fail("send message", err)
	}
	if entry != nil {
		c.ingest(*entry)
	}
	return nil
}

// SubmitExecutionResult submits the human result for one waiting task.
// Only one submission runs at a time; the guard is always released, even
// when the request fails.
func (c *Controller) SubmitExecutionResult(ctx context.Context, taskKey, result, status string) error {
	if !c.submitting.CompareAndSwap(false, true) {
		return ErrSubmitInFlight
	}
	defer c.submitting.Store(false)

	if status == "" {
		status = api.ExecutionCompleted
	}
	if err := c.client.CompleteExecution(ctx, c.incidentID, taskKey, result, status); err != nil {
		return c.fail("submit execution result", err)
	}

	c.mu.Lock()
	removed := c.queue.Remove(taskKey)
	tasks := c.queue.Tasks()
	c.mu.Unlock()
	if removed {
		c.renderer.RenderQueue(tasks)
	}
	if c.archive != nil {
		_ = c.archive.SaveResult(c.incidentID, taskKey, result, status)
	}
	return nil
}

// fail normalizes collaborator errors. A rejected token ends the session.
func (c *Controller) fail(op string, err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		c.log.Warn("warroom: session token rejected")
		if c.onUnauth != nil {
			c.onUnauth()
		}
		return err
	}
	return fmt.Errorf("warroom: %s: %w", op, err)
}

// PullDetail fetches the incident header and re-renders it on change.
func (c *Controller) PullDetail(ctx context.Context) error {
	detail, err := c.client.EventDetail(ctx, c.incidentID)
	if err != nil {
		return c.fail("pull detail", err)
	}
	c.mu.Lock()
	changed := c.detail == nil || *c.detail != *detail
	c.detail = detail
	c.mu.Unlock()
	if changed {
		c.renderer.RenderDetail(*detail)
	}
	return nil
}

// PullTimeline fetches entries newer than the store's cursor.
func (c *Controller) PullTimeline(ctx context.Context) error {
	c.mu.Lock()
	cursor := c.store.NextPullCursor()
	c.mu.Unlock()

	entries, err := c.client.TimelineSince(ctx, c.incidentID, cursor)
	if err != nil {
		return c.fail("pull timeline", err)
	}
	for _, entry := range entries {
		c.ingest(entry)
	}
	return nil
}

// PullStats fetches the work counters and re-renders them on change.
func (c *Controller) PullStats(ctx context.Context) error {
	stats, err := c.client.EventStats(ctx, c.incidentID)
	if err != nil {
		return c.fail("pull stats", err)
	}
	c.mu.Lock()
	changed := c.stats == nil || *c.stats != *stats
	c.stats = stats
	c.mu.Unlock()
	if changed {
		c.renderer.RenderStats(*stats)
	}
	return nil
}

// PullExecutions fetches the authoritative waiting-task snapshot.
func (c *Controller) PullExecutions(ctx context.Context) error {
	tasks, err := c.client.WaitingExecutions(ctx, c.incidentID)
	if err != nil {
		return c.fail("pull executions", err)
	}
	c.mu.Lock()
	changed := c.queue.UpsertFromPull(tasks)
	current := c.queue.Tasks()
	c.mu.Unlock()
	if changed {
		c.renderer.RenderQueue(current)
	}
	return nil
}
