// Package realtime maintains the push channel to the war-room server and
// fans decoded events out to registered handlers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/warboard/warboard/internal/api"
)

// State is the connection lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
	StateTimeout      State = "timeout"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// frame is the wire format: every message is {"event": name, "data": {...}}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server event names.
const (
	eventJoin            = "join"
	eventNewMessage      = "new_message"
	eventNewExecution    = "new_execution"
	eventExecutionUpdate = "execution_update"
	eventStatus          = "status"
)

// StatusEvent is a server-pushed status notice.
type StatusEvent struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// Handlers receives decoded push events. Registered once at construction;
// nil entries are skipped. Callbacks run on the read loop goroutine.
type Handlers struct {
	OnTimelineEntry   func(api.TimelineEntry)
	OnExecutionTask   func(api.ExecutionTask)
	OnExecutionUpdate func(api.ExecutionTask)
	OnStatus          func(StatusEvent)
	OnStateChange     func(from, to State)
}

// Config tunes the connection and its reconnect schedule.
type Config struct {
	URL            string
	BaseDelay      time.Duration
	CapDelay       time.Duration
	MaxAttempts    int
	ConnectTimeout time.Duration
}

// wireConn is the subset of the websocket connection the manager uses.
// Tests substitute scripted connections.
type wireConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type dialFunc func(ctx context.Context, url string, header http.Header) (wireConn, error)

func gorillaDial(ctx context.Context, url string, header http.Header) (wireConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 20 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Manager owns one realtime connection and its reconnect policy.
//
// Reconnects are scheduled one at a time: at most one pending timer exists,
// and each fired attempt either restores the connection or schedules the
// next one. A manual Disconnect sets a sticky flag that suppresses all
// scheduling until the next Connect. Once the attempt budget is spent the
// manager enters StateFailed and stays there; only Connect leaves it.
type Manager struct {
	cfg      Config
	tokens   api.TokenSource
	handlers Handlers
	dial     dialFunc
	log      *slog.Logger
	clientID string

	mu         sync.Mutex
	state      State
	attempts   int
	manual     bool
	incidentID string
	conn       wireConn
	pending    *time.Timer
	gen        int
}

// NewManager creates a disconnected manager. Connect starts it.
func NewManager(cfg Config, tokens api.TokenSource, handlers Handlers, log *slog.Logger) *Manager {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.CapDelay <= 0 {
		cfg.CapDelay = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		tokens:   tokens,
		handlers: handlers,
		dial:     gorillaDial,
		log:      log,
		clientID: uuid.NewString(),
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect joins the given incident's room. It clears any manual-disconnect
// or failed condition and starts a fresh attempt sequence.
func (m *Manager) Connect(incidentID string) {
	m.mu.Lock()
	m.manual = false
	m.attempts = 0
	m.incidentID = incidentID
	m.cancelPendingLocked()
	old := m.conn
	m.conn = nil
	m.setStateLocked(StateConnecting)
	gen := m.nextGenLocked()
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	go m.attemptConnect(gen)
}

// Disconnect closes the connection and suppresses reconnects until the
// next Connect. Safe to call in any state.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.cancelPendingLocked()
	m.nextGenLocked()
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// nextGenLocked invalidates any in-flight dial or read loop.
func (m *Manager) nextGenLocked() int {
	m.gen++
	return m.gen
}

func (m *Manager) cancelPendingLocked() {
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
}

func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	if m.handlers.OnStateChange != nil {
		// Callback outside the lock would race with state reads; handlers
		// are expected to be quick and must not call back into the manager.
		go m.handlers.OnStateChange(from, to)
	}
}

func (m *Manager) attemptConnect(gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	if m.tokens != nil {
		if tok := strings.TrimSpace(m.tokens.Token()); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, err := m.dial(ctx, m.cfg.URL, header)

	m.mu.Lock()
	if gen != m.gen || m.manual {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.setStateLocked(StateTimeout)
		} else {
			m.setStateLocked(StateError)
		}
		m.log.Warn("realtime: connect failed", "error", err, "attempt", m.attempts)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.attempts = 0
	m.setStateLocked(StateConnected)
	incidentID := m.incidentID
	m.mu.Unlock()

	join := frame{Event: eventJoin, Data: mustJSON(map[string]string{"event_id": incidentID, "client_id": m.clientID})}
	if err := conn.WriteJSON(join); err != nil {
		m.log.Warn("realtime: join emit failed", "error", err)
		m.connectionLost(gen, conn, err)
		return
	}
	m.log.Info("realtime: connected", "incident", incidentID)

	go m.readLoop(gen, conn)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("realtime: encode frame: %v", err))
	}
	return data
}

func (m *Manager) readLoop(gen int, conn wireConn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			m.connectionLost(gen, conn, err)
			return
		}
		m.dispatch(gen, f)
	}
}

// dispatch decodes one frame and invokes its handler. Malformed frames
// are dropped with a diagnostic; they never tear the connection down.
func (m *Manager) dispatch(gen int, f frame) {
	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale {
		return
	}

	switch f.Event {
	case eventNewMessage:
		var entry api.TimelineEntry
		if err := json.Unmarshal(f.Data, &entry); err != nil {
			m.log.Warn("realtime: dropping malformed new_message", "error", err)
			return
		}
		if m.handlers.OnTimelineEntry != nil {
			m.handlers.OnTimelineEntry(entry)
		}
	case eventNewExecution:
		var task api.ExecutionTask
		if err := json.Unmarshal(f.Data, &task); err != nil {
			m.log.Warn("realtime: dropping malformed new_execution", "error", err)
			return
		}
		if m.handlers.OnExecutionTask != nil {
			m.handlers.OnExecutionTask(task)
		}
	case eventExecutionUpdate:
		var task api.ExecutionTask
		if err := json.Unmarshal(f.Data, &task); err != nil {
			m.log.Warn("realtime: dropping malformed execution_update", "error", err)
			return
		}
		if m.handlers.OnExecutionUpdate != nil {
			m.handlers.OnExecutionUpdate(task)
		}
	case eventStatus:
		var status StatusEvent
		if err := json.Unmarshal(f.Data, &status); err != nil {
			m.log.Warn("realtime: dropping malformed status", "error", err)
			return
		}
		if m.handlers.OnStatus != nil {
			m.handlers.OnStatus(status)
		}
	default:
		m.log.Debug("realtime: ignoring unknown event", "event", f.Event)
	}
}

// connectionLost handles a read or write failure on an active connection.
func (m *Manager) connectionLost(gen int, conn wireConn, err error) {
	_ = conn.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	if m.conn == conn {
		m.conn = nil
	}
	if m.manual {
		return
	}
	m.log.Warn("realtime: connection lost", "error", err)
	m.setStateLocked(StateDisconnected)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the single pending reconnect timer, or
// transitions to StateFailed when the attempt budget is spent.
func (m *Manager) scheduleReconnectLocked() {
	if m.manual || m.pending != nil {
		return
	}
	if m.attempts >= m.cfg.MaxAttempts {
		m.log.Error("realtime: giving up after max reconnect attempts", "attempts", m.attempts)
		m.setStateLocked(StateFailed)
		return
	}
	m.attempts++
	delay := reconnectDelay(m.attempts, m.cfg.BaseDelay, m.cfg.CapDelay)
	m.log.Info("realtime: reconnect scheduled", "attempt", m.attempts, "delay", delay)

	gen := m.gen
	m.pending = time.AfterFunc(delay, func() {
		m.mu.Lock()
		m.pending = nil
		if gen != m.gen || m.manual || m.state == StateFailed {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateReconnecting)
		attemptGen := m.nextGenLocked()
		m.mu.Unlock()

		m.attemptConnect(attemptGen)
	})
}
