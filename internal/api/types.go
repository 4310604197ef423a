package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Origin identifies which role authored a timeline entry.
const (
	OriginCoordinator = "_coordinator"
	OriginManager     = "_manager"
	OriginOperator    = "_operator"
	OriginExecutor    = "_executor"
	OriginExpert      = "_expert"
	OriginSystem      = "system"
	OriginUser        = "user"
)

// Timeline entry kinds. The payload shape is keyed by the kind.
const (
	KindLLMRequest         = "llm_request"
	KindLLMResponse        = "llm_response"
	KindCommandResult      = "command_result"
	KindExecutionSummary   = "execution_summary"
	KindEventSummary       = "event_summary"
	KindSystemNotification = "system_notification"
	KindPlain              = "plain"
)

// TimelineEntry is one unit of the incident's chronological record.
// DBID is assigned by the server and is the de-duplication key.
type TimelineEntry struct {
	DBID       int64           `json:"id"`
	BusinessID string          `json:"message_id"`
	IncidentID string          `json:"event_id"`
	Origin     string          `json:"message_from"`
	Kind       string          `json:"message_type"`
	RoundID    int             `json:"round_id"`
	RawPayload json.RawMessage `json:"message_content"`
	CreatedAt  time.Time       `json:"created_at"`

	// Payload is the decoded tagged variant for Kind. Populated by
	// DecodePayload; nil until then.
	Payload Payload `json:"-"`
}

// StateRelevant reports whether this entry implies progress the stats and
// event detail views cannot derive from the timeline alone.
func (e *TimelineEntry) StateRelevant() bool {
	switch e.Kind {
	case KindLLMResponse, KindCommandResult, KindExecutionSummary, KindEventSummary:
		return true
	}
	return false
}

// Payload is the decoded variant of a timeline entry's content.
type Payload interface {
	payloadKind() string
}

// LLMRequestPayload carries the prompt notification text.
type LLMRequestPayload struct {
	Data string `json:"data"`
}

// LLMResponsePayload carries a role's structured response: free text plus
// any task, action or command lists it produced.
type LLMResponsePayload struct {
	ResponseType string       `json:"response_type"`
	ResponseText string       `json:"response_text"`
	Tasks        []TaskRef    `json:"tasks,omitempty"`
	Actions      []ActionRef  `json:"actions,omitempty"`
	Commands     []CommandRef `json:"commands,omitempty"`
}

// CommandResultPayload carries the outcome of one executed command.
type CommandResultPayload struct {
	CommandName string          `json:"command_name"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	AISummary   string          `json:"ai_summary,omitempty"`
}

// ExecutionSummaryPayload carries the expert's summary of an execution round.
type ExecutionSummaryPayload struct {
	AISummary string `json:"ai_summary"`
}

// EventSummaryPayload carries a per-round incident summary.
type EventSummaryPayload struct {
	RoundID      int    `json:"round_id"`
	EventSummary string `json:"event_summary"`
}

// SystemNotificationPayload carries operator-facing notices.
type SystemNotificationPayload struct {
	ResponseText string `json:"response_text"`
}

// PlainPayload carries an unstructured chat message.
type PlainPayload struct {
	Text string `json:"text"`
}

func (LLMRequestPayload) payloadKind() string         { return KindLLMRequest }
func (LLMResponsePayload) payloadKind() string        { return KindLLMResponse }
func (CommandResultPayload) payloadKind() string      { return KindCommandResult }
func (ExecutionSummaryPayload) payloadKind() string   { return KindExecutionSummary }
func (EventSummaryPayload) payloadKind() string       { return KindEventSummary }
func (SystemNotificationPayload) payloadKind() string { return KindSystemNotification }
func (PlainPayload) payloadKind() string              { return KindPlain }

// TaskRef references a task assigned by the coordinator.
type TaskRef struct {
	TaskID       string `json:"task_id"`
	TaskName     string `json:"task_name"`
	TaskType     string `json:"task_type"`
	TaskAssignee string `json:"task_assignee"`
}

// ActionRef references an action planned by the manager.
type ActionRef struct {
	ActionID       string `json:"action_id"`
	TaskID         string `json:"task_id"`
	ActionName     string `json:"action_name"`
	ActionType     string `json:"action_type"`
	ActionAssignee string `json:"action_assignee"`
}

// CommandRef references a concrete command prepared by the operator.
type CommandRef struct {
	CommandID   string `json:"command_id"`
	ActionID    string `json:"action_id"`
	TaskID      string `json:"task_id"`
	CommandName string `json:"command_name"`
	CommandType string `json:"command_type"`
}

// payloadEnvelope is the wrapped wire form {"type": kind, "data": {...}}.
// Older entries carry the payload fields at the top level instead.
type payloadEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodePayload decodes an entry's raw content into the variant for its
// kind. Unknown kinds are rejected so malformed entries never reach the
// render path.
func DecodePayload(kind string, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode payload: empty content for kind %q", kind)
	}

	// Unwrap the {"type", "data"} envelope when present and matching.
	body := raw
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == kind && len(env.Data) > 0 {
		body = env.Data
	}

	switch kind {
	case KindLLMRequest:
		// The request notification is either a bare string or {"data": text}.
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return LLMRequestPayload{Data: s}, nil
		}
		var p LLMRequestPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode llm_request payload: %w", err)
		}
		return p, nil
	case KindLLMResponse:
		var p LLMResponsePayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode llm_response payload: %w", err)
		}
		return p, nil
	case KindCommandResult:
		var p CommandResultPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode command_result payload: %w", err)
		}
		return p, nil
	case KindExecutionSummary:
		var p ExecutionSummaryPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode execution_summary payload: %w", err)
		}
		return p, nil
	case KindEventSummary:
		var p EventSummaryPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode event_summary payload: %w", err)
		}
		return p, nil
	case KindSystemNotification:
		var p SystemNotificationPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode system_notification payload: %w", err)
		}
		return p, nil
	case KindPlain:
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return PlainPayload{Text: s}, nil
		}
		var p PlainPayload
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode plain payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown kind %q", kind)
	}
}

// Execution statuses.
const (
	ExecutionWaiting   = "waiting"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// ExecutionTask is a command awaiting human execution and result submission.
type ExecutionTask struct {
	ExecutionID string          `json:"execution_id"`
	DBID        int64           `json:"id"`
	CommandID   string          `json:"command_id,omitempty"`
	ActionID    string          `json:"action_id,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
	IncidentID  string          `json:"event_id,omitempty"`
	RoundID     int             `json:"round_id,omitempty"`
	Status      string          `json:"status"`
	CommandName string          `json:"command_name,omitempty"`
	CommandType string          `json:"command_type,omitempty"`
	Description string          `json:"description,omitempty"`
	Entity      json.RawMessage `json:"command_entity,omitempty"`
	Params      json.RawMessage `json:"command_params,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// UnmarshalJSON normalizes the two wire spellings of the status field
// (push events use "status", snapshots use "execution_status") into one.
func (t *ExecutionTask) UnmarshalJSON(b []byte) error {
	type alias ExecutionTask
	aux := struct {
		*alias
		LegacyStatus string `json:"execution_status"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = aux.LegacyStatus
	}
	return nil
}

// Key returns the canonical identity for the task: execution_id when the
// server assigned one, otherwise the numeric row id. Applied uniformly at
// every ingestion boundary.
func (t *ExecutionTask) Key() string {
	if t.ExecutionID != "" {
		return t.ExecutionID
	}
	if t.DBID != 0 {
		return strconv.FormatInt(t.DBID, 10)
	}
	return ""
}

// EventDetail describes one security incident.
type EventDetail struct {
	DBID         int64     `json:"id"`
	EventID      string    `json:"event_id"`
	EventName    string    `json:"event_name"`
	Message      string    `json:"message"`
	Context      string    `json:"context"`
	Source       string    `json:"source"`
	Severity     string    `json:"severity"`
	Status       string    `json:"status"`
	CurrentRound int       `json:"current_round"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventStats counts the work items produced so far for an incident.
type EventStats struct {
	TaskCount    int `json:"task_count"`
	ActionCount  int `json:"action_count"`
	CommandCount int `json:"command_count"`
}

// RoundSummary is one per-round incident summary.
type RoundSummary struct {
	RoundID         int       `json:"round_id"`
	EventSummary    string    `json:"event_summary"`
	EventSuggestion string    `json:"event_suggestion,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// User is an account on the war-room server.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
