// Package api wraps the war-room server's REST API.
// Every response uses the {status, data, message} envelope; callers get
// decoded data or an error, never a partial apply.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthorized is returned on HTTP 401. Callers clear local auth state
// and send the operator back to login, no matter which call detected it.
var ErrUnauthorized = errors.New("api: unauthorized")

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() string
}

// Client is the REST collaborator for one war-room server.
type Client struct {
	baseURL      string
	tokens       TokenSource
	httpClient   *http.Client
	submitClient *http.Client

	pollRetries  int
	pollRetryCap time.Duration
}

// Options tune the client's timeouts and retry behavior.
type Options struct {
	RequestTimeout time.Duration // queue polling and reads, default 5s
	SubmitTimeout  time.Duration // user submissions, default 10s
	PollRetries    int           // bounded retry for queue polling, default 3
	PollRetryCap   time.Duration // retry delay cap, default 5s
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, tokens TokenSource, opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 10 * time.Second
	}
	if opts.PollRetries <= 0 {
		opts.PollRetries = 3
	}
	if opts.PollRetryCap <= 0 {
		opts.PollRetryCap = 5 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokens:       tokens,
		httpClient:   &http.Client{Timeout: opts.RequestTimeout},
		submitClient: &http.Client{Timeout: opts.SubmitTimeout},
		pollRetries:  opts.PollRetries,
		pollRetryCap: opts.PollRetryCap,
	}
}

// envelope is the common response wrapper for all REST calls.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (c *Client) do(ctx context.Context, client *http.Client, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if tok := strings.TrimSpace(c.tokens.Token()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			return fmt.Errorf("api: %s %s: %s (status %d)", method, path, env.Message, resp.StatusCode)
		}
		return fmt.Errorf("api: %s %s: status %d", method, path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("api: decode envelope: %w", err)
	}
	if env.Status != "success" {
		return fmt.Errorf("api: %s %s: %s", method, path, orUnknown(env.Message))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("api: decode data: %w", err)
		}
	}
	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// retryable reports whether the error is worth a bounded retry.
// Auth failures and cancellations are terminal.
func retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrUnauthorized) && !errors.Is(err, context.Canceled)
}

// doWithRetry runs op with bounded retry and capped exponential delay
// (1s, 2s, 4s, capped). Only the queue-poll path opts into this.
func (c *Client) doWithRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= c.pollRetries; attempt++ {
		err = op()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == c.pollRetries {
			break
		}
		delay := time.Second << (attempt - 1)
		if delay > c.pollRetryCap {
			delay = c.pollRetryCap
		}
		slog.Warn("api: retrying after error", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// EventDetail fetches one incident by id.
func (c *Client) EventDetail(ctx context.Context, eventID string) (*EventDetail, error) {
	var detail EventDetail
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/event/"+url.PathEscape(eventID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// TimelineSince fetches timeline entries with a DB id greater than cursor.
// A zero cursor fetches the full history.
func (c *Client) TimelineSince(ctx context.Context, eventID string, cursor int64) ([]TimelineEntry, error) {
	path := fmt.Sprintf("/event/%s/messages?last_message_db_id=%d", url.PathEscape(eventID), cursor)
	var entries []TimelineEntry
	if err := c.do(ctx, c.httpClient, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// RoleHistory fetches the timeline entries authored by one role.
func (c *Client) RoleHistory(ctx context.Context, eventID, role string) ([]TimelineEntry, error) {
	path := fmt.Sprintf("/event/%s/messages?role=%s", url.PathEscape(eventID), url.QueryEscape(role))
	var entries []TimelineEntry
	if err := c.do(ctx, c.httpClient, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EventStats fetches the task/action/command counters for an incident.
func (c *Client) EventStats(ctx context.Context, eventID string) (*EventStats, error) {
	var stats EventStats
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/event/"+url.PathEscape(eventID)+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Summaries fetches the per-round incident summaries.
func (c *Client) Summaries(ctx context.Context, eventID string) ([]RoundSummary, error) {
	var summaries []RoundSummary
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/event/"+url.PathEscape(eventID)+"/summaries", nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// WaitingExecutions fetches the authoritative snapshot of tasks currently
// awaiting a human. Transient failures get a bounded retry.
func (c *Client) WaitingExecutions(ctx context.Context, eventID string) ([]ExecutionTask, error) {
	path := "/event/" + url.PathEscape(eventID) + "/executions?status=waiting"
	var tasks []ExecutionTask
	err := c.doWithRetry(ctx, func() error {
		tasks = nil
		return c.do(ctx, c.httpClient, http.MethodGet, path, nil, &tasks)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CompleteExecution submits a human execution result for a waiting task.
func (c *Client) CompleteExecution(ctx context.Context, eventID, executionKey, result, status string) error {
	path := fmt.Sprintf("/event/%s/execution/%s/complete", url.PathEscape(eventID), url.PathEscape(executionKey))
	body := map[string]string{
		"result": result,
		"status": status,
	}
	return c.do(ctx, c.submitClient, http.MethodPost, path, body, nil)
}

// SendMessage posts a chat message into the incident's war room.
func (c *Client) SendMessage(ctx context.Context, eventID, text string) (*TimelineEntry, error) {
	body := map[string]string{
		"message": text,
		"sender":  OriginUser,
	}
	var entry TimelineEntry
	if err := c.do(ctx, c.submitClient, http.MethodPost, "/event/send_message/"+url.PathEscape(eventID), body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateEvent opens a new incident.
func (c *Client) CreateEvent(ctx context.Context, name, message, source, severity string) (*EventDetail, error) {
	body := map[string]string{
		"event_name": name,
		"message":    message,
		"source":     source,
		"severity":   severity,
	}
	var detail EventDetail
	if err := c.do(ctx, c.submitClient, http.MethodPost, "/event/create", body, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListEvents fetches all incidents.
func (c *Client) ListEvents(ctx context.Context) ([]EventDetail, error) {
	var events []EventDetail
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/event/list", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// DrivingMode reads the server-side auto/manual switch.
func (c *Client) DrivingMode(ctx context.Context) (string, error) {
	var data struct {
		Mode string `json:"mode"`
	}
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/state/driving-mode", nil, &data); err != nil {
		return "", err
	}
	return data.Mode, nil
}

// SetDrivingMode flips the server-side auto/manual switch.
func (c *Client) SetDrivingMode(ctx context.Context, mode string) error {
	body := map[string]string{"mode": mode}
	return c.do(ctx, c.submitClient, http.MethodPut, "/state/driving-mode", body, nil)
}
