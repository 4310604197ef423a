// Package mirror tees ingested timeline entries onto a Kafka topic so
// downstream analytics can consume the war-room feed. It is optional and
// strictly best effort; a broker outage never affects the session.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/warboard/warboard/internal/api"
)

// writer is the subset of kafka.Writer the publisher uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher republishes timeline entries keyed by incident id, so one
// incident's feed stays in partition order.
type Publisher struct {
	w   writer
	log *slog.Logger
}

// record is the published message body.
type record struct {
	IncidentID string          `json:"incident_id"`
	DBID       int64           `json:"db_id"`
	BusinessID string          `json:"business_id,omitempty"`
	Origin     string          `json:"origin"`
	Kind       string          `json:"kind"`
	RoundID    int             `json:"round_id"`
	Content    json.RawMessage `json:"content,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{w: w, log: log}
}

// Publish writes one entry to the topic.
func (p *Publisher) Publish(ctx context.Context, incidentID string, entry api.TimelineEntry) error {
	value, err := json.Marshal(record{
		IncidentID: incidentID,
		DBID:       entry.DBID,
		BusinessID: entry.BusinessID,
		Origin:     entry.Origin,
		Kind:       entry.Kind,
		RoundID:    entry.RoundID,
		Content:    entry.RawPayload,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("mirror: encode record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(incidentID),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("mirror: publish failed", "incident", incidentID, "db_id", entry.DBID, "error", err)
		return fmt.Errorf("mirror: publish: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
