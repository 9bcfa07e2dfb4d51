package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher mirrors appended entries to a Kafka topic for the downstream
// compliance pipeline. The store remains the source of truth; a failed
// produce is logged and dropped, never retried against the chain.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewPublisher connects to the brokers and returns a mirror publisher.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// mirrorPayload is the JSON structure published per entry. Field names are
// part of the consumer contract; keep them stable.
type mirrorPayload struct {
	ID        string            `json:"id"`
	EntityID  string            `json:"entity_id"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"ts"`
	PrevHash  string            `json:"prev_hash"`
	CurrHash  string            `json:"curr_hash"`
}

// Publish produces the entry keyed by entity id so one chain lands in one
// partition, preserving order for consumers.
func (p *Publisher) Publish(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(mirrorPayload{
		ID:        entry.ID,
		EntityID:  entry.EntityID,
		Action:    string(entry.Action),
		Actor:     entry.Actor,
		Metadata:  entry.Metadata,
		Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
		PrevHash:  entry.PrevHash,
		CurrHash:  entry.CurrHash,
	})
	if err != nil {
		p.logError(ctx, entry, err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.EntityID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logError(context.Background(), entry, err)
		}
	})
}

func (p *Publisher) logError(ctx context.Context, entry Entry, err error) {
	if p.logger != nil {
		p.logger.WarnContext(ctx, "audit mirror publish failed",
			"entity_id", entry.EntityID,
			"action", string(entry.Action),
			"error", err,
		)
	}
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
