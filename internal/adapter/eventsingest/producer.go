// Package eventsingest implements C6: an HTTP batch endpoint that
// publishes client interaction events keyed by user_id, and a topic
// consumer that deduplicates and inserts them into the OLAP events table.
package eventsingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/feedpipeline/feedsvc/internal/domain"
)

// Producer publishes interaction events to the events topic, keyed by
// user_id for partition affinity so a user's events stay ordered.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer publishing to topic.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("events producer client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// Publish produces a single event, keyed by user_id.
func (p *Producer) Publish(ctx context.Context, ev domain.InteractionEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.UserID),
		Value: b,
	}
	res := p.client.ProduceSync(ctx, record)
	return res.FirstErr()
}

// Close releases the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
