package cdcingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/feedpipeline/feedsvc/internal/domain"
)

// DeadLetterProducer publishes records that cannot be processed to a
// dead-letter topic, tagged with the source topic and failure reason.
// Grounded on the teacher's Producer, trimmed to what a best-effort
// dead-letter sink needs: no transactional EOS, since a duplicated
// dead-letter write is harmless.
type DeadLetterProducer struct {
	client   *kgo.Client
	dlqTopic string
}

// NewDeadLetterProducer constructs a DeadLetterProducer publishing to
// dlqTopic.
func NewDeadLetterProducer(brokers []string, dlqTopic string) (*DeadLetterProducer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("dead letter producer client: %w", err)
	}
	return &DeadLetterProducer{client: client, dlqTopic: dlqTopic}, nil
}

// Send publishes msg to the dead-letter topic, keyed by the source topic
// so a single dead-letter topic can serve multiple source streams.
func (p *DeadLetterProducer) Send(ctx context.Context, sourceTopic string, msg domain.DeadLetterMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter message: %w", err)
	}
	record := &kgo.Record{
		Topic: p.dlqTopic,
		Key:   []byte(sourceTopic),
		Value: b,
	}
	res := p.client.ProduceSync(ctx, record)
	return res.FirstErr()
}

// Close releases the underlying client.
func (p *DeadLetterProducer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
