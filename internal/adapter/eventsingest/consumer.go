package eventsingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/domain"
)

const insertEventsQuery = `
INSERT INTO events (event_id, user_id, post_id, author_id, action, dwell_ms, device, app_version, event_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (event_id) DO NOTHING
`

type pending struct {
	ev     domain.InteractionEvent
	record *kgo.Record
}

// Consumer pulls from the events topic, deduplicates by event_id, batches
// inserts into the OLAP events table, and commits offsets, per spec.md
// §4.6's consumer contract.
type Consumer struct {
	client      *kgo.Client
	olapClient  *olap.Client
	dedup       *Deduper
	dlq         DeadLetterSender
	topic       string
	maxRecords  int
	maxWait     time.Duration
	retryConfig domain.RetryConfig
	metrics     *observability.Metrics
}

// DeadLetterSender is the capability the events consumer needs from a
// dead-letter sink; implemented by cdcingest.DeadLetterProducer so both
// ingest paths share one dead-letter topic family without an import cycle.
type DeadLetterSender interface {
	Send(ctx context.Context, sourceTopic string, msg domain.DeadLetterMessage) error
}

// NewConsumer constructs an events consumer.
func NewConsumer(brokers []string, groupID, topic string, olapClient *olap.Client, dedup *Deduper, dlq DeadLetterSender, maxRecords int, maxWait time.Duration, metrics *observability.Metrics) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchMaxWait(maxWait),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("events consumer client: %w", err)
	}
	return &Consumer{
		client:      client,
		olapClient:  olapClient,
		dedup:       dedup,
		dlq:         dlq,
		topic:       topic,
		maxRecords:  maxRecords,
		maxWait:     maxWait,
		retryConfig: domain.DefaultRetryConfig(),
		metrics:     metrics,
	}, nil
}

// Run polls until ctx is cancelled, deduplicating and batching events
// before insert and offset commit.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	batch := make([]pending, 0, c.maxRecords)
	deadline := time.Now().Add(c.maxWait)

	for {
		if ctx.Err() != nil {
			c.flush(context.Background(), batch)
			return ctx.Err()
		}

		fetches := c.client.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				slog.Error("events fetch error", slog.String("topic", e.Topic), slog.Any("error", e.Err))
			}
		}

		fetches.EachRecord(func(r *kgo.Record) {
			var ev domain.InteractionEvent
			if err := json.Unmarshal(r.Value, &ev); err != nil {
				c.sendDeadLetter(ctx, r.Value, fmt.Errorf("decode event: %w", err))
				batch = append(batch, pending{record: r})
				return
			}
			unseen, err := c.dedup.MarkIfUnseen(ctx, ev.EventID)
			if err != nil {
				slog.Warn("events dedup check failed, processing anyway", slog.String("event_id", ev.EventID), slog.Any("error", err))
				unseen = true
			}
			if !unseen {
				batch = append(batch, pending{record: r})
				return
			}
			batch = append(batch, pending{ev: ev, record: r})
		})

		if len(batch) >= c.maxRecords || time.Now().After(deadline) {
			c.flush(ctx, batch)
			batch = batch[:0]
			deadline = time.Now().Add(c.maxWait)
		}
	}
}

func (c *Consumer) flush(ctx context.Context, batch []pending) {
	if len(batch) == 0 {
		return
	}

	events := make([]domain.InteractionEvent, 0, len(batch))
	for _, p := range batch {
		if p.ev.EventID != "" {
			events = append(events, p.ev)
		}
	}

	if err := c.flushWithRetry(ctx, events); err != nil {
		slog.Warn("events batch flush exhausted retries, degrading to per-record", slog.Any("error", err))
		for _, ev := range events {
			if ierr := insertEvent(ctx, c.olapClient, ev); ierr != nil {
				b, _ := json.Marshal(ev)
				c.sendDeadLetter(ctx, b, ierr)
			}
		}
	}

	records := make([]*kgo.Record, len(batch))
	for i, p := range batch {
		records[i] = p.record
	}
	c.client.MarkCommitRecords(records...)
	if cerr := c.client.CommitMarkedOffsets(ctx); cerr != nil {
		slog.Error("events offset commit failed", slog.Any("error", cerr))
	}
}

func (c *Consumer) flushWithRetry(ctx context.Context, events []domain.InteractionEvent) error {
	info := &domain.RetryInfo{}
	var lastErr error
	for {
		lastErr = nil
		for _, ev := range events {
			if err := insertEvent(ctx, c.olapClient, ev); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		info.RecordAttempt(lastErr)
		if !info.ShouldRetry(lastErr, c.retryConfig) {
			return lastErr
		}
		time.Sleep(info.NextRetryDelay(c.retryConfig))
	}
}

func (c *Consumer) sendDeadLetter(ctx context.Context, payload []byte, cause error) {
	c.metrics.IncCDCDeadLetter(c.topic)
	if c.dlq == nil {
		slog.Error("event dead-lettered but no DLQ sender configured", slog.Any("error", cause))
		return
	}
	msg := domain.DeadLetterMessage{
		Service:         "eventsingest",
		OriginalPayload: payload,
		Error:           cause.Error(),
		Timestamp:       time.Now(),
	}
	if err := c.dlq.Send(ctx, c.topic, msg); err != nil {
		slog.Error("failed to send event to dead letter", slog.Any("error", err))
	}
}

func insertEvent(ctx context.Context, client *olap.Client, ev domain.InteractionEvent) error {
	return client.Exec(ctx, insertEventsQuery, ev.EventID, ev.UserID, ev.PostID, ev.AuthorID, ev.Action, ev.DwellMS, ev.Device, ev.AppVer, ev.EventTime)
}
