package cdcingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/feedpipeline/feedsvc/internal/adapter/olap"
	"github.com/feedpipeline/feedsvc/internal/domain"
)

// pending pairs a decoded envelope with the raw record it came from, so a
// flush failure can still advance (or dead-letter) the underlying offset.
type pending struct {
	env    Envelope
	record *kgo.Record
}

// Consumer drives one kgo consumer group against one source topic,
// upserting decoded envelopes into one OLAP mirror table.
type Consumer struct {
	client      *kgo.Client
	olapClient  *olap.Client
	dlq         *DeadLetterProducer
	topic       string
	mirrorTable string
	maxRecords  int
	maxWait     time.Duration
	retryConfig domain.RetryConfig
	metrics     *observability.Metrics
}

// NewConsumer constructs a CDC consumer for a single topic/mirror-table
// pair, grounded on the teacher's franz-go consumer-group setup.
func NewConsumer(brokers []string, groupID, topic, mirrorTable string, olapClient *olap.Client, dlq *DeadLetterProducer, maxRecords int, maxWait time.Duration, metrics *observability.Metrics) (*Consumer, error) {
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
		return nil, fmt.Errorf("cdc consumer client: %w", err)
	}
	return &Consumer{
		client:      client,
		olapClient:  olapClient,
		dlq:         dlq,
		topic:       topic,
		mirrorTable: mirrorTable,
		maxRecords:  maxRecords,
		maxWait:     maxWait,
		retryConfig: domain.DefaultRetryConfig(),
		metrics:     metrics,
	}, nil
}

// Run polls until ctx is cancelled, batching up to maxRecords or maxWait
// (whichever comes first) before flushing to the mirror table and
// committing offsets, per spec.md §4.5.
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
				slog.Error("cdc fetch error", slog.String("topic", e.Topic), slog.Any("error", e.Err))
			}
		}

		fetches.EachRecord(func(r *kgo.Record) {
			env, err := decodeEnvelope(r.Value)
			if err != nil {
				c.sendDeadLetter(ctx, r.Value, err)
				batch = append(batch, pending{record: r})
				return
			}
			batch = append(batch, pending{env: env, record: r})
		})

		if len(batch) >= c.maxRecords || time.Now().After(deadline) {
			c.flush(ctx, batch)
			batch = batch[:0]
			deadline = time.Now().Add(c.maxWait)
		}
	}
}

// flush upserts the batch's decoded envelopes and commits offsets for the
// whole batch on success. On failure it retries the batch inline up to
// the retry config's max attempts, then degrades to per-record
// processing so a single poison record cannot block the partition.
func (c *Consumer) flush(ctx context.Context, batch []pending) {
	if len(batch) == 0 {
		return
	}

	envs := make([]Envelope, 0, len(batch))
	var maxTimestamp int64
	for _, p := range batch {
		if p.env.Table != "" {
			envs = append(envs, p.env)
			if p.env.Timestamp > maxTimestamp {
				maxTimestamp = p.env.Timestamp
			}
		}
	}
	if maxTimestamp > 0 {
		lag := time.Since(time.UnixMilli(maxTimestamp)).Seconds()
		c.metrics.SetCDCLag(c.topic, lag)
	}

	err := c.flushWithRetry(ctx, envs)
	if err != nil {
		slog.Warn("cdc batch flush exhausted retries, degrading to per-record", slog.String("table", c.mirrorTable), slog.Any("error", err))
		for _, env := range envs {
			if uerr := upsertMirrorRow(ctx, c.olapClient, c.mirrorTable, env); uerr != nil {
				c.sendDeadLetter(ctx, env.Payload, uerr)
			}
		}
	}

	records := make([]*kgo.Record, len(batch))
	for i, p := range batch {
		records[i] = p.record
	}
	c.client.MarkCommitRecords(records...)
	if cerr := c.client.CommitMarkedOffsets(ctx); cerr != nil {
		slog.Error("cdc offset commit failed", slog.String("topic", c.topic), slog.Any("error", cerr))
	} else {
		c.metrics.IncCDCOffsetCommits(c.topic)
	}
}

func (c *Consumer) flushWithRetry(ctx context.Context, envs []Envelope) error {
	info := &domain.RetryInfo{}
	var lastErr error
	for {
		lastErr = c.olapClient.WithTx(ctx, func(tx pgx.Tx) error {
			for _, env := range envs {
				if err := upsertMirrorRowTx(ctx, tx, c.mirrorTable, env); err != nil {
					return err
				}
			}
			return nil
		})
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
		slog.Error("cdc record dead-lettered but no DLQ producer configured", slog.String("topic", c.topic), slog.Any("error", cause))
		return
	}
	msg := domain.DeadLetterMessage{
		Service:         "cdcingest",
		OriginalPayload: payload,
		Error:           cause.Error(),
		Timestamp:       time.Now(),
	}
	if err := c.dlq.Send(ctx, c.topic, msg); err != nil {
		slog.Error("failed to send cdc record to dead letter", slog.String("topic", c.topic), slog.Any("error", err))
	}
}
