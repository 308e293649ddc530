// Package cdcingest implements C5: one kgo consumer group per mirrored
// source table, decoding change envelopes and upserting them into OLAP
// mirror tables under collapsing-on-version semantics.
package cdcingest

import (
	"encoding/json"
	"fmt"

	"github.com/feedpipeline/feedsvc/internal/domain"
)

// Envelope is the wire shape of a single change-data-capture record,
// decoded from the topic payload.
type Envelope struct {
	Table     string          `json:"table"`
	Op        domain.MirrorOp `json:"op"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"cdc_timestamp"`
}

// decodeEnvelope parses a raw record value and validates the fields the
// upsert path depends on. A schema mismatch is never retried: it goes
// straight to the dead-letter sink.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Table == "" || env.Key == "" {
		return Envelope{}, fmt.Errorf("envelope missing table or key")
	}
	switch env.Op {
	case domain.MirrorOpCreate, domain.MirrorOpUpdate, domain.MirrorOpDelete:
	default:
		return Envelope{}, fmt.Errorf("envelope has unknown op %q", env.Op)
	}
	if env.Timestamp <= 0 {
		return Envelope{}, fmt.Errorf("envelope missing cdc_timestamp")
	}
	return env, nil
}
