package eventsingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "events:seen:"

// Deduper implements the 24h idempotency cache keyed by event_id from
// spec.md §4.6's consumer contract, grounded on the same go-redis client
// idiom as the feed cache.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduper builds a Deduper with the given seen-set TTL.
func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// MarkIfUnseen returns true and marks eventID seen if it has not been
// observed within the TTL window; returns false if already seen.
func (d *Deduper) MarkIfUnseen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, seenKeyPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return ok, nil
}
