// Package feedcache provides the per-user feed cache and seen-set backed
// by Redis, grounded on the ZSET/pipeline idioms of a reference feed
// repository but using string keys since spec.md requires an explicit
// ordered list rather than score-sorted membership.
package feedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
)

const (
	feedKeyPrefix = "feed:v1:"
	seenKeyPrefix = "feed:seen:"
	seenTTL       = 7 * 24 * time.Hour
	scanBatch     = 100
)

// Cache wraps a go-redis client with the feed-cache and seen-set
// operations spec.md §4.4 names.
type Cache struct {
	rdb     *redis.Client
	metrics *observability.Metrics
}

// New constructs a Cache from an existing *redis.Client.
func New(rdb *redis.Client, metrics *observability.Metrics) *Cache {
	return &Cache{rdb: rdb, metrics: metrics}
}

func feedKey(userID string) string { return feedKeyPrefix + userID }
func seenKey(userID string) string { return seenKeyPrefix + userID }

func jitteredTTL(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 10))
	return base + jitter
}

func (c *Cache) event(name string) {
	if c.metrics != nil {
		c.metrics.IncCacheEvent(name)
	}
}

// ReadFeedCache returns the cached ordered post-id list for a user, or
// (nil, false) on miss. A serialization failure is logged and treated as
// a miss, never an error, per spec.md §4.4's cache contract.
func (c *Cache) ReadFeedCache(ctx context.Context, userID string) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, feedKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("feed cache read error", slog.String("user_id", userID), slog.Any("error", err))
		}
		c.event("miss")
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		slog.Warn("feed cache payload corrupt, treating as miss",
			slog.String("user_id", userID), slog.Any("error", err))
		c.event("miss")
		return nil, false
	}
	c.event("hit")
	return ids, true
}

// WriteFeedCache stores ids with TTL = ttlOverride (or base) with jitter in
// [B, B*1.10). Failures are logged, not returned, matching C8's
// write-through step which never fails the request.
func (c *Cache) WriteFeedCache(ctx context.Context, userID string, ids []string, base time.Duration, ttlOverride time.Duration) {
	ttl := base
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		slog.Warn("feed cache marshal failed", slog.String("user_id", userID), slog.Any("error", err))
		c.event("write_err")
		return
	}
	if err := c.rdb.Set(ctx, feedKey(userID), raw, jitteredTTL(ttl)).Err(); err != nil {
		slog.Warn("feed cache write failed", slog.String("user_id", userID), slog.Any("error", err))
		c.event("write_err")
		return
	}
	c.event("write_ok")
}

// InvalidateUser deletes the exact feed key plus any matching
// feed:v1:{user_id}* keys via cursor-based SCAN, never KEYS.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	pattern := feedKey(userID) + "*"
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("feedcache: scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("feedcache: del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.event("invalidate")
	return nil
}

// MarkSeen adds ids to the user's seen set with a 7-day TTL.
func (c *Cache) MarkSeen(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	key := seenKey(userID)
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, seenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("feedcache: mark seen: %w", err)
	}
	return nil
}

// FilterUnseen returns the subset of ids not present in the user's seen
// set. Redis errors fail open (all ids are treated as unseen) so an
// unreachable cache never blocks feed delivery.
func (c *Cache) FilterUnseen(ctx context.Context, userID string, ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	key := seenKey(userID)
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.BoolCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SIsMember(ctx, key, id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		slog.Warn("feedcache filter_unseen failed open", slog.String("user_id", userID), slog.Any("error", err))
		return ids
	}

	unseen := make([]string, 0, len(ids))
	for i, id := range ids {
		seen, err := cmds[i].Result()
		if err != nil || !seen {
			unseen = append(unseen, id)
		}
	}
	return unseen
}

// Ping verifies Redis reachability, used by readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
