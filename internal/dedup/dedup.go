// Package dedup provides a Redis-backed fast path in front of the
// Message Deduplication table: a consumer worker checks Redis first to
// avoid a round trip to the coordinator for the overwhelmingly common
// case of a MessageId never seen before, and only falls back to the
// persisted table (authoritative, checked inside ProcessWorkBatch's own
// transaction) on a cache miss or Redis outage.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
)

// Config describes the Redis connection: a connection string and a
// singleton client resolved lazily on first use.
type Config struct {
	ConnectionString string
	KeyPrefix        string
	TTL              time.Duration
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "whizbang:dedup:"
	}

	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}

	return c
}

// Cache is the fast-path dedup check. It never replaces the
// persisted table's uniqueness constraint — it only saves a
// ProcessWorkBatch round trip on the common "never seen" path.
type Cache struct {
	cfg    Config
	logger libLog.Logger
	client *redis.Client
}

func New(cfg Config, logger libLog.Logger) *Cache {
	return &Cache{cfg: cfg.withDefaults(), logger: logger}
}

func (c *Cache) connect(ctx context.Context) (*redis.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	opts, err := redis.ParseURL(c.cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if c.logger != nil {
		c.logger.Info("dedup: connected to redis")
	}

	c.client = client

	return client, nil
}

// SeenBefore reports whether id has already been recorded. A Redis
// error is treated as "unknown" (returns false, err non-nil) so the
// caller falls back to the authoritative table rather than silently
// admitting a possible duplicate.
func (c *Cache) SeenBefore(ctx context.Context, id uuid.UUID) (bool, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return false, err
	}

	n, err := client.Exists(ctx, c.key(id)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// MarkSeen records id in the fast-path cache. It should be called after
// the authoritative Message Deduplication row is persisted so a crash
// between the two never causes a false "seen" on a message that was
// never actually durably recorded.
func (c *Cache) MarkSeen(ctx context.Context, id uuid.UUID) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}

	return client.Set(ctx, c.key(id), 1, c.cfg.TTL).Err()
}

func (c *Cache) key(id uuid.UUID) string {
	return c.cfg.KeyPrefix + id.String()
}

// ErrUnavailable signals the cache could not be reached; callers should
// treat this as a cache miss rather than an error that aborts handling.
var ErrUnavailable = errors.New("dedup: cache unavailable")
