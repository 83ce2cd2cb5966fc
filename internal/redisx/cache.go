package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache holds short-lived read models. The database stays the source of
// truth: every miss or Redis failure falls back to it.
type Cache struct {
	rdb redis.Cmdable
	log zerolog.Logger
}

func NewCache(rdb redis.Cmdable, log zerolog.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

// Order returns the cached body for the order's current generation. gen is
// what a later PutOrder must carry; it is -1 when Redis could not be read.
func (c *Cache) Order(ctx context.Context, orderID string) (body []byte, gen int64, ok bool) {
	gen, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderGen, orderID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("cache generation read")
		return nil, -1, false
	}
	body, ok = c.get(ctx, fmt.Sprintf(KeyOrder, orderID, gen))
	return body, gen, ok
}

// PutOrder stores body under gen. A body rendered before an Invalidate lands
// under a generation nobody reads any more.
func (c *Cache) PutOrder(ctx context.Context, orderID string, gen int64, body []byte) {
	if gen < 0 {
		return
	}
	c.set(ctx, fmt.Sprintf(KeyOrder, orderID, gen), body, TTLOrderCache)
}

func (c *Cache) Availability(ctx context.Context) ([]byte, bool) {
	return c.get(ctx, KeyAvailability)
}

func (c *Cache) PutAvailability(ctx context.Context, body []byte) {
	c.set(ctx, KeyAvailability, body, TTLAvailability)
}

// Invalidate moves the order to a new cache generation and drops the
// availability snapshot. It is called after every committed status change.
func (c *Cache) Invalidate(ctx context.Context, orderID string) {
	genKey := fmt.Sprintf(KeyOrderGen, orderID)
	var next *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		next = pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, TTLOrderGen)
		pipe.Del(ctx, KeyAvailability)
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("invalidate order cache")
		return
	}
	if err := c.rdb.Del(ctx, fmt.Sprintf(KeyOrder, orderID, next.Val()-1)).Err(); err != nil {
		c.log.Warn().Err(err).Str("order_id", orderID).Msg("drop previous order body")
	}
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache read")
		}
		return nil, false
	}
	return b, true
}

func (c *Cache) set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, body, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write")
	}
}
