// Package cache stores derived consent scopes in Redis. Entries are pinned
// to the chain head they were derived from, so a stale entry is never served
// even if an invalidation was lost.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"cidledger/internal/consent/models"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/circuit"
)

const keyPrefix = "cidledger:consent:derived:"

// DefaultTTL bounds how long an entry lives without an append.
const DefaultTTL = 10 * time.Minute

type entry struct {
	HeadID string        `json:"head_id"`
	Scope  *models.Scope `json:"scope"`
}

// RedisCache implements the derived-scope cache on go-redis.
type RedisCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*RedisCache)

// WithBreaker short-circuits Redis while it is failing. An open circuit turns
// reads into misses and skips writes; skipped invalidations are safe because
// entries are pinned to their head.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *RedisCache) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, opts ...Option) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &RedisCache{client: client, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) allow() bool {
	return c.breaker == nil || c.breaker.Allow()
}

func (c *RedisCache) record(err error) {
	if c.breaker == nil {
		return
	}
	change := c.breaker.Record(err)
	if c.logger == nil {
		return
	}
	switch {
	case change.Opened:
		c.logger.Warn("derived consent cache circuit opened", "breaker", c.breaker.Name(), "error", err)
	case change.Closed:
		c.logger.Info("derived consent cache circuit closed", "breaker", c.breaker.Name())
	}
}

func key(cid domain.CID) string {
	return keyPrefix + string(cid)
}

// Get returns the cached scope when it was derived from headID. A missing
// or stale entry is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, cid domain.CID, headID domain.EventID) (*models.Scope, bool, error) {
	if !c.allow() {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, key(cid)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(nil)
		return nil, false, nil
	}
	c.record(err)
	if err != nil {
		return nil, false, fmt.Errorf("read derived scope: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode derived scope: %w", err)
	}
	if e.HeadID != headID.String() {
		return nil, false, nil
	}
	return e.Scope, true, nil
}

func (c *RedisCache) Set(ctx context.Context, cid domain.CID, headID domain.EventID, scope *models.Scope) error {
	raw, err := json.Marshal(entry{HeadID: headID.String(), Scope: scope})
	if err != nil {
		return fmt.Errorf("encode derived scope: %w", err)
	}
	if !c.allow() {
		return nil
	}
	err = c.client.Set(ctx, key(cid), raw, c.ttl).Err()
	c.record(err)
	if err != nil {
		return fmt.Errorf("write derived scope: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, cid domain.CID) error {
	if !c.allow() {
		return nil
	}
	err := c.client.Del(ctx, key(cid)).Err()
	c.record(err)
	if err != nil {
		return fmt.Errorf("invalidate derived scope: %w", err)
	}
	return nil
}
