package utils

import (
	"context"
	"encoding/json"
	"time"

	"creatorbook/config"

	"github.com/go-redis/redis/v8"
)

// Cache is a short-TTL read/write-through layer over Redis. It is never
// authoritative: every Get miss (including a disabled or unreachable Redis)
// must fall back to the database.
type Cache struct {
	client *redis.Client
}

func NewCache(cfg config.RedisConfig) *Cache {
	if !cfg.Enabled {
		return &Cache{}
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *Cache) Enabled() bool {
	return c.client != nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client == nil {
		return
	}
	// Best effort: a failed cache write never fails the request
	c.client.Set(ctx, key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	c.client.Del(ctx, key)
}

func (c *Cache) GetJSON(ctx context.Context, key string, out interface{}) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw, ttl)
}
