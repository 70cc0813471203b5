package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"puntoventa/backend/internal/domain"
)

const productKeyPrefix = "puntoventa:product:"

// RedisProductCache caches product rows in redis. Entries are short-lived and
// only serve catalog reads; a stale price here cannot leak into a sale because
// the writer reprices from the database under lock.
type RedisProductCache struct {
	client *redis.Client
}

func NewRedisProductCache(ctx context.Context, addr, password string, db int) (*RedisProductCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisProductCache{client: client}, nil
}

func (c *RedisProductCache) Get(ctx context.Context, sku string) (*domain.Product, bool, error) {
	payload, err := c.client.Get(ctx, productKeyPrefix+sku).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal([]byte(payload), &product); err != nil {
		// A corrupt entry behaves like a miss; the caller refills it.
		return nil, false, nil
	}
	return &product, true, nil
}

func (c *RedisProductCache) Set(ctx context.Context, sku string, product *domain.Product, ttl time.Duration) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	if err := c.client.Set(ctx, productKeyPrefix+sku, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisProductCache) Close() error {
	return c.client.Close()
}

var _ ProductCache = (*RedisProductCache)(nil)
