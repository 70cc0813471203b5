// Package cache provides a read-through cache for product lookups. The sale
// writer never consults it: stock and price inside the transaction always come
// from locked rows. Only the catalog read endpoints go through here.
package cache

import (
	"context"
	"time"

	"puntoventa/backend/internal/domain"
)

// ProductCache is satisfied by the redis-backed cache and by the noop
// fallback used when no REDIS_ADDR is configured.
type ProductCache interface {
	Get(ctx context.Context, sku string) (*domain.Product, bool, error)
	Set(ctx context.Context, sku string, product *domain.Product, ttl time.Duration) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(context.Context, string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(context.Context, string, *domain.Product, time.Duration) error {
	return nil
}
