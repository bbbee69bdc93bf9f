package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"plugstore/internal/bundle"
)

const activeBundlesKey = "bundles:active"

type Source interface {
	GetByID(ctx context.Context, id int64) (*bundle.Bundle, error)
	ListActive(ctx context.Context, now time.Time) ([]*bundle.Bundle, error)
}

// ActiveBundleCache держит список действующих наборов в Redis.
// При любой ошибке Redis читает напрямую из источника.
type ActiveBundleCache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
}

func NewActiveBundleCache(client *redis.Client, source Source, ttl time.Duration) *ActiveBundleCache {
	return &ActiveBundleCache{client: client, source: source, ttl: ttl}
}

// GetByID не кэшируется: одиночные запросы идут в источник.
func (c *ActiveBundleCache) GetByID(ctx context.Context, id int64) (*bundle.Bundle, error) {
	return c.source.GetByID(ctx, id)
}

func (c *ActiveBundleCache) ListActive(ctx context.Context, now time.Time) ([]*bundle.Bundle, error) {
	data, err := c.client.Get(ctx, activeBundlesKey).Bytes()
	if err == nil {
		var cached []*bundle.Bundle
		if err := json.Unmarshal(data, &cached); err == nil {
			return stillInEffect(cached, now), nil
		}
		log.Printf("BundleCache: ERROR: corrupted cache entry, reloading: %v", err)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("BundleCache: ERROR: redis get failed: %v", err)
	}

	bundles, err := c.source.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(bundles)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, activeBundlesKey, payload, c.ttl).Err(); err != nil {
		log.Printf("BundleCache: ERROR: redis set failed: %v", err)
	}
	return bundles, nil
}

// Invalidate вызывается после каждого изменения наборов администратором.
func (c *ActiveBundleCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, activeBundlesKey).Err()
}

// Набор мог истечь, пока лежал в кэше.
func stillInEffect(bundles []*bundle.Bundle, now time.Time) []*bundle.Bundle {
	out := bundles[:0]
	for _, b := range bundles {
		if b.InEffect(now) {
			out = append(out, b)
		}
	}
	return out
}
