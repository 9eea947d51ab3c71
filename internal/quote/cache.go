package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

// Cache keeps the last quote each market produced from a network stage.
type Cache interface {
	Get(ctx context.Context, marketID string) (model.Quote, bool, error)
	Put(ctx context.Context, q model.Quote) error
}

func cacheKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{quotes: make(map[string]model.Quote)}
}

func (c *MemoryCache) Get(_ context.Context, marketID string) (model.Quote, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[cacheKey(marketID)]
	if !ok {
		return model.Quote{}, false, nil
	}
	q.Market = q.Market.Clone()
	return q, true, nil
}

func (c *MemoryCache) Put(_ context.Context, q model.Quote) error {
	q.Market = q.Market.Clone()
	c.mu.Lock()
	c.quotes[cacheKey(q.ID)] = q
	c.mu.Unlock()
	return nil
}

// RedisCache stores last-known quotes as JSON under a namespaced key so
// several gateway replicas share one view.
type RedisCache struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

// NewRedisCache creates a cache under namespace; a zero ttl keeps entries forever
func NewRedisCache(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, namespace: namespace, ttl: ttl}
}

func (c *RedisCache) key(id string) string {
	return fmt.Sprintf("metaswap:quote:%s:%s", c.namespace, cacheKey(id))
}

func (c *RedisCache) Get(ctx context.Context, marketID string) (model.Quote, bool, error) {
	raw, err := c.client.Get(ctx, c.key(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Quote{}, false, nil
	}
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("redis get: %w", err)
	}
	var q model.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return model.Quote{}, false, fmt.Errorf("decode cached quote: %w", err)
	}
	return q, true, nil
}

func (c *RedisCache) Put(ctx context.Context, q model.Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	if err := c.client.Set(ctx, c.key(q.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
