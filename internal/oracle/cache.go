package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"callwatch/internal/domain"
)

// DefaultCacheTTL is how long a successful fetch is reused.
const DefaultCacheTTL = 30 * time.Second

// Cache stores market data by key. A miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*domain.MarketData, error)
	Set(ctx context.Context, key string, data *domain.MarketData, ttl time.Duration) error
}

// Cached wraps a PriceOracle and reuses successful results for a TTL.
// Errors are never cached; cache failures fall through to the source.
type Cached struct {
	next   PriceOracle
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached creates a caching decorator. ttl <= 0 uses DefaultCacheTTL.
func NewCached(next PriceOracle, cache Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log.Logger.With().Str("component", "oracle_cache").Logger(),
	}
}

var _ PriceOracle = (*Cached)(nil)

func cacheKey(chain domain.Chain, address string) string {
	return "callwatch:market:" + string(chain) + ":" + address
}

// Fetch implements PriceOracle.
func (c *Cached) Fetch(ctx context.Context, chain domain.Chain, address string) (*domain.MarketData, error) {
	key := cacheKey(chain, address)

	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if data != nil {
		return data, nil
	}

	data, err = c.next.Fetch(ctx, chain, address)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return data, nil
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      domain.MarketData
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

var _ Cache = (*MemoryCache)(nil)

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, key string) (*domain.MarketData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	data := e.data
	return &data, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, key string, data *domain.MarketData, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{data: *data, expiresAt: m.now().Add(ttl)}
	return nil
}

// RedisCache stores JSON-encoded market data in Redis.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

var _ Cache = (*RedisCache)(nil)

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key string) (*domain.MarketData, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var data domain.MarketData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode cached market data: %w", err)
	}
	return &data, nil
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key string, data *domain.MarketData, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode market data: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
