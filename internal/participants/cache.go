package participants

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-registration/internal/models"
)

const cacheKeyPrefix = "registration:participant:"

// Cache holds resolved profiles. Get returns ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, id string) (models.Participant, bool, error)
	Put(ctx context.Context, p models.Participant) error
	Evict(ctx context.Context, id string) error
}

// RedisCache shares profiles between replicas with a fixed TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

func (c *RedisCache) Get(ctx context.Context, id string) (models.Participant, bool, error) {
	raw, err := c.Client.Get(ctx, cacheKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return models.Participant{}, false, nil
	}
	if err != nil {
		return models.Participant{}, false, fmt.Errorf("failed to read participant cache: %w", err)
	}

	var p models.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		// corrupt entries are treated as misses
		return models.Participant{}, false, nil
	}
	return p, true, nil
}

func (c *RedisCache) Put(ctx context.Context, p models.Participant) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, cacheKeyPrefix+p.ID, raw, c.TTL).Err()
}

func (c *RedisCache) Evict(ctx context.Context, id string) error {
	return c.Client.Del(ctx, cacheKeyPrefix+id).Err()
}

// MemoryCache is a process-local Cache for single-replica setups and tooling.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	participant models.Participant
	expiresAt   time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}, ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, id string) (models.Participant, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || (c.ttl > 0 && time.Now().After(e.expiresAt)) {
		return models.Participant{}, false, nil
	}
	return e.participant, true, nil
}

func (c *MemoryCache) Put(_ context.Context, p models.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.ID] = memoryEntry{participant: p, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Evict(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}
