package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Snapshot is the part of State that survives restarts
type Snapshot struct {
	LastTranslatedText string `json:"last_translated_text"`
	LastStatus         string `json:"last_status"`
}

// Cache persists the last snapshot
type Cache interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// MemoryCache keeps the snapshot in process
type MemoryCache struct {
	snap Snapshot
	mu   sync.RWMutex
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, nil
}

func (c *MemoryCache) Save(ctx context.Context, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	return nil
}

const (
	fieldTranslatedText = "last_translated_text"
	fieldStatus         = "last_status"
)

// RedisCache stores the snapshot in a Redis hash
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache creates a cache under key
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	return &RedisCache{client: client, key: key}
}

func (c *RedisCache) Load(ctx context.Context) (Snapshot, error) {
	values, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("load ui cache %s: %w", c.key, err)
	}
	return Snapshot{
		LastTranslatedText: values[fieldTranslatedText],
		LastStatus:         values[fieldStatus],
	}, nil
}

func (c *RedisCache) Save(ctx context.Context, snap Snapshot) error {
	err := c.client.HSet(ctx, c.key,
		fieldTranslatedText, snap.LastTranslatedText,
		fieldStatus, snap.LastStatus,
	).Err()
	if err != nil {
		return fmt.Errorf("save ui cache %s: %w", c.key, err)
	}
	return nil
}
