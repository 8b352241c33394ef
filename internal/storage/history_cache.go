package storage

import (
	"context"
	"dealchat/backend/internal/models"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// HistoryCache is the per-process, non-authoritative copy of room histories.
type HistoryCache interface {
	// Get reports found=false on a miss.
	Get(ctx context.Context, roomID string) (msgs []models.ChatMessage, found bool, err error)
	// Set replaces the cached history of a room. Empty histories are not cached.
	Set(ctx context.Context, roomID string, msgs []models.ChatMessage) error
	// Append adds msg to an already cached history and does nothing otherwise.
	Append(ctx context.Context, msg models.ChatMessage) error
	Invalidate(ctx context.Context, roomID string) error
	Stats() CacheStats
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hitRate"`
}

type cacheCounters struct {
	hits, misses, sets, errors atomic.Uint64
}

func (c *cacheCounters) snapshot() CacheStats {
	s := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Errors: c.errors.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// RedisHistoryCache keeps one Redis list of JSON messages per room. Keys are
// scoped to a per-process instance id so a restarted process starts cold.
type RedisHistoryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  cacheCounters
}

// NewRedisHistoryCache creates a cache under "<prefix><instance>:".
func NewRedisHistoryCache(client *redis.Client, prefix string, ttl time.Duration) *RedisHistoryCache {
	return &RedisHistoryCache{
		client: client,
		prefix: prefix + uuid.NewString() + ":",
		ttl:    ttl,
	}
}

func (c *RedisHistoryCache) key(roomID string) string {
	return c.prefix + roomID
}

func (c *RedisHistoryCache) Get(ctx context.Context, roomID string) ([]models.ChatMessage, bool, error) {
	items, err := c.client.LRange(ctx, c.key(roomID), 0, -1).Result()
	if err != nil {
		c.stats.errors.Add(1)
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}
	if len(items) == 0 {
		c.stats.misses.Add(1)
		return nil, false, nil
	}

	msgs := make([]models.ChatMessage, 0, len(items))
	for _, item := range items {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			c.stats.errors.Add(1)
			return nil, false, fmt.Errorf("cache unmarshal error: %w", err)
		}
		msgs = append(msgs, m)
	}
	c.stats.hits.Add(1)
	return msgs, true, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, roomID string, msgs []models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("cache marshal error: %w", err)
		}
		values = append(values, data)
	}

	key := c.key(roomID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("cache set error: %w", err)
	}
	c.stats.sets.Add(1)
	return nil
}

func (c *RedisHistoryCache) Append(ctx context.Context, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	key := c.key(msg.RoomID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPushX(ctx, key, data)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("cache append error: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, c.key(roomID)).Err(); err != nil {
		c.stats.errors.Add(1)
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Stats() CacheStats { return c.stats.snapshot() }

// MemoryHistoryCache is used when no Redis is configured.
type MemoryHistoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	stats   cacheCounters
}

type memoryEntry struct {
	msgs      []models.ChatMessage
	expiresAt time.Time
}

func NewMemoryHistoryCache(ttl time.Duration) *MemoryHistoryCache {
	return &MemoryHistoryCache{ttl: ttl, entries: make(map[string]memoryEntry)}
}

func (c *MemoryHistoryCache) Get(_ context.Context, roomID string) ([]models.ChatMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[roomID]
	if ok && time.Now().After(e.expiresAt) {
		delete(c.entries, roomID)
		ok = false
	}
	if !ok {
		c.stats.misses.Add(1)
		return nil, false, nil
	}
	c.stats.hits.Add(1)
	return append([]models.ChatMessage(nil), e.msgs...), true, nil
}

func (c *MemoryHistoryCache) Set(_ context.Context, roomID string, msgs []models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[roomID] = memoryEntry{
		msgs:      append([]models.ChatMessage(nil), msgs...),
		expiresAt: time.Now().Add(c.ttl),
	}
	c.stats.sets.Add(1)
	return nil
}

func (c *MemoryHistoryCache) Append(_ context.Context, msg models.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[msg.RoomID]
	if !ok {
		return nil
	}
	e.msgs = append(e.msgs, msg)
	e.expiresAt = time.Now().Add(c.ttl)
	c.entries[msg.RoomID] = e
	return nil
}

func (c *MemoryHistoryCache) Invalidate(_ context.Context, roomID string) error {
	c.mu.Lock()
	delete(c.entries, roomID)
	c.mu.Unlock()
	return nil
}

func (c *MemoryHistoryCache) Stats() CacheStats { return c.stats.snapshot() }
