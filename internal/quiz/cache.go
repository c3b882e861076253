package quiz

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuizCache caches full quiz snapshots (answer key included) for the hot
// validation/grading path. Safe because quizzes are immutable once published;
// PutQuiz invalidates on the rare re-upsert.
type QuizCache interface {
	Get(ctx context.Context, id string) (Quiz, bool)
	Set(ctx context.Context, z Quiz)
	Invalidate(ctx context.Context, id string)
}

type memoryQuizCache struct {
	mu sync.RWMutex
	m  map[string]Quiz
}

// NewMemoryQuizCache is the default in-process cache.
func NewMemoryQuizCache() QuizCache {
	return &memoryQuizCache{m: map[string]Quiz{}}
}

func (c *memoryQuizCache) Get(_ context.Context, id string) (Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	z, ok := c.m[id]
	return z, ok
}

func (c *memoryQuizCache) Set(_ context.Context, z Quiz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[z.ID] = z
}

func (c *memoryQuizCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}

// RedisQuizCache shares quiz snapshots across server processes. Cache
// failures degrade to DB reads; they are never surfaced to callers.
type RedisQuizCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisQuizCache(rdb *redis.Client, ttl time.Duration) *RedisQuizCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisQuizCache{rdb: rdb, ttl: ttl}
}

func cacheKey(id string) string { return "quizrun:quiz:" + id }

func (c *RedisQuizCache) Get(ctx context.Context, id string) (Quiz, bool) {
	b, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		return Quiz{}, false
	}
	var z Quiz
	if err := json.Unmarshal(b, &z); err != nil {
		return Quiz{}, false
	}
	return z, true
}

func (c *RedisQuizCache) Set(ctx context.Context, z Quiz) {
	b, err := json.Marshal(z)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, cacheKey(z.ID), b, c.ttl).Err()
}

func (c *RedisQuizCache) Invalidate(ctx context.Context, id string) {
	_ = c.rdb.Del(ctx, cacheKey(id)).Err()
}
