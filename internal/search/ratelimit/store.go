// internal/search/ratelimit/store.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the injected counter backend. Incr must be a single atomic
// check-and-increment: it bumps the window counter for key, arms the window
// TTL on first hit, and returns the post-increment count plus the remaining
// window. Two concurrent callers can therefore never observe the same slot.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// incrScript bumps the counter and arms the TTL in one round-trip so the
// window cannot be left unbounded between INCR and EXPIRE.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisStore backs the limiter with Redis, shared across replicas.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, err
	}

	count, _ := res[0].(int64)
	ttlMs, _ := res[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count, time.Duration(ttlMs) * time.Millisecond, nil
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &memoryWindow{expiresAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}
