// internal/ratelimit/usage_store.go
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageStore tracks per-domain send counts per limiting window. It is the one
// piece of cross-campaign shared mutable state in the pipeline, so increments
// must be atomic and counts are read fresh every drain pass.
type UsageStore interface {
	Incr(ctx context.Context, domain string, window time.Time, n int) error
	Get(ctx context.Context, domain string, window time.Time) (int, error)
}

type RedisUsageStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisUsageStore keeps counters for ttl; two windows worth is enough for
// any reader of the current window.
func NewRedisUsageStore(rdb *redis.Client, ttl time.Duration) *RedisUsageStore {
	return &RedisUsageStore{rdb: rdb, ttl: ttl}
}

func usageKey(domain string, window time.Time) string {
	return fmt.Sprintf("domain_usage:%s:%d", domain, window.Unix())
}

func (s *RedisUsageStore) Incr(ctx context.Context, domain string, window time.Time, n int) error {
	key := usageKey(domain, window)
	cnt, err := s.rdb.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return err
	}
	if cnt == int64(n) {
		// first write in this window, set the expiry
		_ = s.rdb.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

func (s *RedisUsageStore) Get(ctx context.Context, domain string, window time.Time) (int, error) {
	cnt, err := s.rdb.Get(ctx, usageKey(domain, window)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return cnt, err
}

// MemoryUsageStore is a process-local UsageStore for tests and single-node
// deployments.
type MemoryUsageStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counts: make(map[string]int)}
}

func (s *MemoryUsageStore) Incr(_ context.Context, domain string, window time.Time, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[usageKey(domain, window)] += n
	return nil
}

func (s *MemoryUsageStore) Get(_ context.Context, domain string, window time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[usageKey(domain, window)], nil
}
