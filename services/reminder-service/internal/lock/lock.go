// Package lock guards a scheduler tick so that only one replica dispatches a given hour.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker acquires a lock on key for ttl. acquired is false when another holder owns it.
// Locks are never released early; they expire so the same slot cannot run twice.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (acquired bool, err error)
}

// SlotKey names the lock for one tenant and one hourly slot.
func SlotKey(tenantID string, slot time.Time) string {
	return fmt.Sprintf("clinicremind:dispatch:%s:%s", tenantID, slot.UTC().Format("2006010215"))
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker uses SET NX PX, shared by every replica pointing at the same Redis.
type RedisLocker struct {
	rdb   setNXer
	owner string
}

func NewRedisLocker(rdb setNXer, owner string) *RedisLocker {
	return &RedisLocker{rdb: rdb, owner: owner}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	return ok, nil
}

// LocalLocker is the single-process fallback when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewLocalLocker(now func() time.Time) *LocalLocker {
	if now == nil {
		now = time.Now
	}
	return &LocalLocker{held: make(map[string]time.Time), clock: now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	for k, exp := range l.held {
		if !now.Before(exp) {
			delete(l.held, k)
		}
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}
