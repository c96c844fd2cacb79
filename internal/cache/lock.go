package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tickLockPrefix = "lock:tick:%s:%s"

// TickLock guarantees at most one in-flight pipeline run per bot and
// ticker. Stale ticks that arrive while a run holds the lock are dropped
// by the scheduler. The TTL bounds how long a crashed run can hold on.
type TickLock struct {
	svc   *Service
	botID string

	mu  sync.Mutex
	mem map[string]memLock
}

type memLock struct {
	token  string
	expiry time.Time
}

// NewTickLock creates the lock; svc may be nil for memory-only use
func NewTickLock(svc *Service, botID string) *TickLock {
	return &TickLock{svc: svc, botID: botID, mem: make(map[string]memLock)}
}

// Acquire takes the lock for ticker. It returns a release token and
// whether the lock was obtained; an already-held lock yields ok=false
// without error.
func (t *TickLock) Acquire(ctx context.Context, ticker string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	token := uuid.NewString()
	key := fmt.Sprintf(tickLockPrefix, t.botID, ticker)

	if t.svc != nil && t.svc.Healthy() {
		ok, err := t.svc.Client().SetNX(ctx, key, token, ttl).Result()
		if err == nil {
			return token, ok, nil
		}
		t.svc.recordFailure()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if held, ok := t.mem[key]; ok && time.Now().Before(held.expiry) {
		return "", false, nil
	}
	t.mem[key] = memLock{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

// Release frees the lock if the token still owns it. A mismatched token
// means the TTL already expired and someone else holds the lock; that is
// not an error.
func (t *TickLock) Release(ctx context.Context, ticker, token string) error {
	key := fmt.Sprintf(tickLockPrefix, t.botID, ticker)

	if t.svc != nil && t.svc.Healthy() {
		held, err := t.svc.Client().Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			return nil
		case err != nil:
			t.svc.recordFailure()
		case held == token:
			return t.svc.Client().Del(ctx, key).Err()
		default:
			return nil
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if held, ok := t.mem[key]; ok && held.token == token {
		delete(t.mem, key)
	}
	return nil
}
