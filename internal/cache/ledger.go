package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const orderKeyPrefix = "order:key:%s"

// OrderLedger is the Redis-backed idempotency ledger for order submission.
// Keys live under order:key:<hash> for the configured TTL. When Redis is
// down it falls back to an in-process map so a single bot instance still
// rejects duplicates within its own lifetime.
type OrderLedger struct {
	svc *Service

	mu   sync.Mutex
	mem  map[string]time.Time
	now  func() time.Time
}

// NewOrderLedger creates the ledger; svc may be nil for memory-only use
func NewOrderLedger(svc *Service) *OrderLedger {
	return &OrderLedger{svc: svc, mem: make(map[string]time.Time), now: time.Now}
}

// CheckKey reports whether the key was already used within its TTL
func (l *OrderLedger) CheckKey(ctx context.Context, key string) (bool, error) {
	if l.svc != nil && l.svc.Healthy() {
		n, err := l.svc.Client().Exists(ctx, fmt.Sprintf(orderKeyPrefix, key)).Result()
		if err == nil {
			return n > 0, nil
		}
		l.svc.recordFailure()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, ok := l.mem[key]
	if !ok {
		return false, nil
	}
	if l.now().After(expiry) {
		delete(l.mem, key)
		return false, nil
	}
	return true, nil
}

// MarkKey records the key for ttl. Marking an already-present key is a
// no-op, not an error.
func (l *OrderLedger) MarkKey(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if l.svc != nil && l.svc.Healthy() {
		err := l.svc.Client().SetNX(ctx, fmt.Sprintf(orderKeyPrefix, key), "1", ttl).Err()
		if err == nil || err == redis.Nil {
			return nil
		}
		l.svc.recordFailure()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.mem[key] = l.now().Add(ttl)
	return nil
}
