package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrderLedgerRejectsDuplicateWithinTTL(t *testing.T) {
	l := NewOrderLedger(nil)
	ctx := context.Background()

	seen, err := l.CheckKey(ctx, "abc")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, l.MarkKey(ctx, "abc", time.Hour))

	seen, err = l.CheckKey(ctx, "abc")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestOrderLedgerKeyExpires(t *testing.T) {
	l := NewOrderLedger(nil)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.MarkKey(ctx, "abc", time.Hour))

	now = now.Add(2 * time.Hour)
	seen, err := l.CheckKey(ctx, "abc")
	require.NoError(t, err)
	require.False(t, seen, "expired key must be reusable")
}

func TestTickLockSingleHolder(t *testing.T) {
	lock := NewTickLock(nil, "bot-1")
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx, "KRW-BTC", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = lock.Acquire(ctx, "KRW-BTC", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second acquire while held must fail")

	// A different ticker is an independent lock.
	_, ok, err = lock.Acquire(ctx, "KRW-ETH", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "KRW-BTC", token))
	_, ok, err = lock.Acquire(ctx, "KRW-BTC", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTickLockReleaseNeedsOwningToken(t *testing.T) {
	lock := NewTickLock(nil, "bot-1")
	ctx := context.Background()

	token, ok, err := lock.Acquire(ctx, "KRW-BTC", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "KRW-BTC", "stale-token"))
	_, ok, err = lock.Acquire(ctx, "KRW-BTC", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "foreign token must not release the lock")

	require.NoError(t, lock.Release(ctx, "KRW-BTC", token))
}
