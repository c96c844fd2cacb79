package backtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

func TestConfigHashChangesWithStrategy(t *testing.T) {
	cfg := DefaultConfig()
	stratA := strategy.DefaultConfig()
	stratB := stratA
	stratB.KValue = 0.7

	a := ConfigHash(cfg, stratA, market.Interval60m)
	b := ConfigHash(cfg, stratB, market.Interval60m)
	require.Len(t, a, 16)
	require.NotEqual(t, a, b)

	// Same inputs, same fingerprint.
	require.Equal(t, a, ConfigHash(cfg, stratA, market.Interval60m))
	require.NotEqual(t, a, ConfigHash(cfg, stratA, market.Interval1d))
}

func TestCacheGetOrComputeRunsOnce(t *testing.T) {
	c := NewMetricsCache()
	calls := 0
	compute := func() (*Result, error) {
		calls++
		return &Result{}, nil
	}

	first, err := c.GetOrCompute("KRW-BTC", "h1", compute)
	require.NoError(t, err)
	second, err := c.GetOrCompute("KRW-BTC", "h1", compute)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, calls)
}

func TestCacheDropEvictsOnlyTicker(t *testing.T) {
	c := NewMetricsCache()
	c.Put("KRW-BTC", "h1", &Result{})
	c.Put("KRW-BTC", "h2", &Result{})
	c.Put("KRW-ETH", "h1", &Result{})

	c.Drop("KRW-BTC")
	require.Equal(t, 1, c.Len())
	_, ok := c.Get("KRW-BTC", "h1")
	require.False(t, ok)
	_, ok = c.Get("KRW-ETH", "h1")
	require.True(t, ok)
}
