package risk

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func memoryManager(cfg Config) *Manager {
	return NewManager(nil, cfg, zerolog.Nop())
}

func TestPnlAccumulation(t *testing.T) {
	m := memoryManager(Config{BaselineCapital: 1_000_000, MinTradeInterval: time.Hour})
	ctx := context.Background()

	m.RecordRealizedPnl(ctx, -50_000)
	m.RecordRealizedPnl(ctx, -60_000)

	daily, err := m.DailyPnlPct(ctx)
	require.NoError(t, err)
	require.InDelta(t, -11, daily, 1e-9)

	weekly, err := m.WeeklyPnlPct(ctx)
	require.NoError(t, err)
	require.InDelta(t, -11, weekly, 1e-9)
}

func TestDailyResetsAtMidnight(t *testing.T) {
	m := memoryManager(Config{BaselineCapital: 1_000_000, MinTradeInterval: time.Hour})
	ctx := context.Background()

	day1 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return day1 }
	m.RecordRealizedPnl(ctx, -100_000)

	m.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	daily, err := m.DailyPnlPct(ctx)
	require.NoError(t, err)
	require.Zero(t, daily)

	// Still inside the same ISO week.
	weekly, err := m.WeeklyPnlPct(ctx)
	require.NoError(t, err)
	require.InDelta(t, -10, weekly, 1e-9)
}

func TestTradeThrottle(t *testing.T) {
	m := memoryManager(Config{BaselineCapital: 1_000_000, MinTradeInterval: time.Hour})
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.True(t, m.CanTrade(ctx, "KRW-BTC"))
	m.RecordTradeTime(ctx, "KRW-BTC")
	require.False(t, m.CanTrade(ctx, "KRW-BTC"))
	require.True(t, m.CanTrade(ctx, "KRW-ETH")) // per-ticker throttle

	m.now = func() time.Time { return base.Add(61 * time.Minute) }
	require.True(t, m.CanTrade(ctx, "KRW-BTC"))
}

func TestPnlPctNeedsBaseline(t *testing.T) {
	m := memoryManager(Config{})
	_, err := m.DailyPnlPct(context.Background())
	require.Error(t, err)
}

func TestSetBaseline(t *testing.T) {
	m := memoryManager(Config{BaselineCapital: 1_000_000})
	m.SetBaseline(2_000_000)
	ctx := context.Background()
	m.RecordRealizedPnl(ctx, -100_000)

	daily, err := m.DailyPnlPct(ctx)
	require.NoError(t, err)
	require.InDelta(t, -5, daily, 1e-9)

	m.SetBaseline(0) // ignored
	daily, err = m.DailyPnlPct(ctx)
	require.NoError(t, err)
	require.InDelta(t, -5, daily, 1e-9)
}
