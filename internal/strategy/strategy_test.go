package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/market"
)

func buildSeries(closes, volumes []float64) *market.Series {
	candles := make([]market.Candle, len(closes))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		hi := math.Max(open, c) + 0.2
		lo := math.Min(open, c) - 0.2
		candles[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    volumes[i],
		}
	}
	return &market.Series{Ticker: "KRW-BTC", Interval: market.Interval60m, Candles: candles}
}

// flatCloses returns n closes oscillating tightly around base so that
// band width stays near zero and ADX stays directionless.
func flatCloses(n int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base
		if i%2 == 0 {
			out[i] += 0.3
		} else {
			out[i] -= 0.3
		}
	}
	return out
}

func flatVolumes(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestCleanBreakoutEntry(t *testing.T) {
	n := 61
	closes := flatCloses(n, 100)
	volumes := flatVolumes(n, 1000)
	closes[n-1] = 103.5
	volumes[n-1] = 2000 // 2.0x the running mean

	s := buildSeries(closes, volumes)
	b := NewBreakout(DefaultConfig())
	f := NewFrame(s, b.Config())

	sig := b.Evaluate(f, n-1, nil)
	require.Equal(t, ActionBuy, sig.Action)
	require.NotNil(t, sig.Entry)

	if sig.Entry.Breakout == "" {
		t.Error("breakout gate clause not recorded")
	}
	if sig.Entry.Volume != "volume_spike" {
		t.Errorf("volume clause = %q, want volume_spike", sig.Entry.Volume)
	}

	atr := at(f.ATR, n-1)
	require.False(t, math.IsNaN(atr))
	require.InDelta(t, 103.5-2*atr, sig.StopLoss, 1e-9)
	require.InDelta(t, 103.5+3*atr, sig.TakeProfit, 1e-9)
}

func TestNoBreakoutOnConstantSeries(t *testing.T) {
	n := 61
	s := buildSeries(flatCloses(n, 100), flatVolumes(n, 1000))
	b := NewBreakout(DefaultConfig())
	f := NewFrame(s, b.Config())

	for i := b.WarmupBars(); i < n; i++ {
		if sig := b.Evaluate(f, i, nil); sig.Action != ActionNone {
			t.Fatalf("bar %d: unexpected %s signal on flat series", i, sig.Action)
		}
	}
}

func TestZeroVolumeFailsVolumeGate(t *testing.T) {
	n := 61
	closes := flatCloses(n, 100)
	closes[n-1] = 103.5
	s := buildSeries(closes, flatVolumes(n, 0))
	b := NewBreakout(DefaultConfig())
	f := NewFrame(s, b.Config())

	sig := b.Evaluate(f, n-1, nil)
	if sig.Action != ActionNone {
		t.Errorf("zero-volume breakout produced %s, want none", sig.Action)
	}
}

func TestEvaluateBeforeWarmupIsNone(t *testing.T) {
	n := 61
	s := buildSeries(flatCloses(n, 100), flatVolumes(n, 1000))
	b := NewBreakout(DefaultConfig())
	f := NewFrame(s, b.Config())

	sig := b.Evaluate(f, b.WarmupBars()-1, nil)
	require.Equal(t, ActionNone, sig.Action)
}

func TestExitPriorityOrder(t *testing.T) {
	n := 61
	closes := flatCloses(n, 100)
	b := NewBreakout(DefaultConfig())

	cases := []struct {
		name      string
		lastClose float64
		pos       Position
		want      ExitTrigger
	}{
		{
			name:      "stop loss fires first",
			lastClose: 94,
			pos:       Position{EntryPrice: 100, EntryIndex: n - 3, StopLoss: 95, TakeProfit: 110},
			want:      ExitStopLoss,
		},
		{
			name:      "fakeout inside three bars",
			lastClose: 97.5, // below 98 but above the 90 stop
			pos:       Position{EntryPrice: 100, EntryIndex: n - 3, StopLoss: 90, TakeProfit: 110},
			want:      ExitFakeout,
		},
		{
			name:      "take profit",
			lastClose: 111,
			pos:       Position{EntryPrice: 100, EntryIndex: n - 10, StopLoss: 90, TakeProfit: 110},
			want:      ExitTakeProfit,
		},
		{
			name:      "timeout without progress",
			lastClose: 100.5,
			pos:       Position{EntryPrice: 100, EntryIndex: n - 31, StopLoss: 90, TakeProfit: 200},
			want:      ExitTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := append([]float64(nil), closes...)
			cs[n-1] = tc.lastClose
			f := NewFrame(buildSeries(cs, flatVolumes(n, 1000)), b.Config())

			sig := b.Evaluate(f, n-1, &tc.pos)
			require.Equal(t, ActionSell, sig.Action)
			require.Equal(t, tc.want, sig.Exit)
		})
	}
}

func TestFakeoutWindowCloses(t *testing.T) {
	n := 61
	closes := flatCloses(n, 100)
	closes[n-1] = 97.5
	b := NewBreakout(DefaultConfig())
	f := NewFrame(buildSeries(closes, flatVolumes(n, 1000)), b.Config())

	// Four bars after entry the fakeout rule no longer applies.
	pos := &Position{EntryPrice: 100, EntryIndex: n - 5, StopLoss: 90, TakeProfit: 110}
	sig := b.Evaluate(f, n-1, pos)
	if sig.Exit == ExitFakeout {
		t.Error("fakeout fired outside its 3-bar window")
	}
}

func TestTrendWeakeningExit(t *testing.T) {
	b := NewBreakout(DefaultConfig())
	n := 61
	s := buildSeries(flatCloses(n, 100), flatVolumes(n, 1000))
	f := NewFrame(s, b.Config())

	// Hand-set the ADX column so the rule's thresholds are exact.
	adx := make([]float64, n)
	for i := range adx {
		adx[i] = 30
	}
	adx[n-1] = 18 // 40% drop from entry and below 20
	f.ADX = adx

	pos := &Position{EntryPrice: 100, EntryIndex: n - 10, StopLoss: 50, TakeProfit: 500}
	sig := b.Evaluate(f, n-1, pos)
	require.Equal(t, ActionSell, sig.Action)
	require.Equal(t, ExitTrendWeakening, sig.Exit)

	// A drop to 22 stays above the absolute floor and must hold.
	f.ADX[n-1] = 22
	sig = b.Evaluate(f, n-1, pos)
	require.Equal(t, ActionNone, sig.Action)
}

func TestPositionSize(t *testing.T) {
	b := NewBreakout(DefaultConfig())
	equity := 1_000_000.0

	// 3% stop distance: 2% risk / 3% = 66.7% notional, clamped to max 20%.
	got := b.PositionSize(equity, 100, 97)
	require.InDelta(t, 200_000, got, 1e-6)

	// 10% stop distance clamps price risk to 5%: 2%/5% = 40%, still clamped.
	got = b.PositionSize(equity, 100, 90)
	require.InDelta(t, 200_000, got, 1e-6)

	// Missing stop falls back to 10% of equity.
	got = b.PositionSize(equity, 100, 0)
	require.InDelta(t, 100_000, got, 1e-6)

	// Stop above entry is degenerate, same fallback.
	got = b.PositionSize(equity, 100, 105)
	require.InDelta(t, 100_000, got, 1e-6)

	require.Zero(t, b.PositionSize(0, 100, 97))
}

func testBook() *market.Orderbook {
	return &market.Orderbook{
		Ticker: "KRW-BTC",
		Asks: []market.OrderbookLevel{
			{Price: 100, Volume: 10},
			{Price: 101, Volume: 10},
			{Price: 102, Volume: 10},
		},
		Bids: []market.OrderbookLevel{
			{Price: 99, Volume: 10},
			{Price: 98, Volume: 10},
		},
	}
}

func TestWalkBuy(t *testing.T) {
	// 1500 quote: 10 units at 100, remaining 500 at 101.
	fill, err := WalkBuy(testBook(), 1500)
	require.NoError(t, err)
	require.InDelta(t, 10+500.0/101, fill.BaseAmount, 1e-9)
	require.Greater(t, fill.AvgPrice, 100.0)
	require.Greater(t, fill.SlippagePct, 0.0)

	_, err = WalkBuy(testBook(), 1e9)
	require.ErrorIs(t, err, ErrInsufficientDepth)
}

func TestSplitChunksClamped(t *testing.T) {
	ob := testBook() // top-5 average ask volume = 10
	if n := SplitChunks(ob, 5); n != 2 {
		t.Errorf("small order chunks = %d, want 2", n)
	}
	if n := SplitChunks(ob, 25); n != 3 {
		t.Errorf("chunks = %d, want 3", n)
	}
	if n := SplitChunks(ob, 10_000); n != 10 {
		t.Errorf("huge order chunks = %d, want 10", n)
	}
}

func TestSplitNeverSlipsMoreThanSingle(t *testing.T) {
	single, err := WalkBuy(testBook(), 2500)
	require.NoError(t, err)
	split, err := WalkBuySplit(testBook(), 2500)
	require.NoError(t, err)

	require.LessOrEqual(t, split.SlippagePct, single.SlippagePct)
	require.InDelta(t, single.BaseAmount, split.BaseAmount, 1e-6)
}
