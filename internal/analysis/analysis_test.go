package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/market"
)

func seriesFromCloses(closes []float64) *market.Series {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		hi, lo := open, open
		if c > hi {
			hi = c
		}
		if c < lo {
			lo = c
		}
		candles[i] = market.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      open, High: hi, Low: lo, Close: c,
			Volume: 100,
		}
	}
	return &market.Series{Ticker: "KRW-SOL", Interval: market.Interval1d, Candles: candles}
}

func TestFlashCrashDetected(t *testing.T) {
	// Dead-flat tape then a sudden 10% air pocket. With near-zero ATR the
	// drop is far outside normal range.
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = 90

	fc := DetectFlashCrash(seriesFromCloses(closes), DefaultFlashCrashConfig())
	require.True(t, fc.Detected)
	require.InDelta(t, -0.10, fc.MaxDropPct, 1e-9)
	require.Greater(t, fc.AbnormalRatio, 2.0)
	require.InDelta(t, 100, fc.RecentHigh, 1e-9)
}

func TestFlashCrashIgnoresOrdinaryDip(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = 97 // -3%, above the -5% threshold

	fc := DetectFlashCrash(seriesFromCloses(closes), DefaultFlashCrashConfig())
	require.False(t, fc.Detected)
}

func TestFlashCrashShortSeries(t *testing.T) {
	fc := DetectFlashCrash(seriesFromCloses([]float64{100, 99}), DefaultFlashCrashConfig())
	require.False(t, fc.Detected)
}

func TestBearishDivergence(t *testing.T) {
	// Strong first rally to 120, shallow pullback, then a grinding higher
	// high at 121 on weak momentum. Price peaks rise while RSI peaks fall.
	closes := make([]float64, 0, 36)
	for i := 0; i < 15; i++ { // choppy base keeps RSI off its rails
		base := 100.0
		if i%2 == 0 {
			base += 0.5
		} else {
			base -= 0.5
		}
		closes = append(closes, base)
	}
	for _, c := range []float64{104, 108, 112, 116, 119, 120} { // sharp rally, peak
		closes = append(closes, c)
	}
	for _, c := range []float64{118, 116.5, 115} { // pullback
		closes = append(closes, c)
	}
	for _, c := range []float64{115.8, 116.5, 117.3, 118, 119, 120, 120.5, 121} { // weak climb
		closes = append(closes, c)
	}
	for _, c := range []float64{120, 119.2, 118.5} { // roll over
		closes = append(closes, c)
	}

	div := DetectDivergence(seriesFromCloses(closes))
	require.Equal(t, DivergenceBearish, div.Type)
	require.Contains(t, []string{"high", "medium"}, div.Confidence)
}

func TestNoDivergenceOnTrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	div := DetectDivergence(seriesFromCloses(closes))
	require.Equal(t, DivergenceNone, div.Type)
}

func TestComputeCorrelation(t *testing.T) {
	// The ticker moves at twice the reference's daily return.
	n := 32
	ref := make([]float64, n)
	tick := make([]float64, n)
	ref[0], tick[0] = 100, 100
	for i := 1; i < n; i++ {
		r := 0.01
		if i%2 == 0 {
			r = -0.01
		}
		ref[i] = ref[i-1] * (1 + r)
		tick[i] = tick[i-1] * (1 + 2*r)
	}

	corr, ok := ComputeCorrelation(seriesFromCloses(tick), seriesFromCloses(ref))
	require.True(t, ok)
	require.InDelta(t, 2.0, corr.Beta, 0.05)
	require.Greater(t, corr.Pearson, 0.99)
	require.Equal(t, RiskLow, corr.MarketRisk)
}

func TestCorrelationNeedsOverlap(t *testing.T) {
	_, ok := ComputeCorrelation(seriesFromCloses([]float64{100, 101}), seriesFromCloses([]float64{100, 101}))
	require.False(t, ok)
}
