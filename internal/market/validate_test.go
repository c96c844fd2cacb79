package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func hourlySeries(candles ...Candle) *Series {
	return &Series{Ticker: "KRW-BTC", Interval: Interval60m, Candles: candles}
}

func candleAt(ts time.Time, o, h, l, c, v float64) Candle {
	return Candle{Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestValidateEmptySeries(t *testing.T) {
	issues := Validate(hourlySeries())

	require.Len(t, issues, 1)
	require.Equal(t, IssueEmpty, issues[0].Kind)
	require.True(t, Uncorrectable(issues))
}

func TestValidateSwapsInvertedHighLow(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := hourlySeries(candleAt(ts, 100, 95, 105, 100, 1))

	issues := Validate(s)

	require.Len(t, issues, 1)
	require.Equal(t, IssueInvertedHighLow, issues[0].Kind)
	require.True(t, issues[0].Corrected)
	require.Equal(t, 105.0, s.Candles[0].High)
	require.Equal(t, 95.0, s.Candles[0].Low)
	require.False(t, Uncorrectable(issues))

	// A second pass over repaired data finds nothing.
	require.Empty(t, Validate(s))
}

func TestValidateZeroesNegativeVolume(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := hourlySeries(candleAt(ts, 100, 105, 95, 100, -3))

	issues := Validate(s)

	require.Len(t, issues, 1)
	require.Equal(t, IssueNegativeVolume, issues[0].Kind)
	require.Equal(t, 0.0, s.Candles[0].Volume)
}

func TestValidateClampsOpenCloseIntoRange(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := hourlySeries(candleAt(ts, 120, 105, 95, 90, 1))

	issues := Validate(s)

	require.Len(t, issues, 1)
	require.Equal(t, IssueBadRange, issues[0].Kind)
	require.Equal(t, 105.0, s.Candles[0].Open)
	require.Equal(t, 95.0, s.Candles[0].Close)
}

func TestValidateSortsAndDeduplicates(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := hourlySeries(
		candleAt(base.Add(2*time.Hour), 102, 103, 101, 102, 1),
		candleAt(base, 100, 101, 99, 100, 1),
		candleAt(base, 100, 101, 99, 100.5, 1), // duplicate timestamp, kept
		candleAt(base.Add(time.Hour), 101, 102, 100, 101, 1),
	)

	issues := Validate(s)

	kinds := make([]IssueKind, len(issues))
	for i, is := range issues {
		kinds[i] = is.Kind
	}
	require.Contains(t, kinds, IssueOutOfOrder)
	require.Contains(t, kinds, IssueDuplicate)

	require.Len(t, s.Candles, 3)
	require.Equal(t, 100.5, s.Candles[0].Close)
	for i := 1; i < len(s.Candles); i++ {
		require.True(t, s.Candles[i-1].Timestamp.Before(s.Candles[i].Timestamp))
	}
	require.False(t, Uncorrectable(issues))
}

func TestValidateFlagsLargeGap(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := hourlySeries(
		candleAt(base, 100, 101, 99, 100, 1),
		candleAt(base.Add(5*time.Hour), 100, 101, 99, 100, 1),
	)

	issues := Validate(s)

	require.Len(t, issues, 1)
	require.Equal(t, IssueLargeGap, issues[0].Kind)
	require.False(t, issues[0].Corrected)
	// Gaps alone never disqualify a series.
	require.False(t, Uncorrectable(issues))
}
