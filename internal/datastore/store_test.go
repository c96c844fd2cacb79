package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/market"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir(), 2, zerolog.Nop())
	require.NoError(t, err)
	return st
}

func hourlySeries(start time.Time, closes []float64) *market.Series {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c + 1, Low: c - 1, Close: c,
			Volume: 10,
		}
	}
	return &market.Series{Ticker: "KRW-BTC", Interval: market.Interval60m, Candles: candles}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := testStore(t)
	start := time.Now().UTC().Truncate(time.Hour).Add(-10 * time.Hour)
	s := hourlySeries(start, []float64{100, 101, 102, 103})

	require.NoError(t, st.Save(s))

	loaded, err := st.Load("KRW-BTC", market.Interval60m)
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Len())
	require.InDelta(t, 103, loaded.Candles[3].Close, 1e-9)
	require.True(t, loaded.Candles[0].Timestamp.Equal(s.Candles[0].Timestamp))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	st := testStore(t)
	s, err := st.Load("KRW-NOPE", market.Interval1d)
	require.NoError(t, err)
	require.Zero(t, s.Len())
}

func TestSavePurgesOldRows(t *testing.T) {
	st := testStore(t) // maxYears = 2
	old := time.Now().UTC().AddDate(-3, 0, 0)
	recent := time.Now().UTC().Add(-time.Hour)

	s := &market.Series{Ticker: "KRW-BTC", Interval: market.Interval1d, Candles: []market.Candle{
		{Timestamp: old, Open: 50, High: 51, Low: 49, Close: 50, Volume: 1},
		{Timestamp: recent, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1},
	}}
	require.NoError(t, st.Save(s))

	loaded, err := st.Load("KRW-BTC", market.Interval1d)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	require.InDelta(t, 100, loaded.Candles[0].Close, 1e-9)
}

func TestSyncFetchesOnlyMissingTail(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Hour)

	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(1_000_000), 0)
	full := hourlySeries(now.Add(-40*time.Hour), make([]float64, 40))
	for i := range full.Candles {
		full.Candles[i].Open = 100 + float64(i)
		full.Candles[i].High = 101 + float64(i)
		full.Candles[i].Low = 99 + float64(i)
		full.Candles[i].Close = 100 + float64(i)
	}
	paper.LoadSeries(full)

	// Seed the cache with the first 30 candles.
	seed := &market.Series{Ticker: "KRW-BTC", Interval: market.Interval60m, Candles: full.Candles[:30]}
	require.NoError(t, st.Save(seed))

	merged, err := st.Sync(ctx, paper, "KRW-BTC", market.Interval60m, 40*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 40, merged.Len())

	// Idempotent on a warm cache within the same hour.
	again, err := st.Sync(ctx, paper, "KRW-BTC", market.Interval60m, 40*time.Hour)
	require.NoError(t, err)
	require.Equal(t, merged.Len(), again.Len())
}

func TestSyncServesStaleCacheOnFetchError(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-5 * time.Hour).Truncate(time.Hour)
	require.NoError(t, st.Save(hourlySeries(start, []float64{100, 101, 102})))

	// Paper client with no data errors on fetch.
	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(0), 0)
	s, err := st.Sync(ctx, paper, "KRW-BTC", market.Interval60m, 10*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
}

func TestMergeDeduplicates(t *testing.T) {
	start := time.Now().UTC().Truncate(time.Hour)
	a := hourlySeries(start, []float64{100, 101, 102})
	b := hourlySeries(start.Add(2*time.Hour), []float64{200, 201})

	m := merge(a, b)
	require.Equal(t, 4, m.Len())
	// Overlapping timestamp takes the fresher row.
	require.InDelta(t, 200, m.Candles[2].Close, 1e-9)
	require.InDelta(t, 201, m.Candles[3].Close, 1e-9)
}
