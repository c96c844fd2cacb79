package backtest

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

// stubStrategy buys once at a fixed bar with fixed levels and never sells,
// so tests can isolate the engine's fill and stop mechanics.
type stubStrategy struct {
	buyAt      int
	price      float64
	stopLoss   float64
	takeProfit float64
	notional   float64
}

func (s *stubStrategy) WarmupBars() int { return 1 }

func (s *stubStrategy) Evaluate(f *strategy.Frame, i int, pos *strategy.Position) *strategy.Signal {
	if pos == nil && i == s.buyAt {
		return &strategy.Signal{
			Action:     strategy.ActionBuy,
			Ticker:     f.Ticker,
			Price:      s.price,
			StopLoss:   s.stopLoss,
			TakeProfit: s.takeProfit,
		}
	}
	return &strategy.Signal{Action: strategy.ActionNone}
}

func (s *stubStrategy) PositionSize(equity, entryPrice, stopLoss float64) float64 {
	return s.notional
}

func seriesFromBars(bars [][4]float64) *market.Series {
	// each bar is open, high, low, close
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, len(bars))
	for i, b := range bars {
		candles[i] = market.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      b[0], High: b[1], Low: b[2], Close: b[3],
			Volume: 100,
		}
	}
	return &market.Series{Ticker: "KRW-BTC", Interval: market.Interval60m, Candles: candles}
}

func stopLossBars() [][4]float64 {
	return [][4]float64{
		{50_000_000, 50_100_000, 49_900_000, 50_000_000},
		{50_000_000, 50_100_000, 49_900_000, 50_000_000}, // signal bar
		{50_000_000, 50_100_000, 49_500_000, 50_000_000}, // fill bar
		{50_000_000, 50_000_000, 47_400_000, 48_000_000}, // stop bar
		{48_000_000, 48_500_000, 47_900_000, 48_200_000},
	}
}

func TestIntrabarStopFillsAtStopPrice(t *testing.T) {
	strat := &stubStrategy{
		buyAt:      1,
		price:      50_000_000,
		stopLoss:   47_500_000,
		takeProfit: 60_000_000,
		notional:   1_000_000,
	}
	cfg := Config{
		InitialCapital:    10_000_000,
		ExecuteOnNextOpen: true,
		UseIntrabarStops:  true,
	}
	eng := NewEngine(cfg, strat, zerolog.Nop())

	res, err := eng.Run(seriesFromBars(stopLossBars()), strategy.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	require.Equal(t, "stop_loss", tr.ExitReason)
	require.InDelta(t, 47_500_000, tr.ExitPrice, 1e-3)
	require.InDelta(t, 50_000_000, tr.EntryPrice, 1e-3)
	require.Less(t, tr.Pnl, 0.0)
}

func TestNextOpenOnlyHoldsThroughIntrabarDip(t *testing.T) {
	strat := &stubStrategy{
		buyAt:      1,
		price:      50_000_000,
		stopLoss:   47_500_000,
		takeProfit: 60_000_000,
		notional:   1_000_000,
	}
	cfg := Config{
		InitialCapital:    10_000_000,
		ExecuteOnNextOpen: true,
		UseIntrabarStops:  false,
	}
	eng := NewEngine(cfg, strat, zerolog.Nop())

	res, err := eng.Run(seriesFromBars(stopLossBars()), strategy.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	// The dip closed at 48M, above the stub's none-returning exit logic,
	// so the position rides to the forced close at the final bar.
	tr := res.Trades[0]
	require.Equal(t, "backtest_end", tr.ExitReason)
	require.InDelta(t, 48_200_000, tr.ExitPrice, 1e-3)
}

func TestIntrabarTakeProfitFillsAtTarget(t *testing.T) {
	bars := [][4]float64{
		{100, 101, 99, 100},
		{100, 101, 99, 100}, // signal bar
		{100, 101, 99, 100}, // fill bar
		{100, 112, 99, 108}, // target bar
		{108, 109, 107, 108},
	}
	strat := &stubStrategy{buyAt: 1, price: 100, stopLoss: 90, takeProfit: 110, notional: 1000}
	cfg := Config{InitialCapital: 100_000, ExecuteOnNextOpen: true, UseIntrabarStops: true}
	eng := NewEngine(cfg, strat, zerolog.Nop())

	res, err := eng.Run(seriesFromBars(bars), strategy.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	require.Equal(t, "take_profit", res.Trades[0].ExitReason)
	require.InDelta(t, 110, res.Trades[0].ExitPrice, 1e-9)
	require.Greater(t, res.Trades[0].Pnl, 0.0)
}

func TestCommissionAndSlippageReducePnl(t *testing.T) {
	bars := [][4]float64{
		{100, 101, 99, 100},
		{100, 101, 99, 100},
		{100, 101, 99, 100},
		{100, 112, 99, 108},
		{108, 109, 107, 108},
	}
	strat := &stubStrategy{buyAt: 1, price: 100, stopLoss: 90, takeProfit: 110, notional: 1000}

	free := Config{InitialCapital: 100_000, ExecuteOnNextOpen: true, UseIntrabarStops: true}
	costly := free
	costly.Commission = 0.001
	costly.Slippage = 0.002

	resFree, err := NewEngine(free, strat, zerolog.Nop()).Run(seriesFromBars(bars), strategy.DefaultConfig())
	require.NoError(t, err)
	resCostly, err := NewEngine(costly, strat, zerolog.Nop()).Run(seriesFromBars(bars), strategy.DefaultConfig())
	require.NoError(t, err)

	require.Less(t, resCostly.Trades[0].Pnl, resFree.Trades[0].Pnl)
	require.Greater(t, resCostly.Trades[0].Commission, 0.0)
}

func TestRunRejectsShortSeries(t *testing.T) {
	b := strategy.NewBreakout(strategy.DefaultConfig())
	eng := NewEngine(DefaultConfig(), b, zerolog.Nop())

	short := seriesFromBars([][4]float64{{100, 101, 99, 100}})
	if _, err := eng.Run(short, strategy.DefaultConfig()); err == nil {
		t.Fatal("expected error for series shorter than warmup")
	}
}
