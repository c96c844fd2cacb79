package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

func testScanner(t *testing.T, client exchange.Client, cfg Config) *Scanner {
	t.Helper()
	store, err := datastore.NewStore(t.TempDir(), 2, zerolog.Nop())
	require.NoError(t, err)
	return New(client, store, nil, cfg, backtest.DefaultConfig(), strategy.DefaultConfig(),
		backtest.DefaultFilterConfig(), zerolog.Nop())
}

func summaries() []exchange.CoinInfo {
	return []exchange.CoinInfo{
		{Ticker: "KRW-BTC", Symbol: "BTC", Volume24h: 900e9},
		{Ticker: "KRW-ETH", Symbol: "ETH", Volume24h: 500e9},
		{Ticker: "KRW-SOL", Symbol: "SOL", Volume24h: 300e9},
		{Ticker: "KRW-USDT", Symbol: "USDT", Volume24h: 800e9},   // stablecoin
		{Ticker: "KRW-ETHUP", Symbol: "ETHUP", Volume24h: 400e9}, // leverage token
		{Ticker: "KRW-TINY", Symbol: "TINY", Volume24h: 5e8},     // under min volume
		{Ticker: "KRW-DOGE", Symbol: "DOGE", Volume24h: 200e9},
	}
}

func TestScanLiquidity(t *testing.T) {
	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(0), 0)
	paper.LoadSummaries(summaries())

	cfg := DefaultConfig()
	cfg.LiquidityTopN = 3
	sc := testScanner(t, paper, cfg)

	got, err := sc.scanLiquidity(context.Background(), map[string]bool{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "KRW-BTC", got[0].Ticker) // volume descending
	require.Equal(t, "KRW-ETH", got[1].Ticker)
	require.Equal(t, "KRW-SOL", got[2].Ticker)
}

func TestScanLiquidityEnrichesVolatility(t *testing.T) {
	paper := exchange.NewPaperClient("KRW", decimal.Zero, 0)
	paper.LoadSummaries(summaries())

	// Eight daily bars with a range of 2 around a close of 100 work out to
	// a 2% average true range.
	start := time.Now().UTC().AddDate(0, 0, -8).Truncate(24 * time.Hour)
	daily := &market.Series{Ticker: "KRW-BTC", Interval: market.Interval1d}
	for i := 0; i < 8; i++ {
		daily.Candles = append(daily.Candles, market.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		})
	}
	paper.LoadSeries(daily)

	cfg := DefaultConfig()
	cfg.LiquidityTopN = 3
	sc := testScanner(t, paper, cfg)

	got, err := sc.scanLiquidity(context.Background(), map[string]bool{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	byTicker := map[string]*Candidate{}
	for _, c := range got {
		byTicker[c.Ticker] = c
	}
	require.InDelta(t, 2.0, byTicker["KRW-BTC"].Coin.Volatility7d, 1e-9)
	// No daily history: the field stays zero and the candidate survives.
	require.Zero(t, byTicker["KRW-ETH"].Coin.Volatility7d)
}

func TestScanLiquidityExcludesHeld(t *testing.T) {
	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(0), 0)
	paper.LoadSummaries(summaries())
	sc := testScanner(t, paper, DefaultConfig())

	got, err := sc.scanLiquidity(context.Background(), map[string]bool{"KRW-BTC": true})
	require.NoError(t, err)
	for _, c := range got {
		require.NotEqual(t, "KRW-BTC", c.Ticker)
	}
}

func TestLeverageAndStablecoinFilters(t *testing.T) {
	require.True(t, isStablecoin("usdt"))
	require.False(t, isStablecoin("BTC"))
	require.True(t, isLeverageToken("ETHUP"))
	require.True(t, isLeverageToken("BTC3L"))
	require.False(t, isLeverageToken("UP")) // bare suffix is not a token name
	require.False(t, isLeverageToken("SOL"))
}

func TestDiversifySectors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OnePerSector = true
	sc := testScanner(t, exchange.NewPaperClient("KRW", decimal.Zero, 0), cfg)

	in := []*Candidate{
		{Ticker: "KRW-ETH", Sector: "layer-1"},
		{Ticker: "KRW-SOL", Sector: "layer-1"}, // duplicate sector, lower volume rank
		{Ticker: "KRW-DOGE", Sector: "meme"},
		{Ticker: "KRW-ABC", Sector: "unknown"},
	}
	out := sc.diversifySectors(in)
	require.Len(t, out, 3)
	require.Equal(t, "KRW-ETH", out[0].Ticker)
	require.Equal(t, "KRW-DOGE", out[1].Ticker)
	require.Equal(t, "KRW-ABC", out[2].Ticker) // unknown kept by default

	sc.cfg.DropUnknownSector = true
	out = sc.diversifySectors(in)
	require.Len(t, out, 2)
}

func TestScoreMetricsBounds(t *testing.T) {
	perfect := backtest.Metrics{
		TotalReturnPct: 60, WinRatePct: 100, ProfitFactor: 5,
		SharpeRatio: 3, MaxDrawdownPct: 0, SortinoRatio: 4,
	}
	require.InDelta(t, 100, scoreMetrics(perfect), 0.1)

	hopeless := backtest.Metrics{
		TotalReturnPct: -20, WinRatePct: 0, ProfitFactor: 0.5,
		SharpeRatio: -1, MaxDrawdownPct: 80, SortinoRatio: -1,
	}
	require.InDelta(t, 0, scoreMetrics(hopeless), 0.1)

	mid := backtest.Metrics{
		TotalReturnPct: 25, WinRatePct: 50, ProfitFactor: 2,
		SharpeRatio: 1, MaxDrawdownPct: 25, SortinoRatio: 1.5,
	}
	score := scoreMetrics(mid)
	require.Greater(t, score, 40.0)
	require.Less(t, score, 60.0)
}

func passingBacktest(score float64) *BacktestScore {
	grade := GradeWeakPass
	if score >= 70 {
		grade = GradeStrongPass
	}
	return &BacktestScore{Score: score, Passed: true, Grade: grade, Reason: "trading pass"}
}

func TestSelectFinalKeepsTopN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FinalSelectN = 2
	sc := testScanner(t, exchange.NewPaperClient("KRW", decimal.Zero, 0), cfg)

	candidates := []*Candidate{
		{Ticker: "A", Backtest: passingBacktest(90)},
		{Ticker: "B", Backtest: passingBacktest(80)},
		{Ticker: "C", Backtest: passingBacktest(75)},
		{Ticker: "D", Backtest: &BacktestScore{Score: 95, Passed: false, Grade: GradeFail, Reason: "fail"}},
	}
	sc.selectFinal(candidates)

	var selected []string
	for _, c := range candidates {
		if c.Selected {
			selected = append(selected, c.Ticker)
		}
	}
	require.Equal(t, []string{"A", "B"}, selected)

	// Failed backtest never selects regardless of score.
	for _, c := range candidates {
		if c.Ticker == "D" {
			require.False(t, c.Selected)
			require.Equal(t, FinalFail, c.FinalGrade)
		}
	}
}

func TestSelectFinalAIVeto(t *testing.T) {
	sc := testScanner(t, exchange.NewPaperClient("KRW", decimal.Zero, 0), DefaultConfig())
	candidates := []*Candidate{
		{Ticker: "A", Backtest: passingBacktest(90), AIDecision: "hold", AIConfidence: 0.9, AIScore: 90},
	}
	sc.selectFinal(candidates)
	require.False(t, candidates[0].Selected)
	require.Equal(t, FinalHold, candidates[0].FinalGrade)
	require.Contains(t, candidates[0].SelectionReason, "ai veto")
}

func TestSelectFinalGradeDefaultsWithoutAI(t *testing.T) {
	sc := testScanner(t, exchange.NewPaperClient("KRW", decimal.Zero, 0), DefaultConfig())
	candidates := []*Candidate{
		{Ticker: "A", Backtest: passingBacktest(90)},
	}
	sc.selectFinal(candidates)
	// 0.6*90 + 0.4*70 (STRONG PASS default) = 82.
	require.InDelta(t, 82, candidates[0].FinalScore, 1e-9)
	require.True(t, candidates[0].Selected)
	require.Equal(t, FinalStrongBuy, candidates[0].FinalGrade)
}

func TestSelectionOrderingStable(t *testing.T) {
	sc := testScanner(t, exchange.NewPaperClient("KRW", decimal.Zero, 0), DefaultConfig())
	build := func() []*Candidate {
		return []*Candidate{
			{Ticker: "A", Backtest: passingBacktest(70)},
			{Ticker: "B", Backtest: passingBacktest(90)},
			{Ticker: "C", Backtest: passingBacktest(80)},
		}
	}
	first := build()
	second := build()
	sc.selectFinal(first)
	sc.selectFinal(second)
	for i := range first {
		require.Equal(t, first[i].Ticker, second[i].Ticker)
	}
	require.Equal(t, "B", first[0].Ticker)
}

func TestScanEndToEnd(t *testing.T) {
	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(1_000_000), 0)
	paper.LoadSummaries(summaries())

	// Give the liquid coins enough flat history to sync and backtest.
	start := time.Now().UTC().Add(-200 * time.Hour).Truncate(time.Hour)
	for _, ticker := range []string{"KRW-BTC", "KRW-ETH", "KRW-SOL", "KRW-DOGE"} {
		candles := make([]market.Candle, 200)
		for i := range candles {
			price := 100.0
			if i%2 == 0 {
				price += 0.3
			}
			candles[i] = market.Candle{
				Timestamp: start.Add(time.Duration(i) * time.Hour),
				Open:      price, High: price + 0.5, Low: price - 0.5, Close: price,
				Volume: 1000,
			}
		}
		paper.LoadSeries(&market.Series{Ticker: ticker, Interval: market.Interval60m, Candles: candles})
	}

	cfg := DefaultConfig()
	cfg.EnableSectorDiversification = false
	sc := testScanner(t, paper, cfg)

	res, err := sc.Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 4, res.LiquidityScanned)
	require.NotZero(t, res.Duration)

	// A flat tape produces no tradeable edge, nothing selects.
	require.Empty(t, res.Selected)
	for _, c := range res.Candidates {
		require.NotNil(t, c.Backtest)
		require.Equal(t, GradeFail, c.Backtest.Grade)
	}
}
