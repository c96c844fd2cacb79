package scanner

import (
	"context"
	"math"
	"sync"

	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/strategy"
)

// Metric weights for the composite backtest score, summing to 1.0. Sharpe
// carries the most weight.
const (
	weightReturn  = 0.19
	weightWinRate = 0.14
	weightPF      = 0.14
	weightSharpe  = 0.24
	weightDD      = 0.15
	weightSortino = 0.14
)

// runBacktests is phase 4: backtest every synced candidate on a bounded
// worker pool, score the metrics, grade, and attach the verdict. Metrics
// are cached per (ticker, config hash) so a config never runs twice.
func (s *Scanner) runBacktests(ctx context.Context, candidates []*Candidate) {
	cache := backtest.NewMetricsCache()
	hash := backtest.ConfigHash(s.btCfg, s.stratCfg, s.cfg.Interval)

	jobs := make(chan *Candidate)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				s.backtestOne(c, cache, hash)
			}
		}()
	}

	for _, c := range candidates {
		select {
		case jobs <- c:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Scanner) backtestOne(c *Candidate, cache *backtest.MetricsCache, hash string) {
	strat := strategy.NewBreakout(s.stratCfg)
	eng := backtest.NewEngine(s.btCfg, strat, s.logger)

	res, err := cache.GetOrCompute(c.Ticker, hash, func() (*backtest.Result, error) {
		return eng.Run(c.Series, s.stratCfg)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", c.Ticker).Msg("backtest failed")
		c.Backtest = &BacktestScore{Ticker: c.Ticker, Grade: GradeFail, Reason: err.Error(), ConfigHash: hash}
		return
	}

	filter := s.filter.Evaluate(res.Metrics)
	score := scoreMetrics(res.Metrics)
	passed := filter.Tradeable()

	grade := GradeFail
	switch {
	case passed && score >= 70:
		grade = GradeStrongPass
	case passed:
		grade = GradeWeakPass
	}

	c.Backtest = &BacktestScore{
		Ticker:     c.Ticker,
		Metrics:    res.Metrics,
		Filter:     filter,
		Score:      score,
		Grade:      grade,
		Passed:     passed,
		Reason:     filter.Reason,
		ConfigHash: hash,
	}
}

// scoreMetrics maps the metrics bundle onto 0..100 via normalised weighted
// sum. Each metric is clamped into a sensible band before weighting.
func scoreMetrics(m backtest.Metrics) float64 {
	score := weightReturn*norm(m.TotalReturnPct, 0, 50) +
		weightWinRate*norm(m.WinRatePct, 0, 100) +
		weightPF*norm(m.ProfitFactor, 1, 3) +
		weightSharpe*norm(m.SharpeRatio, 0, 2) +
		weightDD*(1-norm(m.MaxDrawdownPct, 0, 50)) +
		weightSortino*norm(m.SortinoRatio, 0, 3)
	return math.Round(score*1000) / 10
}

// norm clamps x into [lo, hi] and rescales to 0..1
func norm(x, lo, hi float64) float64 {
	if math.IsInf(x, 1) {
		return 1
	}
	if math.IsNaN(x) || x <= lo {
		return 0
	}
	if x >= hi {
		return 1
	}
	return (x - lo) / (hi - lo)
}
