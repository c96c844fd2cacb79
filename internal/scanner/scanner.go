package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/strategy"
)

// Scanner runs the five-phase multi-coin scan: liquidity, sector
// diversification, data sync, parallel backtest, final selection.
type Scanner struct {
	client   exchange.Client
	store    *datastore.Store
	reviewer *ai.Reviewer // nil when AI is disabled
	cfg      Config
	btCfg    backtest.Config
	stratCfg strategy.Config
	filter   backtest.FilterConfig
	logger   zerolog.Logger
}

// New creates a scanner; reviewer may be nil to score without AI
func New(client exchange.Client, store *datastore.Store, reviewer *ai.Reviewer,
	cfg Config, btCfg backtest.Config, stratCfg strategy.Config, filter backtest.FilterConfig,
	logger zerolog.Logger) *Scanner {
	return &Scanner{
		client:   client,
		store:    store,
		reviewer: reviewer,
		cfg:      cfg,
		btCfg:    btCfg,
		stratCfg: stratCfg,
		filter:   filter,
		logger:   logger.With().Str("component", "scanner").Logger(),
	}
}

// Scan runs all phases and returns ranked selections. Tickers in exclude
// (typically currently held coins) never surface.
func (s *Scanner) Scan(ctx context.Context, exclude []string) (*Result, error) {
	start := time.Now()
	res := &Result{ScanTime: start.UTC()}

	excluded := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		excluded[t] = true
	}

	candidates, err := s.scanLiquidity(ctx, excluded)
	if err != nil {
		return nil, err
	}
	res.LiquidityScanned = len(candidates)
	s.logger.Info().Int("candidates", len(candidates)).Msg("liquidity scan complete")

	candidates = s.diversifySectors(candidates)
	candidates = s.syncData(ctx, candidates)

	s.runBacktests(ctx, candidates)
	for _, c := range candidates {
		if c.Backtest != nil && c.Backtest.Passed {
			res.BacktestPassed++
		}
	}

	res.AIAnalyzed = s.reviewCandidates(ctx, candidates)
	s.selectFinal(candidates)

	res.Candidates = candidates
	for _, c := range candidates {
		if c.Selected {
			res.Selected = append(res.Selected, c)
		}
	}
	res.Duration = time.Since(start)
	s.logger.Info().
		Int("scanned", res.LiquidityScanned).
		Int("passed", res.BacktestPassed).
		Int("selected", len(res.Selected)).
		Dur("duration", res.Duration).
		Msg("scan complete")
	return res, nil
}

// syncData is phase 3: bring local history up to date for each candidate
// under a bounded semaphore. Sync failures drop the candidate, never the
// scan.
func (s *Scanner) syncData(ctx context.Context, candidates []*Candidate) []*Candidate {
	bulkCtx, cancel := context.WithTimeout(ctx, s.cfg.BulkSyncTimeout)
	defer cancel()

	sem := make(chan struct{}, s.cfg.SyncConcurrency)
	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(c *Candidate) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-bulkCtx.Done():
				return
			}

			tickerCtx, cancel := context.WithTimeout(bulkCtx, s.cfg.SyncTimeout)
			defer cancel()
			series, err := s.store.Sync(tickerCtx, s.client, c.Ticker, s.cfg.Interval, s.cfg.SyncWindow)
			if err != nil {
				s.logger.Warn().Err(err).Str("ticker", c.Ticker).Msg("data sync failed, dropping candidate")
				return
			}
			c.Series = series
		}(c)
	}
	wg.Wait()

	out := candidates[:0]
	for _, c := range candidates {
		if c.Series != nil && c.Series.Len() > 0 {
			out = append(out, c)
		}
	}
	return out
}

// reviewCandidates asks the AI for a verdict on the best backtest passes
func (s *Scanner) reviewCandidates(ctx context.Context, candidates []*Candidate) int {
	if s.reviewer == nil || !s.cfg.EnableAI {
		return 0
	}

	reviewed := 0
	for _, c := range candidates {
		if c.Backtest == nil || !c.Backtest.Passed || reviewed >= s.cfg.AITopN {
			continue
		}
		req := &ai.ReviewRequest{
			Ticker:       c.Ticker,
			CurrentPrice: c.Coin.Price,
			Backtest:     &c.Backtest.Metrics,
			Filter:       &c.Backtest.Filter,
		}
		rev, err := s.reviewer.Review(ctx, req)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", c.Ticker).Msg("ai review failed, using grade default")
			continue
		}
		c.AIDecision = string(rev.Decision)
		c.AIConfidence = rev.Confidence
		c.AIScore = rev.Confidence * 100
		reviewed++
	}
	return reviewed
}
