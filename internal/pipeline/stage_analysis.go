package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/analysis"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

// AnalysisStage runs the detectors, the quick backtest quality gate, the
// rule strategy, and the AI review, then fixes the tick's decision.
type AnalysisStage struct {
	BaseStage
	store    *datastore.Store // nil skips the quality gate
	reviewer *ai.Reviewer     // nil falls back to the rule decision
	cache    *backtest.MetricsCache
	btCfg    backtest.Config
	stratCfg strategy.Config
	filter   backtest.FilterConfig
	logger   zerolog.Logger
}

// NewAnalysisStage wires the analysis stage
func NewAnalysisStage(store *datastore.Store, reviewer *ai.Reviewer, cache *backtest.MetricsCache,
	btCfg backtest.Config, stratCfg strategy.Config, filter backtest.FilterConfig, logger zerolog.Logger) *AnalysisStage {
	if cache == nil {
		cache = backtest.NewMetricsCache()
	}
	stratCfg.Normalize()
	return &AnalysisStage{
		store:    store,
		reviewer: reviewer,
		cache:    cache,
		btCfg:    btCfg,
		stratCfg: stratCfg,
		filter:   filter,
		logger:   logger.With().Str("stage", "analysis").Logger(),
	}
}

func (s *AnalysisStage) Name() string { return "analysis" }

func (s *AnalysisStage) PreExecute(ctx *Context) bool {
	return len(ctx.Tick.Charts) > 0
}

func (s *AnalysisStage) Execute(ctx *Context) *StageResult {
	tick := ctx.Tick

	s.runDetectors(tick)

	entering := tick.Position == nil
	if entering {
		if res := s.qualityGate(tick); res != nil {
			return res
		}
		tick.EntrySignal = s.entrySignal(tick)
	}

	review := s.review(ctx)
	tick.Review = review

	tick.Decision = s.decide(tick, review, entering)
	return Continue(fmt.Sprintf("decision %s for %s", tick.Decision, tick.Ticker))
}

// runDetectors fills the correlation, flash-crash, and divergence slots.
// Each degrades independently; insufficient history just leaves nil.
func (s *AnalysisStage) runDetectors(tick *TickContext) {
	daily := tick.Charts[market.Interval1d]
	if daily != nil && tick.ReferenceDay != nil {
		if corr, ok := analysis.ComputeCorrelation(daily, tick.ReferenceDay); ok {
			tick.Correlation = &corr
		}
	}

	if fast := tick.Charts[market.Interval15m]; fast != nil {
		crash := analysis.DetectFlashCrash(fast, analysis.DefaultFlashCrashConfig())
		tick.FlashCrash = &crash
	}

	if hourly := tick.Charts[market.Interval60m]; hourly != nil {
		div := analysis.DetectDivergence(hourly)
		tick.Divergence = &div
	}
}

// qualityGate replays the strategy over cached history and applies the
// two-tier filter. Coins failing even the research tier never reach the
// AI. A non-nil result terminates the tick.
func (s *AnalysisStage) qualityGate(tick *TickContext) *StageResult {
	if s.store == nil {
		return nil
	}
	series, err := s.store.Load(tick.Ticker, market.Interval60m)
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", tick.Ticker).Msg("history unavailable, gate skipped")
		return nil
	}
	strat := strategy.NewBreakout(s.stratCfg)
	if series.Len() <= strat.WarmupBars() {
		s.logger.Debug().Str("ticker", tick.Ticker).Int("bars", series.Len()).Msg("too little history for gate")
		return nil
	}

	// Key on the latest closed bar as well as the config: a fresh candle in
	// the archive must invalidate yesterday's metrics.
	last, _ := series.Last()
	hash := backtest.ConfigHash(s.btCfg, s.stratCfg, market.Interval60m)
	dataKey := fmt.Sprintf("%s@%d", hash, last.Timestamp.Unix())
	if _, ok := s.cache.Get(tick.Ticker, dataKey); !ok {
		s.cache.Drop(tick.Ticker)
	}
	result, err := s.cache.GetOrCompute(tick.Ticker, dataKey, func() (*backtest.Result, error) {
		engine := backtest.NewEngine(s.btCfg, strat, s.logger)
		return engine.Run(series, s.stratCfg)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", tick.Ticker).Msg("quality backtest failed, gate skipped")
		return nil
	}

	tick.Backtest = &result.Metrics
	fr := s.filter.Evaluate(result.Metrics)
	tick.Filter = &fr
	if !fr.Researchable() {
		return Skip(fmt.Sprintf("quality gate: %s not researchable (%s)", tick.Ticker, fr.Reason))
	}
	return nil
}

// entrySignal evaluates the breakout rules at the latest closed hourly bar
func (s *AnalysisStage) entrySignal(tick *TickContext) *strategy.Signal {
	hourly := tick.Charts[market.Interval60m]
	if hourly == nil || hourly.Len() == 0 {
		return nil
	}
	frame := strategy.NewFrame(hourly, s.stratCfg)
	strat := strategy.NewBreakout(s.stratCfg)
	return strat.Evaluate(frame, hourly.Len()-1, nil)
}

// review asks the model for a verdict; failures degrade to the rule path
func (s *AnalysisStage) review(ctx *Context) *ai.Review {
	if s.reviewer == nil {
		return nil
	}
	tick := ctx.Tick
	req := &ai.ReviewRequest{
		Ticker:       tick.Ticker,
		CurrentPrice: tick.CurrentPrice,
		Snapshot:     tick.Snapshot,
		Orderbook:    tick.BookSummary,
		FearGreed:    tick.FearGreed,
		FlashCrash:   tick.FlashCrash,
		Divergence:   tick.Divergence,
		Correlation:  tick.Correlation,
		Backtest:     tick.Backtest,
		Filter:       tick.Filter,
	}
	if p := tick.Position; p != nil {
		req.Position = &ai.PositionInfo{
			Amount:        p.Amount,
			AvgBuyPrice:   p.AvgBuyPrice,
			CurrentValue:  p.CurrentValue,
			UnrealizedPnl: p.UnrealizedPnl,
			ProfitRatePct: p.ProfitRate * 100,
		}
	}
	if pf := tick.Portfolio; pf != nil {
		req.Portfolio = &ai.PortfolioInfo{
			Cash:             pf.Cash,
			TotalValue:       pf.Cash + pf.CurrentValue,
			PositionCount:    pf.PositionCount,
			MaxPositions:     pf.MaxPositions,
			AvailableCapital: pf.AvailableCapital,
		}
	}

	review, err := s.reviewer.Review(ctx.Ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", tick.Ticker).Msg("ai review failed, using rule decision")
		return nil
	}
	return review
}

// decide fixes the tick's decision. With a review the validator has already
// applied the hard overrides; without one the rule path only buys a
// trading-tier coin on a clean breakout.
func (s *AnalysisStage) decide(tick *TickContext, review *ai.Review, entering bool) ai.Decision {
	if review != nil {
		return review.Decision
	}

	if !entering {
		// Management exits were handled by the risk check; reaching here
		// with a position means every exit rule said hold.
		return ai.DecisionHold
	}
	if tick.EntrySignal == nil || tick.EntrySignal.Action != strategy.ActionBuy {
		return ai.DecisionHold
	}
	if tick.FlashCrash != nil && tick.FlashCrash.Detected {
		return ai.DecisionHold
	}
	if tick.Filter != nil && !tick.Filter.Tradeable() {
		return ai.DecisionHold
	}
	return ai.DecisionBuy
}
