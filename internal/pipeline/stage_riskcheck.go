package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/portfolio"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/scanner"
)

// EntryTimeSource answers when a held position was opened. The trade log in
// the database implements it; without one the stage falls back to the first
// tick that saw the position.
type EntryTimeSource interface {
	EntryTime(ticker string) (time.Time, bool)
}

// RiskCheckConfig holds the arbiter's own knobs
type RiskCheckConfig struct {
	FallbackTicker   string  `json:"fallback_ticker" yaml:"fallback_ticker"`
	EnableScanning   bool    `json:"enable_scanning" yaml:"enable_scanning"`
	MinPositionValue float64 `json:"min_position_value" yaml:"min_position_value"`
	MaxPositions     int     `json:"max_positions" yaml:"max_positions"`
}

// RiskCheckStage is the hybrid mode arbiter: portfolio snapshot, circuit
// breakers, mode selection, management fast paths, and scanner invocation.
type RiskCheckStage struct {
	BaseStage
	pm        *portfolio.Manager
	evaluator *portfolio.Evaluator
	scan      *scanner.Scanner // nil for the single-ticker variant
	riskMgr   *risk.Manager
	client    exchange.Client
	entries   EntryTimeSource
	cfg       RiskCheckConfig
	logger    zerolog.Logger

	mu        sync.Mutex
	stops     map[string]float64   // trailing stops by ticker
	firstSeen map[string]time.Time // entry-time fallback without a trade log
}

// NewRiskCheckStage wires the arbiter
func NewRiskCheckStage(pm *portfolio.Manager, evaluator *portfolio.Evaluator, scan *scanner.Scanner,
	riskMgr *risk.Manager, client exchange.Client, entries EntryTimeSource,
	cfg RiskCheckConfig, logger zerolog.Logger) *RiskCheckStage {
	return &RiskCheckStage{
		pm:        pm,
		evaluator: evaluator,
		scan:      scan,
		riskMgr:   riskMgr,
		client:    client,
		entries:   entries,
		cfg:       cfg,
		logger:    logger.With().Str("stage", "risk_check").Logger(),
		stops:     make(map[string]float64),
		firstSeen: make(map[string]time.Time),
	}
}

func (s *RiskCheckStage) Name() string { return "hybrid_risk_check" }

func (s *RiskCheckStage) Execute(ctx *Context) *StageResult {
	status, err := s.pm.Snapshot(ctx.Ctx)
	if err != nil {
		return Stop(fmt.Sprintf("portfolio snapshot: %v", err))
	}
	ctx.Tick.Portfolio = status
	ctx.Tick.TradingMode = status.TradingMode
	s.trackPositions(status, ctx.Tick.TickTime)

	switch status.TradingMode {
	case portfolio.ModeBlocked:
		ctx.Tick.Decision = "hold"
		return Exit("circuit breaker: "+status.BlockedReason, map[string]any{
			"decision": "hold",
			"trigger":  "circuit_breaker",
			"reason":   status.BlockedReason,
		})
	case portfolio.ModeManagement:
		res := s.managePositions(ctx, status)
		if res != nil {
			return res
		}
		// Extra slots opened up mid-management, fall through to entry.
		if status.PositionCount >= s.cfg.MaxPositions {
			return Skip("at max positions, nothing to manage")
		}
	}
	return s.enterMode(ctx, status)
}

// managePositions runs the rule evaluator over each held position. A
// non-nil result short-circuits the pipeline.
func (s *RiskCheckStage) managePositions(ctx *Context, status *portfolio.Status) *StageResult {
	for _, pos := range status.Positions {
		view, err := s.buildView(ctx, pos)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", pos.Ticker).Msg("position data unavailable, holding")
			continue
		}

		eval := s.evaluator.Evaluate(view)
		switch eval.Action {
		case portfolio.EvalExit:
			return s.executeExit(ctx, pos, eval)
		case portfolio.EvalAdjustStop:
			s.mu.Lock()
			s.stops[pos.Ticker] = eval.NewStop
			s.mu.Unlock()
			s.logger.Info().Str("ticker", pos.Ticker).Float64("stop", eval.NewStop).Msg("trailing stop raised")
		}
	}
	return nil
}

// buildView assembles the evaluator's inputs for one position
func (s *RiskCheckStage) buildView(ctx *Context, pos portfolio.Position) (portfolio.PositionView, error) {
	series, err := s.client.GetOHLCV(ctx.Ctx, pos.Ticker, market.Interval60m, 60)
	if err != nil {
		return portfolio.PositionView{}, err
	}
	adxs := indicator.ADX(series.Candles, 14)

	view := portfolio.PositionView{
		Ticker:       pos.Ticker,
		EntryPrice:   pos.AvgBuyPrice,
		CurrentPrice: pos.CurrentPrice,
		// Entry time unresolvable: assume a mid-age hold so only price
		// rules and ADX can fire, never fakeout or timeout.
		HoldingHours:   12,
		HoldingCandles: 1000,
	}
	if len(adxs) >= 2 {
		view.ADX = adxs[len(adxs)-1]
		view.PrevADX = adxs[len(adxs)-2]
	}
	if entry, ok := s.entryTime(pos.Ticker); ok {
		held := ctx.Tick.TickTime.Sub(entry)
		view.HoldingHours = held.Hours()
		view.HoldingCandles = int(held / market.Interval60m.Duration())
	}
	s.mu.Lock()
	view.TrailingStop = s.stops[pos.Ticker]
	s.mu.Unlock()
	return view, nil
}

// trackPositions stamps the first tick that saw each position and forgets
// trailing-stop and entry state for positions that are gone
func (s *RiskCheckStage) trackPositions(status *portfolio.Status, at time.Time) {
	held := make(map[string]bool, len(status.Positions))
	for _, pos := range status.Positions {
		held[pos.Ticker] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pos := range status.Positions {
		if _, ok := s.firstSeen[pos.Ticker]; !ok {
			s.firstSeen[pos.Ticker] = at
		}
	}
	for ticker := range s.firstSeen {
		if !held[ticker] {
			delete(s.firstSeen, ticker)
		}
	}
	for ticker := range s.stops {
		if !held[ticker] {
			delete(s.stops, ticker)
		}
	}
}

// entryTime resolves when a position opened: the trade log when wired,
// otherwise the first tick that observed it
func (s *RiskCheckStage) entryTime(ticker string) (time.Time, bool) {
	if s.entries != nil {
		if entry, ok := s.entries.EntryTime(ticker); ok {
			return entry, true
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.firstSeen[ticker]
	return entry, ok
}

// executeExit sells the position at market and terminates the tick
func (s *RiskCheckStage) executeExit(ctx *Context, pos portfolio.Position, eval portfolio.Evaluation) *StageResult {
	key := IdempotencyKey(pos.Ticker, ctx.Tick.TickTime, "sell")
	trade, err := s.client.ExecuteSell(ctx.Ctx, pos.Ticker, decimal.Zero, key)
	if err != nil {
		return Stop(fmt.Sprintf("management sell %s: %v", pos.Ticker, err))
	}

	pnl := trade.Total.InexactFloat64() - pos.Invested()
	s.riskMgr.RecordRealizedPnl(ctx.Ctx, pnl)
	s.riskMgr.RecordTradeTime(ctx.Ctx, pos.Ticker)
	s.mu.Lock()
	delete(s.stops, pos.Ticker)
	delete(s.firstSeen, pos.Ticker)
	s.mu.Unlock()

	ctx.Tick.Decision = "sell"
	ctx.Tick.Ticker = pos.Ticker
	payload := map[string]any{
		"decision":    "sell",
		"trigger":     eval.Trigger,
		"reason":      eval.Reason,
		"order_id":    trade.OrderID,
		"price":       trade.Price.InexactFloat64(),
		"amount":      trade.Amount.InexactFloat64(),
		"notional":    trade.Total.InexactFloat64(),
		"pnl":         pnl,
		"profit_rate": eval.ProfitRate,
	}
	ctx.Tick.TradePayload = payload
	return Exit(fmt.Sprintf("management exit %s: %s", pos.Ticker, eval.Trigger), payload)
}

// enterMode resolves which ticker this tick trades
func (s *RiskCheckStage) enterMode(ctx *Context, status *portfolio.Status) *StageResult {
	if status.AvailableCapital < s.cfg.MinPositionValue {
		return Skip("insufficient_capital")
	}

	if !s.cfg.EnableScanning || s.scan == nil {
		if ctx.Tick.Ticker == "" {
			ctx.Tick.Ticker = s.cfg.FallbackTicker
		}
		return Continue("single ticker " + ctx.Tick.Ticker)
	}

	scanRes, err := s.scan.Scan(ctx.Ctx, status.HeldTickers())
	if err != nil {
		return Stop(fmt.Sprintf("scanner: %v", err))
	}
	ctx.Tick.ScanResult = scanRes
	if len(scanRes.Selected) == 0 {
		return Skip("no_candidate")
	}

	ctx.Tick.Ticker = scanRes.Selected[0].Ticker
	return Continue(fmt.Sprintf("scanner selected %s (%s)", ctx.Tick.Ticker, scanRes.Selected[0].FinalGrade))
}
