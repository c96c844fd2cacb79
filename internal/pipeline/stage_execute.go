package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/strategy"
)

// ExecutionConfig holds order-placement limits
type ExecutionConfig struct {
	MinOrderValue float64 `json:"min_order_value" yaml:"min_order_value"`
}

// DefaultExecutionConfig matches the exchange's minimum market order
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{MinOrderValue: 5000}
}

// ExecutionStage turns the tick's decision into at most one market order
type ExecutionStage struct {
	BaseStage
	client  exchange.Client
	riskMgr *risk.Manager
	strat   *strategy.Breakout
	cfg     ExecutionConfig
	logger  zerolog.Logger
}

// NewExecutionStage wires the execution stage
func NewExecutionStage(client exchange.Client, riskMgr *risk.Manager, strat *strategy.Breakout,
	cfg ExecutionConfig, logger zerolog.Logger) *ExecutionStage {
	if cfg.MinOrderValue <= 0 {
		cfg.MinOrderValue = DefaultExecutionConfig().MinOrderValue
	}
	return &ExecutionStage{
		client:  client,
		riskMgr: riskMgr,
		strat:   strat,
		cfg:     cfg,
		logger:  logger.With().Str("stage", "execution").Logger(),
	}
}

func (s *ExecutionStage) Name() string { return "execution" }

func (s *ExecutionStage) PreExecute(ctx *Context) bool {
	return ctx.Tick.Decision != ""
}

func (s *ExecutionStage) Execute(ctx *Context) *StageResult {
	tick := ctx.Tick
	switch tick.Decision {
	case ai.DecisionBuy:
		return s.executeBuy(ctx)
	case ai.DecisionSell:
		return s.executeSell(ctx)
	default:
		return Continue("hold " + tick.Ticker)
	}
}

func (s *ExecutionStage) executeBuy(ctx *Context) *StageResult {
	tick := ctx.Tick
	if tick.Position != nil && tick.Position.Amount > 0 {
		return Skip("already holding " + tick.Ticker)
	}
	if !s.riskMgr.CanTrade(ctx.Ctx, tick.Ticker) {
		return Skip("frequency_throttle")
	}

	notional := s.sizeOrder(tick)
	if notional < s.cfg.MinOrderValue {
		return Skip(fmt.Sprintf("order size %.0f below minimum", notional))
	}

	key := IdempotencyKey(tick.Ticker, tick.TickTime, "buy")
	trade, err := s.client.ExecuteBuy(ctx.Ctx, tick.Ticker, decimal.NewFromFloat(notional), key)
	if err != nil {
		return Stop(fmt.Sprintf("buy %s: %v", tick.Ticker, err))
	}
	s.riskMgr.RecordTradeTime(ctx.Ctx, tick.Ticker)

	payload := map[string]any{
		"decision": "buy",
		"order_id": trade.OrderID,
		"price":    trade.Price.InexactFloat64(),
		"amount":   trade.Amount.InexactFloat64(),
		"notional": trade.Total.InexactFloat64(),
	}
	if sig := tick.EntrySignal; sig != nil {
		payload["stop_loss"] = sig.StopLoss
		payload["take_profit"] = sig.TakeProfit
		if sig.Entry != nil {
			payload["entry_reason"] = sig.Entry.String()
		}
	}
	if tick.Review != nil {
		payload["confidence"] = tick.Review.Confidence
	}
	tick.TradePayload = payload
	return Exit(fmt.Sprintf("bought %s for %.0f", tick.Ticker, trade.Total.InexactFloat64()), payload)
}

func (s *ExecutionStage) executeSell(ctx *Context) *StageResult {
	tick := ctx.Tick
	pos := tick.Position
	if pos == nil || pos.Amount <= 0 {
		return Skip("nothing to sell for " + tick.Ticker)
	}

	key := IdempotencyKey(tick.Ticker, tick.TickTime, "sell")
	trade, err := s.client.ExecuteSell(ctx.Ctx, tick.Ticker, decimal.Zero, key)
	if err != nil {
		return Stop(fmt.Sprintf("sell %s: %v", tick.Ticker, err))
	}

	pnl := trade.Total.InexactFloat64() - pos.Amount*pos.AvgBuyPrice
	s.riskMgr.RecordRealizedPnl(ctx.Ctx, pnl)
	s.riskMgr.RecordTradeTime(ctx.Ctx, tick.Ticker)

	payload := map[string]any{
		"decision": "sell",
		"order_id": trade.OrderID,
		"price":    trade.Price.InexactFloat64(),
		"amount":   trade.Amount.InexactFloat64(),
		"notional": trade.Total.InexactFloat64(),
		"pnl":      pnl,
	}
	if tick.Review != nil {
		payload["reason"] = tick.Review.Reason
	}
	tick.TradePayload = payload
	return Exit(fmt.Sprintf("sold %s, pnl %.0f", tick.Ticker, pnl), payload)
}

// sizeOrder derives the order notional from risk sizing, bounded by the
// portfolio's per-slot capital and the actual cash on hand
func (s *ExecutionStage) sizeOrder(tick *TickContext) float64 {
	equity := tick.QuoteBalance
	limit := tick.QuoteBalance
	if pf := tick.Portfolio; pf != nil {
		equity = pf.Cash + pf.CurrentValue
		if pf.CapitalPerPosition > 0 && pf.CapitalPerPosition < limit {
			limit = pf.CapitalPerPosition
		}
	}

	stop := 0.0
	if tick.EntrySignal != nil {
		stop = tick.EntrySignal.StopLoss
	}
	notional := s.strat.PositionSize(equity, tick.CurrentPrice, stop)
	if notional > limit {
		notional = limit
	}
	return notional
}
