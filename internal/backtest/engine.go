package backtest

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

// Strategy is what the engine needs from a trading strategy. It is satisfied
// by *strategy.Breakout.
type Strategy interface {
	WarmupBars() int
	Evaluate(f *strategy.Frame, i int, pos *strategy.Position) *strategy.Signal
	PositionSize(equity, entryPrice, stopLoss float64) float64
}

// SlippageModel selects how fills deviate from signal prices
type SlippageModel string

const (
	SlippagePct       SlippageModel = "pct"
	SlippageOrderbook SlippageModel = "orderbook"
)

// Config holds backtest execution parameters
type Config struct {
	InitialCapital    float64       `json:"initial_capital" yaml:"initial_capital"`
	Commission        float64       `json:"commission" yaml:"commission"` // per side, fraction
	Slippage          float64       `json:"slippage" yaml:"slippage"`     // per side, fraction
	SlippageModel     SlippageModel `json:"slippage_model" yaml:"slippage_model"`
	ExecuteOnNextOpen bool          `json:"execute_on_next_open" yaml:"execute_on_next_open"`
	UseIntrabarStops  bool          `json:"use_intrabar_stops" yaml:"use_intrabar_stops"`
	UseSplitOrders    bool          `json:"use_split_orders" yaml:"use_split_orders"`
}

// DefaultConfig returns production backtest defaults
func DefaultConfig() Config {
	return Config{
		InitialCapital:    10_000_000,
		Commission:        0.0005,
		Slippage:          0.001,
		SlippageModel:     SlippagePct,
		ExecuteOnNextOpen: true,
	}
}

// Trade is one closed round trip
type Trade struct {
	Ticker        string      `json:"ticker"`
	EntryTime     time.Time   `json:"entry_time"`
	ExitTime      time.Time   `json:"exit_time"`
	EntryPrice    float64     `json:"entry_price"`
	ExitPrice     float64     `json:"exit_price"`
	Size          float64     `json:"size"` // base quantity
	Pnl           float64     `json:"pnl"`  // net of commission and slippage
	PnlPct        float64     `json:"pnl_pct"`
	Commission    float64     `json:"commission"`
	ExitReason    string      `json:"exit_reason"`
	HoldingPeriod time.Duration `json:"holding_period"`
}

// EquityPoint is the account value after a closed trade
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result bundles trades, the equity curve and derived metrics
type Result struct {
	Ticker      string        `json:"ticker"`
	Trades      []Trade       `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
	Metrics     Metrics       `json:"metrics"`
}

// Engine replays a strategy over a candle series
type Engine struct {
	cfg    Config
	strat  Strategy
	book   *market.Orderbook // optional, for orderbook slippage
	logger zerolog.Logger
}

// NewEngine creates a backtest engine
func NewEngine(cfg Config, strat Strategy, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, strat: strat, logger: logger}
}

// SetOrderbook provides a book snapshot for orderbook-based slippage
func (e *Engine) SetOrderbook(ob *market.Orderbook) {
	e.book = ob
}

type openPosition struct {
	strategy.Position
	size       float64
	entryTime  time.Time
	commission float64
}

// Run replays the series bar by bar. Signals computed on bar t fill at the
// open of bar t+1 when ExecuteOnNextOpen is set, otherwise at bar t's close.
// With UseIntrabarStops, stop and target levels fill inside the bar that
// crosses them, at the level price.
func (e *Engine) Run(s *market.Series, frameCfg strategy.Config) (*Result, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("backtest %s: empty series", tickerOf(s))
	}
	warmup := e.strat.WarmupBars()
	if s.Len() <= warmup+1 {
		return nil, fmt.Errorf("backtest %s: %d candles, need > %d", s.Ticker, s.Len(), warmup+1)
	}

	f := strategy.NewFrame(s, frameCfg)
	res := &Result{Ticker: s.Ticker}
	cash := e.cfg.InitialCapital

	var pos *openPosition
	var pending *strategy.Signal

	for i := warmup; i < len(f.Candles); i++ {
		c := f.Candles[i]

		// Fill the signal computed on the previous bar.
		if pending != nil {
			cash = e.fill(res, &pos, pending, i, c.Open, c.Timestamp, cash)
			pending = nil
		}

		// Intrabar stop and target checks, stop wins when both levels
		// print in the same bar.
		if pos != nil && e.cfg.UseIntrabarStops {
			if pos.StopLoss > 0 && c.Low <= pos.StopLoss {
				cash = e.closePosition(res, pos, pos.StopLoss, c.Timestamp, "stop_loss", cash)
				pos = nil
			} else if pos.TakeProfit > 0 && c.High >= pos.TakeProfit {
				cash = e.closePosition(res, pos, pos.TakeProfit, c.Timestamp, "take_profit", cash)
				pos = nil
			}
		}

		var posView *strategy.Position
		if pos != nil {
			posView = &pos.Position
		}
		sig := e.strat.Evaluate(f, i, posView)
		if sig == nil || sig.Action == strategy.ActionNone {
			continue
		}
		if e.cfg.ExecuteOnNextOpen {
			pending = sig
		} else {
			cash = e.fill(res, &pos, sig, i, c.Close, c.Timestamp, cash)
		}
	}

	// Force-close at the last bar so metrics see every round trip.
	if pos != nil {
		last := f.Candles[len(f.Candles)-1]
		cash = e.closePosition(res, pos, last.Close, last.Timestamp, "backtest_end", cash)
		pos = nil
	}
	if pending != nil && pending.Action == strategy.ActionBuy {
		pending = nil // never filled, series ended
	}

	res.Metrics = ComputeMetrics(e.cfg.InitialCapital, cash, res.Trades, res.EquityCurve)
	return res, nil
}

// fill applies a signal at the given reference price
func (e *Engine) fill(res *Result, pos **openPosition, sig *strategy.Signal, idx int, refPrice float64, ts time.Time, cash float64) float64 {
	switch sig.Action {
	case strategy.ActionBuy:
		if *pos != nil {
			return cash
		}
		return e.openPositionAt(res, pos, sig, idx, refPrice, ts, cash)
	case strategy.ActionSell:
		if *pos == nil {
			return cash
		}
		fillPrice := refPrice * (1 - e.cfg.Slippage)
		cash = e.closePositionAtFill(res, *pos, fillPrice, ts, string(sig.Exit), cash)
		*pos = nil
	}
	return cash
}

func (e *Engine) openPositionAt(res *Result, pos **openPosition, sig *strategy.Signal, idx int, refPrice float64, ts time.Time, cash float64) float64 {
	// Stop and target shift with the fill price so risk geometry holds.
	stopDelta := sig.Price - sig.StopLoss
	takeDelta := sig.TakeProfit - sig.Price

	notional := e.strat.PositionSize(cash, sig.Price, sig.StopLoss)
	if notional <= 0 || notional > cash {
		return cash
	}

	fillPrice, slip := e.buyFill(refPrice, notional)
	if slip > 0.01 {
		e.logger.Warn().Str("ticker", res.Ticker).Float64("slippage", slip).Msg("buy slippage above 1%")
	}

	size := notional / fillPrice
	fee := notional * e.cfg.Commission
	cash -= notional + fee

	*pos = &openPosition{
		Position: strategy.Position{
			Ticker:     res.Ticker,
			EntryPrice: fillPrice,
			EntryIndex: idx,
			StopLoss:   fillPrice - stopDelta,
			TakeProfit: fillPrice + takeDelta,
		},
		size:       size,
		entryTime:  ts,
		commission: fee,
	}
	return cash
}

// buyFill resolves the fill price for a buy of the given notional
func (e *Engine) buyFill(refPrice, notional float64) (price, slip float64) {
	if e.cfg.SlippageModel == SlippageOrderbook && e.book != nil {
		var fill *strategy.Fill
		var err error
		if e.cfg.UseSplitOrders {
			fill, err = strategy.WalkBuySplit(e.book, notional)
		} else {
			fill, err = strategy.WalkBuy(e.book, notional)
		}
		if err == nil {
			return fill.AvgPrice, fill.SlippagePct
		}
		e.logger.Warn().Err(err).Msg("orderbook fill failed, using pct slippage")
	}
	return refPrice * (1 + e.cfg.Slippage), e.cfg.Slippage
}

// closePosition applies sell-side slippage to the reference price
func (e *Engine) closePosition(res *Result, pos *openPosition, refPrice float64, ts time.Time, reason string, cash float64) float64 {
	return e.closePositionAtFill(res, pos, refPrice*(1-e.cfg.Slippage), ts, reason, cash)
}

func (e *Engine) closePositionAtFill(res *Result, pos *openPosition, fillPrice float64, ts time.Time, reason string, cash float64) float64 {
	gross := pos.size * fillPrice
	fee := gross * e.cfg.Commission
	cash += gross - fee

	entryCost := pos.size * pos.EntryPrice
	pnl := gross - fee - entryCost - pos.commission

	res.Trades = append(res.Trades, Trade{
		Ticker:        res.Ticker,
		EntryTime:     pos.entryTime,
		ExitTime:      ts,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     fillPrice,
		Size:          pos.size,
		Pnl:           pnl,
		PnlPct:        pnl / (entryCost + pos.commission) * 100,
		Commission:    pos.commission + fee,
		ExitReason:    reason,
		HoldingPeriod: ts.Sub(pos.entryTime),
	})
	res.EquityCurve = append(res.EquityCurve, EquityPoint{Timestamp: ts, Equity: cash})
	return cash
}

func tickerOf(s *market.Series) string {
	if s == nil {
		return "?"
	}
	return s.Ticker
}
