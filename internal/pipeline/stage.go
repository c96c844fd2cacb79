package pipeline

import (
	"time"

	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/analysis"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/portfolio"
	"upbit-trading-bot/internal/scanner"
	"upbit-trading-bot/internal/strategy"
)

// Action is the closed set of stage outcomes the orchestrator interprets
type Action string

const (
	ActionContinue Action = "continue"
	ActionSkip     Action = "skip"
	ActionStop     Action = "stop"
	ActionExit     Action = "exit"
)

// StageResult is what every stage hands back to the orchestrator
type StageResult struct {
	Success  bool           `json:"success"`
	Action   Action         `json:"action"`
	Message  string         `json:"message,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Continue is the all-clear result
func Continue(msg string) *StageResult {
	return &StageResult{Success: true, Action: ActionContinue, Message: msg}
}

// Skip terminates the tick successfully without trading
func Skip(msg string) *StageResult {
	return &StageResult{Success: true, Action: ActionSkip, Message: msg}
}

// Exit terminates the tick with a definitive outcome payload
func Exit(msg string, data map[string]any) *StageResult {
	return &StageResult{Success: true, Action: ActionExit, Message: msg, Data: data}
}

// Stop terminates the tick as a failure
func Stop(msg string) *StageResult {
	return &StageResult{Success: false, Action: ActionStop, Message: msg}
}

// PositionDetail is the held-position view collected for the tick's ticker
type PositionDetail struct {
	Amount        float64   `json:"amount"`
	AvgBuyPrice   float64   `json:"avg_buy_price"`
	CurrentValue  float64   `json:"current_value"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	ProfitRate    float64   `json:"profit_rate"`
	EntryTime     time.Time `json:"entry_time,omitempty"`
}

// TickContext is the per-tick scratchpad. It is owned by the running tick:
// stages write their slots in pipeline order and nothing outside the tick
// touches it.
type TickContext struct {
	Ticker   string
	TickTime time.Time

	// HybridRiskCheck outputs.
	Portfolio   *portfolio.Status
	TradingMode portfolio.TradingMode
	ScanResult  *scanner.Result

	// DataCollection outputs.
	Charts       map[market.Interval]*market.Series
	ReferenceDay *market.Series // BTC daily, for correlation
	Snapshot     *indicator.Snapshot
	Orderbook    *market.Orderbook
	BookSummary  *market.OrderbookSummary
	FearGreed    *market.FearGreed
	CurrentPrice float64
	QuoteBalance float64
	BaseBalance  float64
	Position     *PositionDetail

	// Analysis outputs.
	Correlation *analysis.Correlation
	FlashCrash  *analysis.FlashCrash
	Divergence  *analysis.Divergence
	Backtest    *backtest.Metrics
	Filter      *backtest.FilterResult
	Review      *ai.Review
	EntrySignal *strategy.Signal

	// Execution outputs.
	Decision     ai.Decision
	TradePayload map[string]any
}

// NewTickContext creates a fresh context for one tick
func NewTickContext(ticker string) *TickContext {
	return &TickContext{
		Ticker:   ticker,
		TickTime: time.Now().UTC(),
		Charts:   make(map[market.Interval]*market.Series),
	}
}

// Stage is the pipeline capability set. PreExecute returning false skips
// the stage silently; HandleError converts a panic or error into a result
// so nothing escapes the orchestrator.
type Stage interface {
	Name() string
	PreExecute(ctx *Context) bool
	Execute(ctx *Context) *StageResult
	PostExecute(ctx *Context, res *StageResult) *StageResult
	HandleError(ctx *Context, err error) *StageResult
}

// BaseStage provides the no-op halves so stages only implement what they
// need
type BaseStage struct{}

func (BaseStage) PreExecute(*Context) bool { return true }

func (BaseStage) PostExecute(_ *Context, res *StageResult) *StageResult { return res }

func (BaseStage) HandleError(_ *Context, err error) *StageResult {
	return Stop(err.Error())
}
