package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/portfolio"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/scanner"
	"upbit-trading-bot/internal/strategy"
)

// Deps is everything a full tick pipeline needs. Scanner, reviewer,
// fear-greed, and entry-time source are optional.
type Deps struct {
	Client    exchange.Client
	FearGreed exchange.FearGreedClient
	Portfolio *portfolio.Manager
	Evaluator *portfolio.Evaluator
	Scanner   *scanner.Scanner
	Risk      *risk.Manager
	Store     *datastore.Store
	Reviewer  *ai.Reviewer
	Entries   EntryTimeSource

	RiskCheck RiskCheckConfig
	Execution ExecutionConfig
	Backtest  backtest.Config
	Strategy  strategy.Config
	Filter    backtest.FilterConfig

	Reference string // correlation reference ticker, e.g. KRW-BTC
	Quote     string
	Deadline  time.Duration
	Logger    zerolog.Logger
}

// NewHybrid assembles the four-stage hybrid pipeline: mode arbitration and
// scanning, data collection, analysis and review, execution.
func NewHybrid(d Deps) *Pipeline {
	d.RiskCheck.EnableScanning = d.Scanner != nil && d.RiskCheck.EnableScanning
	return New(d.Logger, d.Deadline, stages(d)...)
}

// NewSingleTicker assembles the same pipeline pinned to one ticker, no
// scanner involved
func NewSingleTicker(d Deps) *Pipeline {
	d.Scanner = nil
	d.RiskCheck.EnableScanning = false
	return New(d.Logger, d.Deadline, stages(d)...)
}

func stages(d Deps) []Stage {
	cache := backtest.NewMetricsCache()
	return []Stage{
		NewRiskCheckStage(d.Portfolio, d.Evaluator, d.Scanner, d.Risk, d.Client, d.Entries, d.RiskCheck, d.Logger),
		NewDataCollectStage(d.Client, d.FearGreed, d.Reference, d.Quote, d.Logger),
		NewAnalysisStage(d.Store, d.Reviewer, cache, d.Backtest, d.Strategy, d.Filter, d.Logger),
		NewExecutionStage(d.Client, d.Risk, strategy.NewBreakout(d.Strategy), d.Execution, d.Logger),
	}
}
