package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
)

// chartIntervals is what the analysis stage consumes, bounded history each
var chartIntervals = []market.Interval{market.Interval1d, market.Interval60m, market.Interval15m}

const chartDepth = 200

// DataCollectStage gathers the full analysis payload for the chosen
// ticker. Sub-reads fan out in parallel; the ticker's own chart is fatal,
// everything else degrades with a warning.
type DataCollectStage struct {
	BaseStage
	client    exchange.Client
	fearGreed exchange.FearGreedClient // optional
	reference string                   // reference asset ticker, e.g. KRW-BTC
	quote     string
	logger    zerolog.Logger
}

// NewDataCollectStage wires the collector
func NewDataCollectStage(client exchange.Client, fearGreed exchange.FearGreedClient, reference, quote string, logger zerolog.Logger) *DataCollectStage {
	return &DataCollectStage{
		client:    client,
		fearGreed: fearGreed,
		reference: reference,
		quote:     quote,
		logger:    logger.With().Str("stage", "data_collect").Logger(),
	}
}

func (s *DataCollectStage) Name() string { return "data_collect" }

func (s *DataCollectStage) PreExecute(ctx *Context) bool {
	return ctx.Tick.Ticker != ""
}

func (s *DataCollectStage) Execute(ctx *Context) *StageResult {
	tick := ctx.Tick

	var mu sync.Mutex
	var wg sync.WaitGroup
	var chartErr error

	run := func(fn func() error, fatal bool, what string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				if fatal {
					mu.Lock()
					if chartErr == nil {
						chartErr = fmt.Errorf("%s: %w", what, err)
					}
					mu.Unlock()
					return
				}
				s.logger.Warn().Err(err).Str("source", what).Msg("optional source degraded")
			}
		}()
	}

	for _, iv := range chartIntervals {
		iv := iv
		run(func() error {
			series, err := s.client.GetOHLCV(ctx.Ctx, tick.Ticker, iv, chartDepth)
			if err != nil {
				return err
			}
			if issues := market.Validate(series); len(issues) > 0 {
				s.logger.Warn().Str("interval", string(iv)).Int("issues", len(issues)).Msg("chart quality issues")
			}
			mu.Lock()
			tick.Charts[iv] = series
			mu.Unlock()
			return nil
		}, true, "chart "+string(iv))
	}

	run(func() error {
		series, err := s.client.GetOHLCV(ctx.Ctx, s.reference, market.Interval1d, chartDepth)
		if err != nil {
			return err
		}
		mu.Lock()
		tick.ReferenceDay = series
		mu.Unlock()
		return nil
	}, false, "reference chart")

	run(func() error {
		ob, err := s.client.GetOrderbook(ctx.Ctx, tick.Ticker)
		if err != nil {
			return err
		}
		summary := ob.Summarize()
		mu.Lock()
		tick.Orderbook = ob
		tick.BookSummary = &summary
		mu.Unlock()
		return nil
	}, false, "orderbook")

	run(func() error {
		price, err := s.client.GetCurrentPrice(ctx.Ctx, tick.Ticker)
		if err != nil {
			return err
		}
		mu.Lock()
		tick.CurrentPrice = price.InexactFloat64()
		mu.Unlock()
		return nil
	}, true, "current price")

	run(func() error { return s.collectBalances(ctx, tick, &mu) }, false, "balances")

	if s.fearGreed != nil {
		run(func() error {
			fg, err := s.fearGreed.GetFearGreedIndex(ctx.Ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			tick.FearGreed = fg
			mu.Unlock()
			return nil
		}, false, "fear_greed")
	}

	wg.Wait()
	if chartErr != nil {
		return Stop(chartErr.Error())
	}

	daily := tick.Charts[market.Interval1d]
	if snap, err := indicator.NewSnapshot(daily); err != nil {
		s.logger.Warn().Err(err).Msg("indicator snapshot unavailable")
	} else {
		tick.Snapshot = snap
	}
	return Continue(fmt.Sprintf("collected %d charts for %s", len(tick.Charts), tick.Ticker))
}

// collectBalances reads quote and base balances and the held-position
// detail when the bot owns the ticker
func (s *DataCollectStage) collectBalances(ctx *Context, tick *TickContext, mu *sync.Mutex) error {
	quoteBal, err := s.client.GetBalance(ctx.Ctx, s.quote)
	if err != nil {
		return err
	}
	base := strings.TrimPrefix(tick.Ticker, s.quote+"-")
	baseBal, err := s.client.GetBalance(ctx.Ctx, base)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	tick.QuoteBalance = quoteBal.Available.InexactFloat64()
	tick.BaseBalance = baseBal.Available.InexactFloat64()

	amount := baseBal.Total.InexactFloat64()
	if amount > 0 && tick.Portfolio != nil {
		for _, pos := range tick.Portfolio.Positions {
			if pos.Ticker != tick.Ticker {
				continue
			}
			detail := &PositionDetail{
				Amount:       amount,
				AvgBuyPrice:  pos.AvgBuyPrice,
				CurrentValue: pos.Value(),
				ProfitRate:   pos.ProfitRate(),
			}
			detail.UnrealizedPnl = detail.CurrentValue - amount*pos.AvgBuyPrice
			tick.Position = detail
		}
	}
	return nil
}
