// Package bot owns the tick schedule: it fires the pipeline on an
// interval, serializes runs through the tick lock, persists outcomes and
// publishes events for the dashboard and notifiers.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/cache"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/events"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/metrics"
	"upbit-trading-bot/internal/pipeline"
)

// Config holds scheduler settings
type Config struct {
	Ticker       string        `json:"ticker" yaml:"ticker"`
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
	LockTTL      time.Duration `json:"lock_ttl" yaml:"lock_ttl"`
}

// DefaultConfig ticks every minute with a lock TTL past the pipeline
// deadline
func DefaultConfig() Config {
	return Config{
		Ticker:       "KRW-BTC",
		TickInterval: time.Minute,
		LockTTL:      5 * time.Minute,
	}
}

// Bot drives the pipeline on a schedule
type Bot struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	lock     *cache.TickLock
	repo     *database.Repository // nil disables persistence
	bus      *events.Bus
	metrics  *metrics.Metrics // nil disables instrumentation
	logger   zerolog.Logger

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	tickNow     chan struct{}
	wg          sync.WaitGroup
	tickCount   int64
	lastTick    time.Time
	lastOutcome *pipeline.Outcome
}

// New wires the scheduler. repo and m may be nil.
func New(cfg Config, pl *pipeline.Pipeline, lock *cache.TickLock, repo *database.Repository,
	bus *events.Bus, m *metrics.Metrics, logger zerolog.Logger) *Bot {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	return &Bot{
		cfg:      cfg,
		pipeline: pl,
		lock:     lock,
		repo:     repo,
		bus:      bus,
		metrics:  m,
		logger:   logger.With().Str("component", "bot").Logger(),
	}
}

// Start launches the tick loop
func (b *Bot) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("bot already running")
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.tickNow = make(chan struct{}, 1)

	b.wg.Add(1)
	go b.loop(b.stopCh, b.tickNow)

	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]any{"ticker": b.cfg.Ticker}})
	}
	b.logger.Info().Str("ticker", b.cfg.Ticker).Dur("interval", b.cfg.TickInterval).Msg("bot started")
	return nil
}

// Stop halts the loop and waits for an in-flight tick to finish
func (b *Bot) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return errors.New("bot not running")
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	b.wg.Wait()
	if b.bus != nil {
		b.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]any{"ticker": b.cfg.Ticker}})
	}
	b.logger.Info().Msg("bot stopped")
	return nil
}

// TriggerTick requests an immediate tick outside the schedule
func (b *Bot) TriggerTick() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return errors.New("bot not running")
	}
	select {
	case b.tickNow <- struct{}{}:
	default:
		// A manual tick is already queued.
	}
	return nil
}

// Status reports scheduler state for the dashboard
func (b *Bot) Status() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := map[string]any{
		"running":       b.running,
		"ticker":        b.cfg.Ticker,
		"tick_interval": b.cfg.TickInterval.String(),
		"tick_count":    b.tickCount,
	}
	if !b.lastTick.IsZero() {
		status["last_tick"] = b.lastTick.Format(time.RFC3339)
	}
	if b.lastOutcome != nil {
		status["last_outcome"] = b.lastOutcome
	}
	return status
}

func (b *Bot) loop(stopCh, tickNow chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	// First tick immediately rather than one interval in.
	b.runTick()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.runTick()
		case <-tickNow:
			b.runTick()
		}
	}
}

// runTick executes one pipeline run under the tick lock. A held lock
// means a previous run is still in flight, so this tick is dropped.
func (b *Bot) runTick() {
	ctx, logger := logging.WithTrace(context.Background(), b.logger)

	token, ok, err := b.lock.Acquire(ctx, b.cfg.Ticker, b.cfg.LockTTL)
	if err != nil {
		logger.Error().Err(err).Msg("tick lock acquire failed")
		return
	}
	if !ok {
		logger.Warn().Str("ticker", b.cfg.Ticker).Msg("previous tick still running, dropping")
		return
	}
	defer b.lock.Release(ctx, b.cfg.Ticker, token)

	tick := pipeline.NewTickContext(b.cfg.Ticker)
	outcome := b.pipeline.Run(ctx, tick)

	b.mu.Lock()
	b.tickCount++
	b.lastTick = tick.TickTime
	b.lastOutcome = outcome
	b.mu.Unlock()

	logger.Info().
		Str("ticker", tick.Ticker).
		Str("status", outcome.Status).
		Str("kind", outcome.Kind).
		Str("decision", outcome.Decision).
		Dur("duration", outcome.Duration).
		Msg(outcome.Reason)

	b.record(ctx, tick, outcome)
}

// record persists the outcome and fans out events and metrics
func (b *Bot) record(ctx context.Context, tick *pipeline.TickContext, outcome *pipeline.Outcome) {
	if b.repo != nil {
		if err := b.repo.SaveOutcome(ctx, tick.Ticker, tick.TickTime, outcome); err != nil {
			b.logger.Error().Err(err).Msg("save tick outcome failed")
		}
		if trade := tradeFromTick(tick); trade != nil {
			if err := b.repo.SaveTrade(ctx, trade); err != nil {
				b.logger.Error().Err(err).Str("key", trade.IdempotencyKey).Msg("save trade failed")
			}
		}
	}

	if b.metrics != nil {
		b.metrics.ObserveTick(outcome.Status, outcome.Kind, outcome.Duration.Seconds())
		if pf := tick.Portfolio; pf != nil {
			b.metrics.SetPortfolio(pf.Cash, pf.CurrentValue, pf.PositionCount, pf.DailyPnlPct, pf.WeeklyPnlPct)
		}
	}

	if scan := tick.ScanResult; scan != nil {
		if b.repo != nil {
			if err := b.repo.SaveScan(ctx, scan, tick.TickTime); err != nil {
				b.logger.Error().Err(err).Msg("save scan result failed")
			}
		}
		if b.metrics != nil {
			b.metrics.ObserveScan(scan.Duration.Seconds(), len(scan.Candidates))
		}
		if b.bus != nil {
			b.bus.PublishScanCompleted(len(scan.Candidates), len(scan.Selected), scan.Duration)
		}
	}

	if b.bus == nil {
		return
	}
	b.bus.PublishTickCompleted(tick.Ticker, outcome.Status, outcome.Kind, outcome.Decision, outcome.Reason)

	payload := tick.TradePayload
	if payload == nil {
		if trigger, _ := outcome.Data["trigger"].(string); trigger == "circuit_breaker" {
			daily, weekly := 0.0, 0.0
			if pf := tick.Portfolio; pf != nil {
				daily, weekly = pf.DailyPnlPct, pf.WeeklyPnlPct
			}
			reason, _ := outcome.Data["reason"].(string)
			b.bus.PublishCircuitBreaker(reason, daily, weekly)
		}
		return
	}

	side, _ := payload["decision"].(string)
	price, _ := payload["price"].(float64)
	amount, _ := payload["amount"].(float64)
	notional, _ := payload["notional"].(float64)
	b.bus.PublishTradeExecuted(tick.Ticker, side, price, amount, notional)
	if b.metrics != nil {
		b.metrics.ObserveTrade(side, notional)
	}

	if side == "sell" {
		pnl, _ := payload["pnl"].(float64)
		trigger, _ := payload["trigger"].(string)
		if trigger == "" {
			trigger = "strategy"
		}
		b.bus.PublishPositionExited(tick.Ticker, trigger, pnl)
		if b.metrics != nil {
			b.metrics.ObserveRealizedPnl(pnl)
		}
	}
}

// tradeFromTick turns the execution payload into a trade row. The
// idempotency key makes replays after a crash harmless.
func tradeFromTick(tick *pipeline.TickContext) *database.Trade {
	payload := tick.TradePayload
	if payload == nil {
		return nil
	}
	side, _ := payload["decision"].(string)
	if side != "buy" && side != "sell" {
		return nil
	}

	trade := &database.Trade{
		Ticker:         tick.Ticker,
		Side:           side,
		IdempotencyKey: pipeline.IdempotencyKey(tick.Ticker, tick.TickTime, side),
		ExecutedAt:     tick.TickTime,
	}
	trade.Price, _ = payload["price"].(float64)
	trade.Amount, _ = payload["amount"].(float64)
	trade.Total, _ = payload["notional"].(float64)
	trade.OrderID, _ = payload["order_id"].(string)
	trade.Trigger, _ = payload["trigger"].(string)
	if pnl, ok := payload["pnl"].(float64); ok {
		trade.Pnl = &pnl
	}
	return trade
}
