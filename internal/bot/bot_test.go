package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/cache"
	"upbit-trading-bot/internal/events"
	"upbit-trading-bot/internal/metrics"
	"upbit-trading-bot/internal/pipeline"
	"upbit-trading-bot/internal/scanner"
)

type countingStage struct {
	pipeline.BaseStage
	runs  atomic.Int64
	delay time.Duration
}

func (s *countingStage) Name() string { return "counting" }

func (s *countingStage) Execute(*pipeline.Context) *pipeline.StageResult {
	s.runs.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return pipeline.Skip("test tick")
}

func newTestBot(t *testing.T, stage pipeline.Stage, interval time.Duration) *Bot {
	t.Helper()
	pl := pipeline.New(zerolog.Nop(), time.Minute, stage)
	lock := cache.NewTickLock(nil, "test-bot")
	return New(Config{
		Ticker:       "KRW-BTC",
		TickInterval: interval,
		LockTTL:      time.Minute,
	}, pl, lock, nil, events.NewBus(), nil, zerolog.Nop())
}

func TestStartRunsImmediateTick(t *testing.T) {
	stage := &countingStage{}
	b := newTestBot(t, stage, time.Hour)

	require.NoError(t, b.Start())
	defer b.Stop()

	require.Eventually(t, func() bool {
		return stage.runs.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	status := b.Status()
	require.Equal(t, true, status["running"])
	require.Equal(t, int64(1), status["tick_count"])
}

func TestDoubleStartRejected(t *testing.T) {
	b := newTestBot(t, &countingStage{}, time.Hour)

	require.NoError(t, b.Start())
	defer b.Stop()
	require.Error(t, b.Start())
}

func TestStopWithoutStartRejected(t *testing.T) {
	b := newTestBot(t, &countingStage{}, time.Hour)
	require.Error(t, b.Stop())
}

func TestTriggerTickRunsExtraTick(t *testing.T) {
	stage := &countingStage{}
	b := newTestBot(t, stage, time.Hour)

	require.NoError(t, b.Start())
	defer b.Stop()

	require.Eventually(t, func() bool {
		return stage.runs.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.TriggerTick())
	require.Eventually(t, func() bool {
		return stage.runs.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerTickWhileStoppedRejected(t *testing.T) {
	b := newTestBot(t, &countingStage{}, time.Hour)
	require.Error(t, b.TriggerTick())
}

func TestRecordPublishesScanSummary(t *testing.T) {
	bus := events.NewBus()
	got := make(chan events.Event, 1)
	bus.Subscribe(events.EventScanCompleted, func(e events.Event) { got <- e })

	pl := pipeline.New(zerolog.Nop(), time.Minute, &countingStage{})
	b := New(DefaultConfig(), pl, cache.NewTickLock(nil, "test-bot"), nil, bus, metrics.New(), zerolog.Nop())

	tick := pipeline.NewTickContext("KRW-BTC")
	tick.ScanResult = &scanner.Result{
		Candidates: []*scanner.Candidate{{Ticker: "KRW-BTC"}, {Ticker: "KRW-ETH"}, {Ticker: "KRW-SOL"}},
		Selected:   []*scanner.Candidate{{Ticker: "KRW-BTC"}},
		Duration:   1500 * time.Millisecond,
	}
	b.record(context.Background(), tick, &pipeline.Outcome{Status: "completed", Kind: "success"})

	select {
	case e := <-got:
		require.Equal(t, 3, e.Data["scanned"])
		require.Equal(t, 1, e.Data["selected"])
		require.EqualValues(t, 1500, e.Data["duration_ms"])
	case <-time.After(2 * time.Second):
		t.Fatal("scan summary event never published")
	}
}

func TestTradeFromTickMapsPayload(t *testing.T) {
	tick := pipeline.NewTickContext("KRW-ETH")
	tick.TradePayload = map[string]any{
		"decision": "sell",
		"order_id": "order-1",
		"price":    3_500_000.0,
		"amount":   0.5,
		"notional": 1_750_000.0,
		"pnl":      50_000.0,
		"trigger":  "take_profit",
	}

	trade := tradeFromTick(tick)
	require.NotNil(t, trade)
	require.Equal(t, "KRW-ETH", trade.Ticker)
	require.Equal(t, "sell", trade.Side)
	require.Equal(t, "order-1", trade.OrderID)
	require.Equal(t, "take_profit", trade.Trigger)
	require.InDelta(t, 1_750_000.0, trade.Total, 1e-9)
	require.NotNil(t, trade.Pnl)
	require.InDelta(t, 50_000.0, *trade.Pnl, 1e-9)
	require.Len(t, trade.IdempotencyKey, 32)
}

func TestTradeFromTickIgnoresHold(t *testing.T) {
	tick := pipeline.NewTickContext("KRW-BTC")
	require.Nil(t, tradeFromTick(tick))

	tick.TradePayload = map[string]any{"decision": "hold"}
	require.Nil(t, tradeFromTick(tick))
}
