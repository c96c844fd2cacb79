package portfolio

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"upbit-trading-bot/internal/exchange"
)

type stubPnl struct {
	daily, weekly float64
}

func (s stubPnl) DailyPnlPct(ctx context.Context) (float64, error)  { return s.daily, nil }
func (s stubPnl) WeeklyPnlPct(ctx context.Context) (float64, error) { return s.weekly, nil }

func paperWithPosition(t *testing.T) *exchange.PaperClient {
	t.Helper()
	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(1_000_000), 0)
	paper.SetPrice("KRW-BTC", decimal.NewFromInt(100))
	_, err := paper.ExecuteBuy(context.Background(), "KRW-BTC", decimal.NewFromInt(200_000), "seed")
	require.NoError(t, err)
	return paper
}

func TestSnapshotEntryMode(t *testing.T) {
	paper := paperWithPosition(t)
	paper.SetPrice("KRW-BTC", decimal.NewFromInt(110))

	m := NewManager(paper, stubPnl{}, DefaultConfig(), zerolog.Nop())
	st, err := m.Snapshot(context.Background())
	require.NoError(t, err)

	require.Equal(t, ModeEntry, st.TradingMode)
	require.True(t, st.CanOpenNewPosition)
	require.Equal(t, 1, st.PositionCount)
	require.True(t, st.Holds("KRW-BTC"))

	require.InDelta(t, 800_000, st.Cash, 1e-6)
	require.InDelta(t, 200_000, st.TotalInvested, 1e-6)
	require.InDelta(t, 220_000, st.CurrentValue, 1e-6)
	require.InDelta(t, 20_000, st.Pnl, 1e-6)

	// cash minus 10% reserve of 1.02M total, capped at 40% of total.
	require.InDelta(t, 408_000, st.AvailableCapital, 1e-6)
	require.InDelta(t, 204_000, st.CapitalPerPosition, 1e-6) // two slots left
}

func TestSnapshotBlockedOnDailyLoss(t *testing.T) {
	paper := paperWithPosition(t)
	m := NewManager(paper, stubPnl{daily: -11}, DefaultConfig(), zerolog.Nop())

	st, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModeBlocked, st.TradingMode)
	require.False(t, st.CanOpenNewPosition)
	require.Contains(t, st.BlockedReason, "daily loss")
}

func TestSnapshotBlockedOnWeeklyLoss(t *testing.T) {
	paper := paperWithPosition(t)
	m := NewManager(paper, stubPnl{weekly: -16}, DefaultConfig(), zerolog.Nop())

	st, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModeBlocked, st.TradingMode)
	require.Contains(t, st.BlockedReason, "weekly loss")
}

func TestSnapshotManagementAtMaxPositions(t *testing.T) {
	paper := paperWithPosition(t)
	cfg := DefaultConfig()
	cfg.MaxPositions = 1
	m := NewManager(paper, stubPnl{}, cfg, zerolog.Nop())

	st, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModeManagement, st.TradingMode)
	require.False(t, st.CanOpenNewPosition)
}

func TestSnapshotFiltersDust(t *testing.T) {
	paper := exchange.NewPaperClient("KRW", decimal.NewFromInt(1_000_000), 0)
	paper.SetPrice("KRW-XRP", decimal.NewFromInt(100))
	paper.SetBalance("XRP", decimal.NewFromInt(5)) // worth 500, under min 10,000

	m := NewManager(paper, stubPnl{}, DefaultConfig(), zerolog.Nop())
	st, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, st.PositionCount)
}

func TestEvaluatorRulePriority(t *testing.T) {
	ev := NewEvaluator(DefaultEvaluatorConfig())

	cases := []struct {
		name    string
		view    PositionView
		action  EvalAction
		trigger string
	}{
		{
			name:    "stop loss",
			view:    PositionView{EntryPrice: 100, CurrentPrice: 94, HoldingHours: 10, HoldingCandles: 10},
			action:  EvalExit,
			trigger: "stop_loss",
		},
		{
			name:    "take profit",
			view:    PositionView{EntryPrice: 100, CurrentPrice: 111, HoldingHours: 10, HoldingCandles: 10},
			action:  EvalExit,
			trigger: "take_profit",
		},
		{
			name:    "trailing stop",
			view:    PositionView{EntryPrice: 100, CurrentPrice: 103, TrailingStop: 104, HoldingHours: 10, HoldingCandles: 10},
			action:  EvalExit,
			trigger: "trailing_stop",
		},
		{
			name:    "fakeout",
			view:    PositionView{EntryPrice: 100, CurrentPrice: 97.5, HoldingHours: 3, HoldingCandles: 2},
			action:  EvalExit,
			trigger: "fakeout",
		},
		{
			name:    "timeout",
			view:    PositionView{EntryPrice: 100, CurrentPrice: 101, HoldingHours: 30, HoldingCandles: 30},
			action:  EvalExit,
			trigger: "timeout",
		},
		{
			name:    "adx weakening",
			view:    PositionView{EntryPrice: 100, CurrentPrice: 103, HoldingHours: 10, HoldingCandles: 10, ADX: 18, PrevADX: 30},
			action:  EvalExit,
			trigger: "adx_weak",
		},
		{
			name:   "trailing adjust on profit",
			view:   PositionView{EntryPrice: 100, CurrentPrice: 106, HoldingHours: 10, HoldingCandles: 10, ADX: 30, PrevADX: 30},
			action: EvalAdjustStop,
		},
		{
			name:   "hold",
			view:   PositionView{EntryPrice: 100, CurrentPrice: 103, HoldingHours: 10, HoldingCandles: 10, ADX: 30, PrevADX: 30},
			action: EvalHold,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ev.Evaluate(tc.view)
			require.Equal(t, tc.action, got.Action)
			if tc.trigger != "" {
				require.Equal(t, tc.trigger, got.Trigger)
			}
		})
	}
}

func TestTrailingAdjustRatchetsUpOnly(t *testing.T) {
	ev := NewEvaluator(DefaultEvaluatorConfig())

	// Profit 6%, proposed stop 106*0.97 = 102.82, above existing 100.
	got := ev.Evaluate(PositionView{EntryPrice: 100, CurrentPrice: 106, TrailingStop: 100, HoldingHours: 10, HoldingCandles: 10, ADX: 30, PrevADX: 30})
	require.Equal(t, EvalAdjustStop, got.Action)
	require.InDelta(t, 106*0.97, got.NewStop, 1e-9)

	// Existing stop already higher than the proposal: hold.
	got = ev.Evaluate(PositionView{EntryPrice: 100, CurrentPrice: 106, TrailingStop: 103.5, HoldingHours: 10, HoldingCandles: 10, ADX: 30, PrevADX: 30})
	require.Equal(t, EvalHold, got.Action)
}
