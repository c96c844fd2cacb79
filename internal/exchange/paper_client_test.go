package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestPaper() *PaperClient {
	p := NewPaperClient("KRW", decimal.NewFromInt(1_000_000), 0.001)
	p.SetPrice("KRW-BTC", decimal.NewFromInt(100))
	return p
}

func TestPaperBuyAdjustsBalances(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	trade, err := p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(100_000), "k1")
	require.NoError(t, err)
	require.Equal(t, SideBuy, trade.Side)
	require.True(t, trade.Amount.Equal(decimal.NewFromInt(1000)), "amount %s", trade.Amount)
	require.True(t, trade.Commission.Equal(decimal.NewFromInt(100)))

	cash, err := p.GetBalance(ctx, "KRW")
	require.NoError(t, err)
	require.True(t, cash.Total.Equal(decimal.NewFromInt(899_900)), "cash %s", cash.Total)

	btc, err := p.GetBalance(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, btc.Total.Equal(decimal.NewFromInt(1000)))
	require.True(t, btc.AvgBuyPrice.Equal(decimal.NewFromInt(100)))
}

func TestPaperSellRealizesProceeds(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(100_000), "k1")
	require.NoError(t, err)

	p.SetPrice("KRW-BTC", decimal.NewFromInt(110))
	trade, err := p.ExecuteSell(ctx, "KRW-BTC", decimal.NewFromInt(1000), "k2")
	require.NoError(t, err)
	require.Equal(t, SideSell, trade.Side)
	require.True(t, trade.Total.Equal(decimal.NewFromInt(110_000)))
	require.True(t, trade.Commission.Equal(decimal.NewFromInt(110)))

	cash, err := p.GetBalance(ctx, "KRW")
	require.NoError(t, err)
	require.True(t, cash.Total.Equal(decimal.NewFromInt(1_009_790)), "cash %s", cash.Total)

	btc, err := p.GetBalance(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, btc.Total.IsZero())
}

func TestPaperSellZeroAmountSellsEverything(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(50_000), "k1")
	require.NoError(t, err)

	trade, err := p.ExecuteSell(ctx, "KRW-BTC", decimal.Zero, "k2")
	require.NoError(t, err)
	require.True(t, trade.Amount.Equal(decimal.NewFromInt(500)), "amount %s", trade.Amount)

	btc, err := p.GetBalance(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, btc.Total.IsZero())
}

func TestPaperDuplicateIdempotencyKeyRejected(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(10_000), "dup")
	require.NoError(t, err)

	_, err = p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(10_000), "dup")
	require.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestPaperInsufficientFundsRejected(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(2_000_000), "k1")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = p.ExecuteSell(ctx, "KRW-BTC", decimal.NewFromInt(1), "k2")
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPaperWeightedAverageEntryPrice(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(100), "k1")
	require.NoError(t, err)

	p.SetPrice("KRW-BTC", decimal.NewFromInt(200))
	_, err = p.ExecuteBuy(ctx, "KRW-BTC", decimal.NewFromInt(100), "k2")
	require.NoError(t, err)

	// 1 unit at 100 plus 0.5 units at 200 averages to 400/3.
	btc, err := p.GetBalance(ctx, "BTC")
	require.NoError(t, err)
	want := decimal.NewFromInt(400).Div(decimal.NewFromInt(3))
	require.True(t, btc.AvgBuyPrice.Sub(want).Abs().LessThan(decimal.NewFromFloat(1e-9)),
		"avg %s", btc.AvgBuyPrice)
}

func TestPaperUnknownTicker(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.GetCurrentPrice(ctx, "KRW-DOGE")
	require.ErrorIs(t, err, ErrUnknownTicker)

	_, err = p.ExecuteBuy(ctx, "KRW-DOGE", decimal.NewFromInt(10_000), "k1")
	require.ErrorIs(t, err, ErrUnknownTicker)
}
