package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/market"
)

// Errors surfaced by exchange clients
var (
	ErrDuplicateOrder    = errors.New("duplicate idempotency key within TTL")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownTicker     = errors.New("unknown ticker")
)

// BalanceInfo is a per-currency account balance
type BalanceInfo struct {
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	Available   decimal.Decimal `json:"available"`
	Locked      decimal.Decimal `json:"locked"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

// OrderSide is the side of a trade
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// TradeResult is the fill report for a submitted market order
type TradeResult struct {
	OrderID    string          `json:"order_id"`
	Ticker     string          `json:"ticker"`
	Side       OrderSide       `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"` // base-asset quantity
	Total      decimal.Decimal `json:"total"`  // quote-currency notional
	Commission decimal.Decimal `json:"commission"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// CoinInfo is one ticker's 24h market summary from the liquidity scan
type CoinInfo struct {
	Ticker       string  `json:"ticker"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Volume24h    float64 `json:"volume_24h"` // quote-currency volume
	Change24h    float64 `json:"change_24h"` // percent
	Volatility7d float64 `json:"volatility_7d"`
}

// Client is the exchange port the pipeline consumes. Implementations own
// their HTTP details, retries and the idempotency ledger; callers see one
// clean result or error per call.
type Client interface {
	GetBalance(ctx context.Context, currency string) (*BalanceInfo, error)
	GetBalances(ctx context.Context) ([]BalanceInfo, error)
	GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	GetOHLCV(ctx context.Context, ticker string, interval market.Interval, count int) (*market.Series, error)
	GetOrderbook(ctx context.Context, ticker string) (*market.Orderbook, error)
	GetMarketSummaries(ctx context.Context) ([]CoinInfo, error)

	// ExecuteBuy spends quoteAmount of the quote currency at market.
	// ExecuteSell sells baseAmount of the base asset; a zero baseAmount
	// means "sell everything held". Both reject duplicate idempotency keys
	// within the ledger TTL with ErrDuplicateOrder.
	ExecuteBuy(ctx context.Context, ticker string, quoteAmount decimal.Decimal, idempotencyKey string) (*TradeResult, error)
	ExecuteSell(ctx context.Context, ticker string, baseAmount decimal.Decimal, idempotencyKey string) (*TradeResult, error)
}

// KeyLedger is the idempotency port consulted before every order submission
type KeyLedger interface {
	CheckKey(ctx context.Context, key string) (bool, error)
	MarkKey(ctx context.Context, key string, ttl time.Duration) error
}

// FearGreedClient is the optional market-data port
type FearGreedClient interface {
	GetFearGreedIndex(ctx context.Context) (*market.FearGreed, error)
}
