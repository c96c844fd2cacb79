package exchange

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"upbit-trading-bot/internal/market"
)

const (
	defaultBaseURL = "https://api.upbit.com/v1"

	// Upbit allows 10 req/s for quotation endpoints; stay under it.
	requestsPerSecond = 8
	requestBurst      = 8

	callTimeout = 10 * time.Second
)

// UpbitConfig holds Upbit client configuration
type UpbitConfig struct {
	AccessKey     string
	SecretKey     string
	BaseURL       string
	QuoteCurrency string        // e.g. "KRW"
	CommissionPct float64       // taker fee, e.g. 0.0005
	IdempotencyTTL time.Duration
}

// UpbitClient is the REST exchange client for the Upbit spot venue
type UpbitClient struct {
	cfg     UpbitConfig
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	ledger  KeyLedger
	log     zerolog.Logger
}

// NewUpbitClient creates an Upbit REST client. The ledger enforces order
// idempotency; passing nil disables the check (paper/tests only).
func NewUpbitClient(cfg UpbitConfig, ledger KeyLedger, log zerolog.Logger) *UpbitClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "KRW"
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 6 * time.Hour
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(callTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upbit",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &UpbitClient{
		cfg:     cfg,
		http:    http,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		ledger:  ledger,
		log:     log.With().Str("component", "upbit").Logger(),
	}
}

// ---------------------------------------------------------------------------
// wire types
// ---------------------------------------------------------------------------

type upbitAccount struct {
	Currency    string `json:"currency"`
	Balance     string `json:"balance"`
	Locked      string `json:"locked"`
	AvgBuyPrice string `json:"avg_buy_price"`
}

type upbitCandle struct {
	Market   string  `json:"market"`
	UTCTime  string  `json:"candle_date_time_utc"`
	Open     float64 `json:"opening_price"`
	High     float64 `json:"high_price"`
	Low      float64 `json:"low_price"`
	Close    float64 `json:"trade_price"`
	Volume   float64 `json:"candle_acc_trade_volume"`
}

type upbitTicker struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
	ChangeRate       float64 `json:"signed_change_rate"`
}

type upbitMarket struct {
	Market string `json:"market"`
}

type upbitOrderbook struct {
	Market string `json:"market"`
	Units  []struct {
		AskPrice float64 `json:"ask_price"`
		BidPrice float64 `json:"bid_price"`
		AskSize  float64 `json:"ask_size"`
		BidSize  float64 `json:"bid_size"`
	} `json:"orderbook_units"`
}

type upbitOrder struct {
	UUID           string `json:"uuid"`
	Market         string `json:"market"`
	Side           string `json:"side"`
	ExecutedVolume string `json:"executed_volume"`
	AvgPrice       string `json:"avg_price"`
	PaidFee        string `json:"paid_fee"`
}

// ---------------------------------------------------------------------------
// quotation endpoints
// ---------------------------------------------------------------------------

// GetCurrentPrice returns the last trade price for a ticker
func (c *UpbitClient) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	var out []upbitTicker
	err := c.get(ctx, "/ticker", map[string]string{"markets": ticker}, &out)
	if err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return decimal.NewFromFloat(out[0].TradePrice), nil
}

// GetOHLCV fetches up to count candles at the requested interval, oldest first
func (c *UpbitClient) GetOHLCV(ctx context.Context, ticker string, interval market.Interval, count int) (*market.Series, error) {
	path, err := candlePath(interval)
	if err != nil {
		return nil, err
	}

	var raw []upbitCandle
	if err := c.get(ctx, path, map[string]string{
		"market": ticker,
		"count":  fmt.Sprintf("%d", count),
	}, &raw); err != nil {
		return nil, fmt.Errorf("fetch candles %s/%s: %w", ticker, interval, err)
	}

	// Upbit returns newest first.
	series := &market.Series{Ticker: ticker, Interval: interval, Candles: make([]market.Candle, 0, len(raw))}
	for i := len(raw) - 1; i >= 0; i-- {
		ts, err := time.Parse("2006-01-02T15:04:05", raw[i].UTCTime)
		if err != nil {
			continue
		}
		series.Candles = append(series.Candles, market.Candle{
			Timestamp: ts.UTC(),
			Open:      raw[i].Open,
			High:      raw[i].High,
			Low:       raw[i].Low,
			Close:     raw[i].Close,
			Volume:    raw[i].Volume,
		})
	}
	market.Validate(series)
	return series, nil
}

// GetOrderbook fetches a top-K depth snapshot
func (c *UpbitClient) GetOrderbook(ctx context.Context, ticker string) (*market.Orderbook, error) {
	var raw []upbitOrderbook
	if err := c.get(ctx, "/orderbook", map[string]string{"markets": ticker}, &raw); err != nil {
		return nil, fmt.Errorf("fetch orderbook %s: %w", ticker, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}

	ob := &market.Orderbook{Ticker: ticker, Timestamp: time.Now().UTC()}
	for _, u := range raw[0].Units {
		ob.Asks = append(ob.Asks, market.OrderbookLevel{Price: u.AskPrice, Volume: u.AskSize})
		ob.Bids = append(ob.Bids, market.OrderbookLevel{Price: u.BidPrice, Volume: u.BidSize})
	}
	return ob, nil
}

// GetMarketSummaries returns 24h stats for every market in the quote currency
func (c *UpbitClient) GetMarketSummaries(ctx context.Context) ([]CoinInfo, error) {
	var markets []upbitMarket
	if err := c.get(ctx, "/market/all", nil, &markets); err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}

	prefix := c.cfg.QuoteCurrency + "-"
	var names []string
	for _, m := range markets {
		if strings.HasPrefix(m.Market, prefix) {
			names = append(names, m.Market)
		}
	}
	sort.Strings(names)

	// /ticker accepts batches of markets in one request.
	const batch = 100
	var out []CoinInfo
	for i := 0; i < len(names); i += batch {
		end := i + batch
		if end > len(names) {
			end = len(names)
		}
		var tickers []upbitTicker
		if err := c.get(ctx, "/ticker", map[string]string{"markets": strings.Join(names[i:end], ",")}, &tickers); err != nil {
			return nil, fmt.Errorf("fetch ticker batch: %w", err)
		}
		for _, t := range tickers {
			out = append(out, CoinInfo{
				Ticker:    t.Market,
				Symbol:    strings.TrimPrefix(t.Market, prefix),
				Price:     t.TradePrice,
				Volume24h: t.AccTradePrice24h,
				Change24h: t.ChangeRate * 100,
			})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// account / order endpoints
// ---------------------------------------------------------------------------

// GetBalance returns the balance for one currency
func (c *UpbitClient) GetBalance(ctx context.Context, currency string) (*BalanceInfo, error) {
	balances, err := c.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	for i := range balances {
		if balances[i].Currency == currency {
			return &balances[i], nil
		}
	}
	return &BalanceInfo{Currency: currency}, nil
}

// GetBalances returns all non-zero account balances
func (c *UpbitClient) GetBalances(ctx context.Context) ([]BalanceInfo, error) {
	var raw []upbitAccount
	if err := c.getAuthed(ctx, "/accounts", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}

	out := make([]BalanceInfo, 0, len(raw))
	for _, a := range raw {
		total, _ := decimal.NewFromString(a.Balance)
		locked, _ := decimal.NewFromString(a.Locked)
		avg, _ := decimal.NewFromString(a.AvgBuyPrice)
		out = append(out, BalanceInfo{
			Currency:    a.Currency,
			Total:       total.Add(locked),
			Available:   total,
			Locked:      locked,
			AvgBuyPrice: avg,
		})
	}
	return out, nil
}

// ExecuteBuy submits a market buy spending quoteAmount of the quote currency
func (c *UpbitClient) ExecuteBuy(ctx context.Context, ticker string, quoteAmount decimal.Decimal, idempotencyKey string) (*TradeResult, error) {
	if err := c.guardIdempotency(ctx, idempotencyKey); err != nil {
		return nil, err
	}
	params := map[string]string{
		"market":     ticker,
		"side":       "bid",
		"ord_type":   "price",
		"price":      quoteAmount.StringFixed(0),
		"identifier": idempotencyKey,
	}
	res, err := c.submitOrder(ctx, params, SideBuy, ticker)
	if err != nil {
		return nil, err
	}
	c.markIdempotency(ctx, idempotencyKey)
	return res, nil
}

// ExecuteSell submits a market sell; zero baseAmount sells the full position
func (c *UpbitClient) ExecuteSell(ctx context.Context, ticker string, baseAmount decimal.Decimal, idempotencyKey string) (*TradeResult, error) {
	if err := c.guardIdempotency(ctx, idempotencyKey); err != nil {
		return nil, err
	}

	if baseAmount.IsZero() {
		symbol := strings.TrimPrefix(ticker, c.cfg.QuoteCurrency+"-")
		bal, err := c.GetBalance(ctx, symbol)
		if err != nil {
			return nil, err
		}
		baseAmount = bal.Available
	}
	if baseAmount.IsZero() {
		return nil, fmt.Errorf("%w: nothing to sell for %s", ErrInsufficientFunds, ticker)
	}

	params := map[string]string{
		"market":     ticker,
		"side":       "ask",
		"ord_type":   "market",
		"volume":     baseAmount.String(),
		"identifier": idempotencyKey,
	}
	res, err := c.submitOrder(ctx, params, SideSell, ticker)
	if err != nil {
		return nil, err
	}
	c.markIdempotency(ctx, idempotencyKey)
	return res, nil
}

func (c *UpbitClient) guardIdempotency(ctx context.Context, key string) error {
	if c.ledger == nil || key == "" {
		return nil
	}
	seen, err := c.ledger.CheckKey(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, key)
	}
	return nil
}

func (c *UpbitClient) markIdempotency(ctx context.Context, key string) {
	if c.ledger == nil || key == "" {
		return
	}
	if err := c.ledger.MarkKey(ctx, key, c.cfg.IdempotencyTTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("failed to mark idempotency key")
	}
}

func (c *UpbitClient) submitOrder(ctx context.Context, params map[string]string, side OrderSide, ticker string) (*TradeResult, error) {
	var order upbitOrder
	if err := c.postAuthed(ctx, "/orders", params, &order); err != nil {
		return nil, fmt.Errorf("submit %s %s: %w", side, ticker, err)
	}

	price, _ := decimal.NewFromString(order.AvgPrice)
	volume, _ := decimal.NewFromString(order.ExecutedVolume)
	fee, _ := decimal.NewFromString(order.PaidFee)

	c.log.Info().Str("ticker", ticker).Str("side", string(side)).
		Str("price", price.String()).Str("amount", volume.String()).
		Msg("order submitted")

	return &TradeResult{
		OrderID:    order.UUID,
		Ticker:     ticker,
		Side:       side,
		Price:      price,
		Amount:     volume,
		Total:      price.Mul(volume),
		Commission: fee,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// ---------------------------------------------------------------------------
// transport
// ---------------------------------------------------------------------------

func (c *UpbitClient) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return c.call(ctx, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetQueryParams(params).SetResult(out).Get(path)
	})
}

func (c *UpbitClient) getAuthed(ctx context.Context, path string, params map[string]string, out interface{}) error {
	token, err := c.authToken(params)
	if err != nil {
		return err
	}
	return c.call(ctx, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetQueryParams(params).
			SetHeader("Authorization", "Bearer "+token).SetResult(out).Get(path)
	})
}

func (c *UpbitClient) postAuthed(ctx context.Context, path string, params map[string]string, out interface{}) error {
	token, err := c.authToken(params)
	if err != nil {
		return err
	}
	return c.call(ctx, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetBody(params).
			SetHeader("Authorization", "Bearer "+token).SetResult(out).Post(path)
	})
}

func (c *UpbitClient) call(ctx context.Context, do func() (*resty.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := do()
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("upbit returned %d: %s", resp.StatusCode(), resp.String())
		}
		return nil, nil
	})
	return err
}

// authToken builds the JWT Upbit expects: access key, a nonce, and a SHA512
// hash of the sorted query string when parameters are present.
func (c *UpbitClient) authToken(params map[string]string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.cfg.AccessKey,
		"nonce":      uuid.NewString(),
	}
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		hash := sha512.Sum512([]byte(values.Encode()))
		claims["query_hash"] = hex.EncodeToString(hash[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.cfg.SecretKey))
}

func candlePath(interval market.Interval) (string, error) {
	switch interval {
	case market.Interval1m:
		return "/candles/minutes/1", nil
	case market.Interval15m:
		return "/candles/minutes/15", nil
	case market.Interval60m:
		return "/candles/minutes/60", nil
	case market.Interval1d:
		return "/candles/days", nil
	case market.Interval1w:
		return "/candles/weeks", nil
	default:
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
}

// Volatility7d computes a 7-day ATR-based volatility percentage from a daily
// series; used by the scanner's liquidity enrichment.
func Volatility7d(s *market.Series) float64 {
	if s.Len() < 8 {
		return 0
	}
	sum := 0.0
	candles := s.Tail(8)
	for i := 1; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := math.Max(candles[i].High-candles[i].Low,
			math.Max(math.Abs(candles[i].High-prevClose), math.Abs(candles[i].Low-prevClose)))
		if prevClose > 0 {
			sum += tr / prevClose
		}
	}
	return sum / 7 * 100
}
