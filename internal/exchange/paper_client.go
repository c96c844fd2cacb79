package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/market"
)

// PaperClient simulates the exchange port in memory. It is used for dry-run
// mode and in tests: balances mutate on fills, duplicate idempotency keys are
// rejected, and market data is whatever was loaded into it.
type PaperClient struct {
	mu sync.RWMutex

	quoteCurrency string
	commission    decimal.Decimal
	balances      map[string]decimal.Decimal // currency -> amount
	avgBuyPrice   map[string]decimal.Decimal
	series        map[string]*market.Series // ticker|interval -> series
	orderbooks    map[string]*market.Orderbook
	prices        map[string]decimal.Decimal
	summaries     []CoinInfo
	usedKeys      map[string]time.Time
	keyTTL        time.Duration
}

// NewPaperClient creates a paper client holding initialCash of quote currency
func NewPaperClient(quoteCurrency string, initialCash decimal.Decimal, commissionPct float64) *PaperClient {
	return &PaperClient{
		quoteCurrency: quoteCurrency,
		commission:    decimal.NewFromFloat(commissionPct),
		balances:      map[string]decimal.Decimal{quoteCurrency: initialCash},
		avgBuyPrice:   make(map[string]decimal.Decimal),
		series:        make(map[string]*market.Series),
		orderbooks:    make(map[string]*market.Orderbook),
		prices:        make(map[string]decimal.Decimal),
		usedKeys:      make(map[string]time.Time),
		keyTTL:        6 * time.Hour,
	}
}

// LoadSeries injects candle data for a ticker/interval
func (p *PaperClient) LoadSeries(s *market.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[seriesKey(s.Ticker, s.Interval)] = s
	if last, err := s.Last(); err == nil {
		p.prices[s.Ticker] = decimal.NewFromFloat(last.Close)
	}
}

// LoadOrderbook injects an orderbook snapshot
func (p *PaperClient) LoadOrderbook(ob *market.Orderbook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderbooks[ob.Ticker] = ob
}

// LoadSummaries injects liquidity-scan market summaries
func (p *PaperClient) LoadSummaries(infos []CoinInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = infos
}

// SetPrice overrides the current price for a ticker
func (p *PaperClient) SetPrice(ticker string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[ticker] = price
}

// SetBalance sets a currency balance directly
func (p *PaperClient) SetBalance(currency string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[currency] = amount
}

// GetBalance returns the balance for one currency
func (p *PaperClient) GetBalance(ctx context.Context, currency string) (*BalanceInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bal := p.balances[currency]
	return &BalanceInfo{
		Currency:    currency,
		Total:       bal,
		Available:   bal,
		AvgBuyPrice: p.avgBuyPrice[currency],
	}, nil
}

// GetBalances returns all non-zero balances
func (p *PaperClient) GetBalances(ctx context.Context) ([]BalanceInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]BalanceInfo, 0, len(p.balances))
	for cur, bal := range p.balances {
		if bal.IsZero() {
			continue
		}
		out = append(out, BalanceInfo{
			Currency:    cur,
			Total:       bal,
			Available:   bal,
			AvgBuyPrice: p.avgBuyPrice[cur],
		})
	}
	return out, nil
}

// GetCurrentPrice returns the loaded price for a ticker
func (p *PaperClient) GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return price, nil
}

// GetOHLCV returns the tail of the loaded series
func (p *PaperClient) GetOHLCV(ctx context.Context, ticker string, interval market.Interval, count int) (*market.Series, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.series[seriesKey(ticker, interval)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTicker, ticker, interval)
	}
	return &market.Series{Ticker: ticker, Interval: interval, Candles: s.Tail(count)}, nil
}

// GetOrderbook returns the loaded snapshot
func (p *PaperClient) GetOrderbook(ctx context.Context, ticker string) (*market.Orderbook, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ob, ok := p.orderbooks[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	return ob, nil
}

// GetMarketSummaries returns the loaded summaries
func (p *PaperClient) GetMarketSummaries(ctx context.Context) ([]CoinInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.summaries, nil
}

// ExecuteBuy fills a market buy at the current price
func (p *PaperClient) ExecuteBuy(ctx context.Context, ticker string, quoteAmount decimal.Decimal, idempotencyKey string) (*TradeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkKey(idempotencyKey); err != nil {
		return nil, err
	}
	price, ok := p.prices[ticker]
	if !ok || price.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}

	cash := p.balances[p.quoteCurrency]
	fee := quoteAmount.Mul(p.commission)
	if cash.LessThan(quoteAmount.Add(fee)) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, quoteAmount.Add(fee), cash)
	}

	amount := quoteAmount.Div(price)
	symbol := baseSymbol(ticker, p.quoteCurrency)

	// Weighted-average entry price across fills, like a real account.
	held := p.balances[symbol]
	if held.IsPositive() {
		prevCost := held.Mul(p.avgBuyPrice[symbol])
		p.avgBuyPrice[symbol] = prevCost.Add(quoteAmount).Div(held.Add(amount))
	} else {
		p.avgBuyPrice[symbol] = price
	}
	p.balances[p.quoteCurrency] = cash.Sub(quoteAmount).Sub(fee)
	p.balances[symbol] = held.Add(amount)
	p.markKey(idempotencyKey)

	return &TradeResult{
		OrderID:    uuid.NewString(),
		Ticker:     ticker,
		Side:       SideBuy,
		Price:      price,
		Amount:     amount,
		Total:      quoteAmount,
		Commission: fee,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// ExecuteSell fills a market sell at the current price
func (p *PaperClient) ExecuteSell(ctx context.Context, ticker string, baseAmount decimal.Decimal, idempotencyKey string) (*TradeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkKey(idempotencyKey); err != nil {
		return nil, err
	}
	price, ok := p.prices[ticker]
	if !ok || price.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}

	symbol := baseSymbol(ticker, p.quoteCurrency)
	held := p.balances[symbol]
	if baseAmount.IsZero() {
		baseAmount = held
	}
	if held.LessThan(baseAmount) || baseAmount.IsZero() {
		return nil, fmt.Errorf("%w: hold %s of %s", ErrInsufficientFunds, held, symbol)
	}

	total := baseAmount.Mul(price)
	fee := total.Mul(p.commission)
	p.balances[symbol] = held.Sub(baseAmount)
	if p.balances[symbol].IsZero() {
		delete(p.avgBuyPrice, symbol)
	}
	p.balances[p.quoteCurrency] = p.balances[p.quoteCurrency].Add(total).Sub(fee)
	p.markKey(idempotencyKey)

	return &TradeResult{
		OrderID:    uuid.NewString(),
		Ticker:     ticker,
		Side:       SideSell,
		Price:      price,
		Amount:     baseAmount,
		Total:      total,
		Commission: fee,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func (p *PaperClient) checkKey(key string) error {
	if key == "" {
		return nil
	}
	if exp, ok := p.usedKeys[key]; ok && time.Now().Before(exp) {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, key)
	}
	return nil
}

func (p *PaperClient) markKey(key string) {
	if key != "" {
		p.usedKeys[key] = time.Now().Add(p.keyTTL)
	}
}

func seriesKey(ticker string, interval market.Interval) string {
	return ticker + "|" + string(interval)
}

func baseSymbol(ticker, quote string) string {
	if len(ticker) > len(quote)+1 && ticker[:len(quote)+1] == quote+"-" {
		return ticker[len(quote)+1:]
	}
	return ticker
}
