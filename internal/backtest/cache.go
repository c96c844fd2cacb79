package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

// ConfigHash fingerprints everything that affects backtest metrics:
// execution costs, interval, and strategy parameters. Same hash means the
// cached metrics are reusable.
func ConfigHash(cfg Config, stratCfg strategy.Config, interval market.Interval) string {
	payload := struct {
		Commission float64         `json:"commission"`
		Slippage   float64         `json:"slippage"`
		Model      SlippageModel   `json:"model"`
		NextOpen   bool            `json:"next_open"`
		Intrabar   bool            `json:"intrabar"`
		Interval   market.Interval `json:"interval"`
		Strategy   strategy.Config `json:"strategy"`
	}{cfg.Commission, cfg.Slippage, cfg.SlippageModel, cfg.ExecuteOnNextOpen, cfg.UseIntrabarStops, interval, stratCfg}

	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// MetricsCache holds backtest results keyed by ticker and config hash.
// The scanner creates one per cycle; longer-lived holders must Drop a
// ticker whenever its history changes.
type MetricsCache struct {
	mu      sync.Mutex
	entries map[string]*Result
}

// NewMetricsCache creates an empty cache
func NewMetricsCache() *MetricsCache {
	return &MetricsCache{entries: make(map[string]*Result)}
}

// Get returns the cached result for (ticker, configHash) if present
func (c *MetricsCache) Get(ticker, configHash string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[ticker+"|"+configHash]
	return res, ok
}

// Put stores a result for (ticker, configHash)
func (c *MetricsCache) Put(ticker, configHash string, res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ticker+"|"+configHash] = res
}

// GetOrCompute returns the cached result or runs compute exactly once per
// key, so a scan never backtests the same configuration twice
func (c *MetricsCache) GetOrCompute(ticker, configHash string, compute func() (*Result, error)) (*Result, error) {
	if res, ok := c.Get(ticker, configHash); ok {
		return res, nil
	}
	res, err := compute()
	if err != nil {
		return nil, err
	}
	c.Put(ticker, configHash, res)
	return res, nil
}

// Drop removes every entry for ticker regardless of key. Long-lived holders
// call it before caching under a new key so stale results cannot accumulate.
func (c *MetricsCache) Drop(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, ticker+"|") {
			delete(c.entries, k)
		}
	}
}

// Len reports how many distinct results are cached
func (c *MetricsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
