package scanner

import (
	"context"
	"sort"
	"strings"
	"sync"

	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/market"
)

// Symbols that are pegged or synthetic and never worth breakout-trading.
var stablecoinSymbols = map[string]bool{
	"USDT": true, "USDC": true, "DAI": true, "TUSD": true, "BUSD": true,
	"USDP": true, "FDUSD": true, "WBTC": true,
}

var leverageSuffixes = []string{"UP", "DOWN", "BULL", "BEAR", "3L", "3S", "2L", "2S"}

// isStablecoin reports whether the symbol is a pegged asset
func isStablecoin(symbol string) bool {
	return stablecoinSymbols[strings.ToUpper(symbol)]
}

// isLeverageToken matches exchange-listed leveraged products by suffix
func isLeverageToken(symbol string) bool {
	up := strings.ToUpper(symbol)
	for _, suf := range leverageSuffixes {
		if strings.HasSuffix(up, suf) && len(up) > len(suf) {
			return true
		}
	}
	return false
}

// scanLiquidity is phase 1: pull all market summaries, drop pegged and
// leveraged symbols and held tickers, require minimum 24h quote volume,
// and keep the top-N by volume
func (s *Scanner) scanLiquidity(ctx context.Context, exclude map[string]bool) ([]*Candidate, error) {
	infos, err := s.client.GetMarketSummaries(ctx)
	if err != nil {
		return nil, err
	}

	var kept []exchange.CoinInfo
	for _, info := range infos {
		switch {
		case exclude[info.Ticker]:
		case isStablecoin(info.Symbol), isLeverageToken(info.Symbol):
		case info.Volume24h < s.cfg.MinVolumeQuote:
		default:
			kept = append(kept, info)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Volume24h > kept[j].Volume24h })
	if len(kept) > s.cfg.LiquidityTopN {
		kept = kept[:s.cfg.LiquidityTopN]
	}
	s.enrichVolatility(ctx, kept)

	out := make([]*Candidate, 0, len(kept))
	for _, info := range kept {
		out = append(out, &Candidate{Ticker: info.Ticker, Coin: info, Sector: sectorOf(info.Symbol)})
	}
	return out, nil
}

// enrichVolatility fills Volatility7d from each survivor's daily candles
// under a bounded semaphore. A failed fetch leaves the field at zero and
// never drops the candidate.
func (s *Scanner) enrichVolatility(ctx context.Context, infos []exchange.CoinInfo) {
	workers := s.cfg.SyncConcurrency
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range infos {
		wg.Add(1)
		go func(info *exchange.CoinInfo) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			daily, err := s.client.GetOHLCV(ctx, info.Ticker, market.Interval1d, 8)
			if err != nil {
				s.logger.Debug().Err(err).Str("ticker", info.Ticker).Msg("volatility enrichment skipped")
				return
			}
			info.Volatility7d = exchange.Volatility7d(daily)
		}(&infos[i])
	}
	wg.Wait()
}
