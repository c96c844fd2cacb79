package strategy

// PositionSize computes the quote-currency amount to commit for an entry.
// It risks RiskPerTrade of equity against the stop distance, clamps the
// per-trade price risk into [1.5%, 5%], and bounds the resulting notional
// between MinPositionPct and MaxPositionPct of equity. Degenerate inputs
// fall back to FallbackPositionPct of equity.
func (b *Breakout) PositionSize(equity, entryPrice, stopLoss float64) float64 {
	if equity <= 0 {
		return 0
	}
	fallback := equity * b.cfg.FallbackPositionPct
	if entryPrice <= 0 || stopLoss <= 0 || stopLoss >= entryPrice {
		return fallback
	}

	priceRisk := (entryPrice - stopLoss) / entryPrice
	if priceRisk < 0.015 {
		priceRisk = 0.015
	} else if priceRisk > 0.05 {
		priceRisk = 0.05
	}

	notional := equity * b.cfg.RiskPerTrade / priceRisk

	min := equity * b.cfg.MinPositionPct
	max := equity * b.cfg.MaxPositionPct
	if notional < min {
		notional = min
	} else if notional > max {
		notional = max
	}
	return notional
}
