package backtest

import (
	"math"
	"time"
)

// Metrics is the performance bundle the filter and scanner consume.
// Percentages are expressed as 0..100, ratios as raw values.
type Metrics struct {
	TotalReturnPct       float64 `json:"total_return_pct"`
	WinRatePct           float64 `json:"win_rate_pct"`
	ProfitFactor         float64 `json:"profit_factor"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	CalmarRatio          float64 `json:"calmar_ratio"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"` // positive magnitude
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	VolatilityPct        float64 `json:"volatility_pct"` // 30-day return volatility
	TotalTrades          int     `json:"total_trades"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	AvgWinPct            float64 `json:"avg_win_pct"`
	AvgLossPct           float64 `json:"avg_loss_pct"` // negative
	AvgHoldingHours      float64 `json:"avg_holding_hours"`
}

// ComputeMetrics derives the full bundle from closed trades and the curve
func ComputeMetrics(initial, final float64, trades []Trade, curve []EquityPoint) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if initial > 0 {
		m.TotalReturnPct = (final - initial) / initial * 100
	}
	if len(trades) == 0 {
		return m
	}

	var grossWin, grossLoss float64
	var winPctSum, lossPctSum float64
	var holding time.Duration
	streak, maxStreak := 0, 0
	returns := make([]float64, len(trades))

	for i, t := range trades {
		returns[i] = t.PnlPct
		holding += t.HoldingPeriod
		if t.Pnl > 0 {
			m.WinningTrades++
			grossWin += t.Pnl
			winPctSum += t.PnlPct
			streak = 0
		} else {
			m.LosingTrades++
			grossLoss += -t.Pnl
			lossPctSum += t.PnlPct
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		}
	}

	m.WinRatePct = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	m.MaxConsecutiveLosses = maxStreak
	m.AvgHoldingHours = holding.Hours() / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWinPct = winPctSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLossPct = lossPctSum / float64(m.LosingTrades)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	mean, std := meanStd(returns)
	if std > 0 {
		m.SharpeRatio = mean / std
	}
	if down := downsideDev(returns); down > 0 {
		m.SortinoRatio = mean / down
	} else if mean > 0 {
		m.SortinoRatio = math.Inf(1)
	}

	m.MaxDrawdownPct = maxDrawdown(initial, curve)
	if m.MaxDrawdownPct > 0 {
		m.CalmarRatio = m.TotalReturnPct / m.MaxDrawdownPct
	}

	// Scale per-trade volatility to a 30-day horizon using the observed
	// trade frequency.
	if std > 0 && m.AvgHoldingHours > 0 {
		tradesPerMonth := 30 * 24 / m.AvgHoldingHours
		m.VolatilityPct = std * math.Sqrt(tradesPerMonth)
	}
	return m
}

// maxDrawdown walks the curve from initial capital, returning the deepest
// peak-to-trough fall as a positive percentage
func maxDrawdown(initial float64, curve []EquityPoint) float64 {
	peak := initial
	var worst float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(len(xs)))
}

// downsideDev is the root mean square of negative returns only
func downsideDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		if x < 0 {
			sum += x * x
		}
	}
	return math.Sqrt(sum / float64(len(xs)))
}
