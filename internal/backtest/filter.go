package backtest

import (
	"fmt"
	"math"
	"strings"
)

// Thresholds is one tier of the quality filter, all minimums unless the
// field name says Max
type Thresholds struct {
	MinTotalReturnPct       float64 `json:"min_total_return_pct" yaml:"min_total_return_pct"`
	MinWinRatePct           float64 `json:"min_win_rate_pct" yaml:"min_win_rate_pct"`
	MinProfitFactor         float64 `json:"min_profit_factor" yaml:"min_profit_factor"`
	MinSharpeRatio          float64 `json:"min_sharpe_ratio" yaml:"min_sharpe_ratio"`
	MinSortinoRatio         float64 `json:"min_sortino_ratio" yaml:"min_sortino_ratio"`
	MinCalmarRatio          float64 `json:"min_calmar_ratio" yaml:"min_calmar_ratio"`
	MaxDrawdownPct          float64 `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	MaxConsecutiveLosses    int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	MaxVolatilityPct        float64 `json:"max_volatility_pct" yaml:"max_volatility_pct"`
	MinTrades               int     `json:"min_trades" yaml:"min_trades"`
	MinWinLossRatio         float64 `json:"min_win_loss_ratio" yaml:"min_win_loss_ratio"`
	MaxAvgHoldingHours      float64 `json:"max_avg_holding_hours" yaml:"max_avg_holding_hours"`
}

// ResearchThresholds is the loose tier that qualifies a coin for AI review
func ResearchThresholds() Thresholds {
	return Thresholds{
		MinTotalReturnPct:    8,
		MinWinRatePct:        30,
		MinProfitFactor:      1.3,
		MinSharpeRatio:       0.4,
		MinSortinoRatio:      0.5,
		MinCalmarRatio:       0.25,
		MaxDrawdownPct:       30,
		MaxConsecutiveLosses: 8,
		MaxVolatilityPct:     100,
		MinTrades:            20,
		MinWinLossRatio:      1.0,
		MaxAvgHoldingHours:   336,
	}
}

// TradingThresholds is the strict tier that authorises real capital
func TradingThresholds() Thresholds {
	return Thresholds{
		MinTotalReturnPct:    12,
		MinWinRatePct:        35,
		MinProfitFactor:      1.5,
		MinSharpeRatio:       0.7,
		MinSortinoRatio:      0.9,
		MinCalmarRatio:       0.5,
		MaxDrawdownPct:       25,
		MaxConsecutiveLosses: 6,
		MaxVolatilityPct:     75,
		MinTrades:            25,
		MinWinLossRatio:      1.2,
		MaxAvgHoldingHours:   240,
	}
}

// FilterConfig pairs both tiers plus the expectancy cost input
type FilterConfig struct {
	Research Thresholds `json:"research" yaml:"research"`
	Trading  Thresholds `json:"trading" yaml:"trading"`
	CostPct  float64    `json:"cost_pct" yaml:"cost_pct"` // round-trip commission+slippage, fraction
}

// DefaultFilterConfig returns both default tiers with a 0.3% round-trip cost
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Research: ResearchThresholds(),
		Trading:  TradingThresholds(),
		CostPct:  0.003,
	}
}

// TierResult is the per-gate outcome against one tier
type TierResult struct {
	Passed  bool            `json:"passed"`
	Gates   map[string]bool `json:"gates"`
	Reasons []string        `json:"reasons,omitempty"`
}

// FilterResult is the full two-tier verdict for one metrics bundle
type FilterResult struct {
	Research         TierResult `json:"research"`
	Trading          TierResult `json:"trading"`
	ExpectancyPassed bool       `json:"expectancy_passed"`
	ExpectancyNet    float64    `json:"expectancy_net"`
	// ResearchableOnly means the coin may be reported and discussed but
	// must never be bought.
	ResearchableOnly bool   `json:"researchable_only"`
	Reason           string `json:"reason"`
}

// Tradeable reports whether the metrics clear the strict tier and expectancy
func (r FilterResult) Tradeable() bool {
	return r.Trading.Passed && r.ExpectancyPassed
}

// Researchable reports whether the metrics clear at least the loose tier
func (r FilterResult) Researchable() bool {
	return r.Research.Passed
}

// Evaluate runs the metrics through both tiers and the expectancy filter
func (c FilterConfig) Evaluate(m Metrics) FilterResult {
	res := FilterResult{
		Research: evalTier(m, c.Research),
		Trading:  evalTier(m, c.Trading),
	}
	res.ExpectancyNet, res.ExpectancyPassed = Expectancy(m, c.CostPct)
	if !res.ExpectancyPassed {
		res.Trading.Passed = false
		res.Trading.Reasons = append(res.Trading.Reasons, fmt.Sprintf("expectancy %.3f <= 0", res.ExpectancyNet))
	}
	res.ResearchableOnly = res.Research.Passed && !res.Trading.Passed

	switch {
	case res.Trading.Passed:
		res.Reason = "trading pass"
	case res.ResearchableOnly:
		res.Reason = "research only: " + strings.Join(res.Trading.Reasons, "; ")
	default:
		res.Reason = "fail: " + strings.Join(res.Research.Reasons, "; ")
	}
	return res
}

func evalTier(m Metrics, t Thresholds) TierResult {
	r := TierResult{Gates: make(map[string]bool, 12), Passed: true}
	check := func(name string, ok bool, detail string) {
		r.Gates[name] = ok
		if !ok {
			r.Passed = false
			r.Reasons = append(r.Reasons, detail)
		}
	}

	check("total_return", m.TotalReturnPct >= t.MinTotalReturnPct,
		fmt.Sprintf("return %.1f%% < %.1f%%", m.TotalReturnPct, t.MinTotalReturnPct))
	check("win_rate", m.WinRatePct >= t.MinWinRatePct,
		fmt.Sprintf("win rate %.1f%% < %.1f%%", m.WinRatePct, t.MinWinRatePct))
	check("profit_factor", m.ProfitFactor >= t.MinProfitFactor,
		fmt.Sprintf("profit factor %.2f < %.2f", m.ProfitFactor, t.MinProfitFactor))
	check("sharpe", m.SharpeRatio >= t.MinSharpeRatio,
		fmt.Sprintf("sharpe %.2f < %.2f", m.SharpeRatio, t.MinSharpeRatio))
	check("sortino", m.SortinoRatio >= t.MinSortinoRatio,
		fmt.Sprintf("sortino %.2f < %.2f", m.SortinoRatio, t.MinSortinoRatio))
	check("calmar", m.CalmarRatio >= t.MinCalmarRatio,
		fmt.Sprintf("calmar %.2f < %.2f", m.CalmarRatio, t.MinCalmarRatio))
	check("drawdown", m.MaxDrawdownPct <= t.MaxDrawdownPct,
		fmt.Sprintf("drawdown %.1f%% > %.1f%%", m.MaxDrawdownPct, t.MaxDrawdownPct))
	check("consecutive_losses", m.MaxConsecutiveLosses <= t.MaxConsecutiveLosses,
		fmt.Sprintf("loss streak %d > %d", m.MaxConsecutiveLosses, t.MaxConsecutiveLosses))
	check("volatility", m.VolatilityPct <= t.MaxVolatilityPct,
		fmt.Sprintf("volatility %.1f%% > %.1f%%", m.VolatilityPct, t.MaxVolatilityPct))
	check("trades", m.TotalTrades >= t.MinTrades,
		fmt.Sprintf("trades %d < %d", m.TotalTrades, t.MinTrades))

	wl := winLossRatio(m)
	check("win_loss_ratio", wl >= t.MinWinLossRatio,
		fmt.Sprintf("win/loss %.2f < %.2f", wl, t.MinWinLossRatio))
	check("holding", m.AvgHoldingHours <= t.MaxAvgHoldingHours,
		fmt.Sprintf("holding %.0fh > %.0fh", m.AvgHoldingHours, t.MaxAvgHoldingHours))
	return r
}

// Expectancy computes net edge per unit risked after costs:
// net = (p*R - (1-p)) - cost_R, positive means the system has an edge.
func Expectancy(m Metrics, costPct float64) (net float64, ok bool) {
	if m.AvgLossPct >= 0 || m.WinRatePct <= 0 {
		return 0, false
	}
	p := m.WinRatePct / 100
	avgLoss := math.Abs(m.AvgLossPct) / 100
	r := (m.AvgWinPct / 100) / avgLoss
	costR := costPct / math.Max(avgLoss, 0.002)
	net = (p*r - (1 - p)) - costR
	return net, net > 0
}

// MinAcceptableR returns the reward multiple a system must earn per unit
// risked, given its win rate and costs, with a 0.05 safety margin
func MinAcceptableR(winRate, costR float64) float64 {
	if winRate <= 0 {
		return math.Inf(1)
	}
	return ((1 - winRate) + costR + 0.05) / winRate
}

func winLossRatio(m Metrics) float64 {
	if m.AvgLossPct == 0 {
		if m.AvgWinPct > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return m.AvgWinPct / math.Abs(m.AvgLossPct)
}
