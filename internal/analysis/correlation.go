package analysis

import (
	"math"

	"upbit-trading-bot/internal/market"
)

// MarketRisk classifies the reference asset's regime
type MarketRisk string

const (
	RiskLow    MarketRisk = "low"
	RiskMedium MarketRisk = "medium"
	RiskHigh   MarketRisk = "high"
)

// Correlation relates the ticker to the reference asset over ~30 days
type Correlation struct {
	Beta       float64    `json:"beta"`
	Alpha      float64    `json:"alpha"` // daily, fraction
	Pearson    float64    `json:"pearson"`
	MarketRisk MarketRisk `json:"market_risk"`
}

const correlationWindow = 30

// ComputeCorrelation regresses the ticker's daily returns on the reference
// asset's and classifies market risk from the reference's own drawdown and
// volatility. Both series must be daily and should overlap.
func ComputeCorrelation(ticker, reference *market.Series) (Correlation, bool) {
	out := Correlation{MarketRisk: RiskMedium}
	tr := dailyReturns(ticker, correlationWindow)
	rr := dailyReturns(reference, correlationWindow)
	if len(tr) < 10 || len(tr) != len(rr) {
		return out, false
	}

	tm, rm := mean(tr), mean(rr)
	var cov, varR, varT float64
	for i := range tr {
		cov += (tr[i] - tm) * (rr[i] - rm)
		varR += (rr[i] - rm) * (rr[i] - rm)
		varT += (tr[i] - tm) * (tr[i] - tm)
	}
	if varR > 0 {
		out.Beta = cov / varR
		out.Alpha = tm - out.Beta*rm
	}
	if varR > 0 && varT > 0 {
		out.Pearson = cov / math.Sqrt(varR*varT)
	}
	out.MarketRisk = classifyMarketRisk(reference, rr)
	return out, true
}

// classifyMarketRisk is driven by the reference asset alone: deep recent
// drawdown or elevated daily volatility pushes the regime to high.
func classifyMarketRisk(reference *market.Series, returns []float64) MarketRisk {
	dd := recentDrawdown(reference, correlationWindow)
	_, vol := meanStd(returns)

	switch {
	case dd >= 0.15 || vol >= 0.05:
		return RiskHigh
	case dd >= 0.08 || vol >= 0.03:
		return RiskMedium
	default:
		return RiskLow
	}
}

// recentDrawdown is the fall from the window's high to the latest close
func recentDrawdown(s *market.Series, window int) float64 {
	if s == nil || s.Len() == 0 {
		return 0
	}
	candles := s.Candles
	if len(candles) > window {
		candles = candles[len(candles)-window:]
	}
	peak := 0.0
	for _, c := range candles {
		if c.High > peak {
			peak = c.High
		}
	}
	if peak <= 0 {
		return 0
	}
	return (peak - candles[len(candles)-1].Close) / peak
}

// dailyReturns yields up to window close-to-close returns from the tail
func dailyReturns(s *market.Series, window int) []float64 {
	if s == nil || s.Len() < 2 {
		return nil
	}
	candles := s.Candles
	if len(candles) > window+1 {
		candles = candles[len(candles)-window-1:]
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanStd(xs []float64) (float64, float64) {
	m := mean(xs)
	if len(xs) == 0 {
		return 0, 0
	}
	var v float64
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return m, math.Sqrt(v / float64(len(xs)))
}
