package analysis

import (
	"math"

	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
)

// DivergenceType classifies the price/RSI relationship
type DivergenceType string

const (
	DivergenceNone    DivergenceType = "none"
	DivergenceBullish DivergenceType = "bullish_divergence"
	DivergenceBearish DivergenceType = "bearish_divergence"
)

// Divergence is the detector outcome over the last 20 bars
type Divergence struct {
	Type       DivergenceType `json:"type"`
	Confidence string         `json:"confidence,omitempty"` // "high" or "medium"
	PriceIdx   [2]int         `json:"price_idx,omitempty"`
	RSIIdx     [2]int         `json:"rsi_idx,omitempty"`
}

const divergenceWindow = 20

// DetectDivergence looks for the classic price/RSI disagreement: rising
// price peaks with falling RSI peaks (bearish) or falling price troughs
// with rising RSI troughs (bullish). Peak pairs closer than 3 bars apart
// count as high confidence.
func DetectDivergence(s *market.Series) Divergence {
	if s == nil || s.Len() < divergenceWindow+15 {
		return Divergence{Type: DivergenceNone}
	}

	rsi := indicator.RSI(s.Closes(), 14)
	start := s.Len() - divergenceWindow

	closes := make([]float64, divergenceWindow)
	rsis := make([]float64, divergenceWindow)
	for i := 0; i < divergenceWindow; i++ {
		closes[i] = s.Candles[start+i].Close
		rsis[i] = rsi[start+i]
	}
	for _, v := range rsis {
		if math.IsNaN(v) {
			return Divergence{Type: DivergenceNone}
		}
	}

	pricePeaks := localExtrema(closes, true)
	priceTroughs := localExtrema(closes, false)
	rsiPeaks := localExtrema(rsis, true)
	rsiTroughs := localExtrema(rsis, false)

	// Bearish: last two price peaks rising, matching RSI peaks falling.
	if pp, rp, ok := pairedExtrema(closes, rsis, pricePeaks, rsiPeaks); ok {
		if closes[pp[1]] > closes[pp[0]] && rsis[rp[1]] < rsis[rp[0]] {
			return Divergence{
				Type:       DivergenceBearish,
				Confidence: confidence(pp, rp),
				PriceIdx:   pp,
				RSIIdx:     rp,
			}
		}
	}

	// Bullish: last two price troughs falling, matching RSI troughs rising.
	if pt, rt, ok := pairedExtrema(closes, rsis, priceTroughs, rsiTroughs); ok {
		if closes[pt[1]] < closes[pt[0]] && rsis[rt[1]] > rsis[rt[0]] {
			return Divergence{
				Type:       DivergenceBullish,
				Confidence: confidence(pt, rt),
				PriceIdx:   pt,
				RSIIdx:     rt,
			}
		}
	}
	return Divergence{Type: DivergenceNone}
}

// localExtrema returns indices of strict local maxima or minima
func localExtrema(xs []float64, peaks bool) []int {
	var out []int
	for i := 1; i < len(xs)-1; i++ {
		if peaks && xs[i] > xs[i-1] && xs[i] > xs[i+1] {
			out = append(out, i)
		}
		if !peaks && xs[i] < xs[i-1] && xs[i] < xs[i+1] {
			out = append(out, i)
		}
	}
	return out
}

// pairedExtrema takes the last two extrema on each side when both series
// have at least two
func pairedExtrema(_, _ []float64, price, rsi []int) ([2]int, [2]int, bool) {
	if len(price) < 2 || len(rsi) < 2 {
		return [2]int{}, [2]int{}, false
	}
	pp := [2]int{price[len(price)-2], price[len(price)-1]}
	rp := [2]int{rsi[len(rsi)-2], rsi[len(rsi)-1]}
	return pp, rp, true
}

func confidence(price, rsi [2]int) string {
	d0 := absInt(price[0] - rsi[0])
	d1 := absInt(price[1] - rsi[1])
	if d0 < 3 && d1 < 3 {
		return "high"
	}
	return "medium"
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
