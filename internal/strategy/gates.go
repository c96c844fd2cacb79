package strategy

import (
	"fmt"
	"math"
)

// evaluateEntry applies the four AND-joined entry gates at bar i
func (b *Breakout) evaluateEntry(f *Frame, i int) *Signal {
	none := &Signal{Action: ActionNone, Ticker: f.Ticker}
	reason := &EntryReason{}

	// Gate 0: trend filter.
	if b.cfg.TrendFilterEnabled {
		ma := at(f.TrendMA, i)
		if !valid(ma) || f.Candles[i].Close <= ma {
			return none
		}
		reason.TrendFilter = fmt.Sprintf("close>ma%d", b.cfg.TrendMAPeriod)
	}

	if clause, ok := b.gateSqueeze(f, i); ok {
		reason.Squeeze = clause
	} else {
		return none
	}

	if clause, grade, ok := b.gateBreakout(f, i); ok {
		reason.Breakout = clause
		reason.BreakoutGrade = grade
	} else {
		return none
	}

	if clause, ok := b.gateVolume(f, i); ok {
		reason.Volume = clause
	} else {
		return none
	}

	price := f.Candles[i].Close
	atr := at(f.ATR, i)
	if !valid(atr) || atr <= 0 {
		return none
	}

	return &Signal{
		Action:     ActionBuy,
		Ticker:     f.Ticker,
		Price:      price,
		StopLoss:   price - b.cfg.ATRStopMultiple*atr,
		TakeProfit: price + b.cfg.ATRTargetMultiple*atr,
		Entry:      reason,
		Timestamp:  f.Candles[i].Timestamp,
	}
}

// gateSqueeze passes when volatility is compressed: a deep recent band-width
// minimum, a band-width dip just before this bar, or low ADX as a
// range-bound proxy.
func (b *Breakout) gateSqueeze(f *Frame, i int) (string, bool) {
	mean := at(f.BBWidthMean, i)
	if !valid(mean) {
		return "", false
	}

	minWidth := math.Inf(1)
	for j := i - b.cfg.SqueezeLookback + 1; j <= i; j++ {
		if w := at(f.BBWidth, j); valid(w) && w < minWidth {
			minWidth = w
		}
	}
	if minWidth < 0.8*mean {
		return "strong_squeeze", true
	}

	if w := at(f.BBWidth, i-1); valid(w) && w < mean {
		return "pre_breakout_squeeze", true
	}
	if w := at(f.BBWidth, i-2); valid(w) && w < mean {
		return "pre_breakout_squeeze", true
	}

	if adx := at(f.ADX, i-1); valid(adx) && adx < 25 {
		return "low_adx", true
	}
	return "", false
}

// gateBreakout passes on a Donchian break of the prior 20-bar high or a
// Larry-Williams range breakout over previous close + K*previous range.
func (b *Breakout) gateBreakout(f *Frame, i int) (string, string, bool) {
	close := f.Candles[i].Close

	var clause string
	var level float64

	if dc := at(f.Donchian, i); valid(dc) && close > dc {
		clause, level = "donchian_break", dc
	} else {
		k := b.cfg.KValue
		if b.cfg.UseDynamicK {
			if dk := at(f.DynamicK, i); valid(dk) {
				k = dk
			}
		}
		prev := f.Candles[i-1]
		target := prev.Close + prev.Range()*k
		if close > target {
			clause, level = "range_break", target
		}
	}
	if clause == "" {
		return "", "", false
	}

	grade := "weak"
	if level > 0 && close > level*1.01 {
		grade = "strong"
	}
	return clause, grade, true
}

// gateVolume passes on a raw volume spike or OBV confirmation; an OBV
// negative divergence against rising price vetoes the gate outright.
func (b *Breakout) gateVolume(f *Frame, i int) (string, bool) {
	// Negative divergence: price up over last 5 bars while OBV falls.
	if i >= 5 {
		priceUp := f.Candles[i].Close > f.Candles[i-5].Close
		obvDown := at(f.OBV, i) < at(f.OBV, i-5)
		if priceUp && obvDown {
			return "", false
		}
	}

	// Mean volume over the previous bars, current bar excluded.
	if prevMean := at(f.VolumeMean, i-1); valid(prevMean) && prevMean > 0 {
		if f.Candles[i].Volume > b.cfg.VolumeMultiplier*prevMean {
			return "volume_spike", true
		}
	}

	obv := at(f.OBV, i)
	ma5 := at(f.OBVMA5, i)
	ma20 := at(f.OBVMA20, i)
	if valid(ma5) && valid(ma20) && obv > ma20 {
		if ma5 > ma20 {
			return "obv_golden_cross", true
		}
		if i >= 5 && obv > at(f.OBV, i-5) {
			return "obv_accumulation", true
		}
	}
	return "", false
}
