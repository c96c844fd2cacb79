package indicator

import (
	"math"

	"upbit-trading-bot/internal/market"
)

// All series functions return one value per input bar, aligned by index with
// the source candles. Bars inside the warmup window are NaN. Keeping the
// columns index-aligned (not timestamp-keyed) makes look-ahead impossible:
// a value at index i only ever depends on bars [0, i].

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates a simple moving average series
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates an exponential moving average series seeded with an SMA
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RollingMax calculates the rolling maximum over the trailing window
func RollingMax(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		m := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if values[j] > m {
				m = values[j]
			}
		}
		out[i] = m
	}
	return out
}

// RollingMin calculates the rolling minimum over the trailing window
func RollingMin(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	for i := period - 1; i < len(values); i++ {
		m := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if values[j] < m {
				m = values[j]
			}
		}
		out[i] = m
	}
	return out
}

// RollingStdDev calculates the rolling population standard deviation
func RollingStdDev(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	sma := SMA(values, period)
	for i := period - 1; i < len(values); i++ {
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - sma[i]
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}

// ============================================================================
// BOLLINGER BANDS / KELTNER
// ============================================================================

// Bollinger holds the band columns plus the derived width column
type Bollinger struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
	Width  []float64 // (upper-lower)/middle
}

// BollingerBands calculates Bollinger bands and band width per bar
func BollingerBands(closes []float64, period int, mult float64) *Bollinger {
	n := len(closes)
	bb := &Bollinger{
		Upper:  nanSlice(n),
		Middle: SMA(closes, period),
		Lower:  nanSlice(n),
		Width:  nanSlice(n),
	}
	sd := RollingStdDev(closes, period)
	for i := 0; i < n; i++ {
		if math.IsNaN(bb.Middle[i]) {
			continue
		}
		bb.Upper[i] = bb.Middle[i] + mult*sd[i]
		bb.Lower[i] = bb.Middle[i] - mult*sd[i]
		if bb.Middle[i] != 0 {
			bb.Width[i] = (bb.Upper[i] - bb.Lower[i]) / bb.Middle[i]
		} else {
			bb.Width[i] = 0
		}
	}
	return bb
}

// Keltner holds Keltner channel columns
type Keltner struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// KeltnerChannel calculates an EMA-centred ATR channel
func KeltnerChannel(candles []market.Candle, period int, atrPeriod int, mult float64) *Keltner {
	closes := closesOf(candles)
	atr := ATR(candles, atrPeriod)
	kc := &Keltner{
		Upper:  nanSlice(len(candles)),
		Middle: EMA(closes, period),
		Lower:  nanSlice(len(candles)),
	}
	for i := range candles {
		if math.IsNaN(kc.Middle[i]) || math.IsNaN(atr[i]) {
			continue
		}
		kc.Upper[i] = kc.Middle[i] + mult*atr[i]
		kc.Lower[i] = kc.Middle[i] - mult*atr[i]
	}
	return kc
}

// ============================================================================
// OSCILLATORS
// ============================================================================

// RSI calculates Wilder's relative strength index series
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the MACD line, signal line and histogram columns
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD calculates MACD from fast/slow EMAs with an EMA signal line
func MACD(closes []float64, fast, slow, signal int) *MACDResult {
	n := len(closes)
	res := &MACDResult{MACD: nanSlice(n), Signal: nanSlice(n), Histogram: nanSlice(n)}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	for i := 0; i < n; i++ {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			res.MACD[i] = fastEMA[i] - slowEMA[i]
		}
	}

	// Signal line is an EMA over the defined stretch of the MACD column.
	start := slow - 1
	if start >= n {
		return res
	}
	sig := EMA(res.MACD[start:], signal)
	for i := range sig {
		res.Signal[start+i] = sig[i]
		if !math.IsNaN(sig[i]) {
			res.Histogram[start+i] = res.MACD[start+i] - sig[i]
		}
	}
	return res
}

// Stochastic holds %K and %D columns
type Stochastic struct {
	K []float64
	D []float64
}

// StochasticOscillator calculates %K over kPeriod and %D as SMA of %K
func StochasticOscillator(candles []market.Candle, kPeriod, dPeriod int) *Stochastic {
	n := len(candles)
	st := &Stochastic{K: nanSlice(n), D: nanSlice(n)}
	highs := RollingMax(highsOf(candles), kPeriod)
	lows := RollingMin(lowsOf(candles), kPeriod)
	for i := kPeriod - 1; i < n; i++ {
		if highs[i] == lows[i] {
			st.K[i] = 50
			continue
		}
		st.K[i] = (candles[i].Close - lows[i]) / (highs[i] - lows[i]) * 100
	}
	st.D = SMA(st.K[kPeriod-1:], dPeriod)
	st.D = append(nanSlice(kPeriod-1), st.D...)
	return st
}

// WilliamsR calculates Williams %R (-100..0)
func WilliamsR(candles []market.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	highs := RollingMax(highsOf(candles), period)
	lows := RollingMin(lowsOf(candles), period)
	for i := period - 1; i < len(candles); i++ {
		if highs[i] == lows[i] {
			out[i] = -50
			continue
		}
		out[i] = (highs[i] - candles[i].Close) / (highs[i] - lows[i]) * -100
	}
	return out
}

// CCI calculates the commodity channel index
func CCI(candles []market.Candle, period int) []float64 {
	n := len(candles)
	tp := make([]float64, n)
	for i, c := range candles {
		tp[i] = (c.High + c.Low + c.Close) / 3
	}
	out := nanSlice(n)
	sma := SMA(tp, period)
	for i := period - 1; i < n; i++ {
		meanDev := 0.0
		for j := i - period + 1; j <= i; j++ {
			meanDev += math.Abs(tp[j] - sma[i])
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - sma[i]) / (0.015 * meanDev)
	}
	return out
}

// MFI calculates the money flow index
func MFI(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if n < period+1 {
		return out
	}

	tp := make([]float64, n)
	for i, c := range candles {
		tp[i] = (c.High + c.Low + c.Close) / 3
	}
	for i := period; i < n; i++ {
		pos, neg := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			flow := tp[j] * candles[j].Volume
			if tp[j] > tp[j-1] {
				pos += flow
			} else if tp[j] < tp[j-1] {
				neg += flow
			}
		}
		if neg == 0 {
			out[i] = 100
			continue
		}
		out[i] = 100 - 100/(1+pos/neg)
	}
	return out
}

// ============================================================================
// VOLATILITY / TREND STRENGTH
// ============================================================================

// TrueRange calculates the true range series
func TrueRange(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		out[i] = math.Max(c.High-c.Low,
			math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return out
}

// ATR calculates Wilder-smoothed average true range
func ATR(candles []market.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if len(candles) < period+1 {
		return out
	}
	tr := TrueRange(candles)

	seed := 0.0
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	out[period] = seed / float64(period)
	for i := period + 1; i < len(candles); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// ADX calculates the average directional index with +DI/-DI smoothing
func ADX(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if n < 2*period+1 {
		return out
	}

	tr := TrueRange(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder smoothing of TR and DM, then DX, then ADX.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanSlice(n)
	dx[period] = dxValue(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smTR = smTR - smTR/float64(period) + tr[i]
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	seed := 0.0
	for i := period; i < 2*period; i++ {
		seed += dx[i]
	}
	out[2*period-1] = seed / float64(period)
	for i := 2 * period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

func dxValue(plus, minus, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	pdi := plus / tr * 100
	mdi := minus / tr * 100
	if pdi+mdi == 0 {
		return 0
	}
	return math.Abs(pdi-mdi) / (pdi + mdi) * 100
}

// ============================================================================
// VOLUME
// ============================================================================

// OBV calculates on-balance volume
func OBV(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// ============================================================================
// BREAKOUT HELPERS
// ============================================================================

// DonchianHigh returns at index i the max high of bars [i-period, i-1].
// The current bar is excluded so a breakout check never sees its own high.
func DonchianHigh(candles []market.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	rolled := RollingMax(highsOf(candles), period)
	for i := period; i < len(candles); i++ {
		out[i] = rolled[i-1]
	}
	return out
}

// NoiseRatio calculates per-bar noise 1 - |open-close|/max(high-low, eps).
// A high value means the bar closed near where it opened (noisy range bar).
func NoiseRatio(candles []market.Candle) []float64 {
	const eps = 1e-9
	out := make([]float64, len(candles))
	for i, c := range candles {
		rng := math.Max(c.Range(), eps)
		out[i] = 1 - math.Abs(c.Open-c.Close)/rng
	}
	return out
}

// DynamicK returns the rolling mean noise ratio clipped to [0.3, 0.7],
// used as the breakout K when dynamic K is enabled.
func DynamicK(candles []market.Candle, period int) []float64 {
	noise := SMA(NoiseRatio(candles), period)
	out := nanSlice(len(candles))
	for i, v := range noise {
		if math.IsNaN(v) {
			continue
		}
		out[i] = clip(v, 0.3, 0.7)
	}
	return out
}

// ============================================================================
// HELPERS
// ============================================================================

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func closesOf(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func highsOf(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

func lowsOf(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}
