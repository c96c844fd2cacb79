package indicator

import (
	"fmt"
	"math"

	"upbit-trading-bot/internal/market"
)

// Snapshot holds the latest value of each indicator on one series. It is the
// payload handed to the AI reviewer and the control API.
type Snapshot struct {
	Ticker string `json:"ticker"`

	MA20   float64 `json:"ma20"`
	MA50   float64 `json:"ma50"`
	EMA12  float64 `json:"ema12"`
	EMA26  float64 `json:"ema26"`
	RSI14  float64 `json:"rsi14"`
	ATR14  float64 `json:"atr14"`
	ADX14  float64 `json:"adx14"`
	CCI20  float64 `json:"cci20"`
	MFI14  float64 `json:"mfi14"`
	WillR  float64 `json:"williams_r"`
	StochK float64 `json:"stoch_k"`
	StochD float64 `json:"stoch_d"`

	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`

	BBUpper float64 `json:"bb_upper"`
	BBLower float64 `json:"bb_lower"`
	BBWidth float64 `json:"bb_width"`

	KeltnerUpper float64 `json:"keltner_upper"`
	KeltnerLower float64 `json:"keltner_lower"`

	OBV          float64 `json:"obv"`
	OBVMA20      float64 `json:"obv_ma20"`
	DonchianHigh float64 `json:"donchian_high"`
	DynamicK     float64 `json:"dynamic_k"`
}

// MinSnapshotBars is the history needed before a snapshot is meaningful
// (bounded by ADX warmup: 2*period+1).
const MinSnapshotBars = 60

// NewSnapshot computes the latest indicator values on a series
func NewSnapshot(s *market.Series) (*Snapshot, error) {
	if s.Len() < MinSnapshotBars {
		return nil, fmt.Errorf("need at least %d candles for %s, have %d", MinSnapshotBars, s.Ticker, s.Len())
	}

	candles := s.Candles
	closes := s.Closes()
	last := len(candles) - 1

	bb := BollingerBands(closes, 20, 2.0)
	macd := MACD(closes, 12, 26, 9)
	stoch := StochasticOscillator(candles, 14, 3)
	kc := KeltnerChannel(candles, 20, 14, 1.5)
	obv := OBV(candles)

	snap := &Snapshot{
		Ticker: s.Ticker,

		MA20:   lastOf(SMA(closes, 20)),
		MA50:   lastOf(SMA(closes, 50)),
		EMA12:  lastOf(EMA(closes, 12)),
		EMA26:  lastOf(EMA(closes, 26)),
		RSI14:  lastOf(RSI(closes, 14)),
		ATR14:  lastOf(ATR(candles, 14)),
		ADX14:  lastOf(ADX(candles, 14)),
		CCI20:  lastOf(CCI(candles, 20)),
		MFI14:  lastOf(MFI(candles, 14)),
		WillR:  lastOf(WilliamsR(candles, 14)),
		StochK: lastOf(stoch.K),
		StochD: lastOf(stoch.D),

		MACD:          lastOf(macd.MACD),
		MACDSignal:    lastOf(macd.Signal),
		MACDHistogram: lastOf(macd.Histogram),

		BBUpper: lastOf(bb.Upper),
		BBLower: lastOf(bb.Lower),
		BBWidth: lastOf(bb.Width),

		KeltnerUpper: lastOf(kc.Upper),
		KeltnerLower: lastOf(kc.Lower),

		OBV:          obv[last],
		OBVMA20:      lastOf(SMA(obv, 20)),
		DonchianHigh: lastOf(DonchianHigh(candles, 20)),
		DynamicK:     lastOf(DynamicK(candles, 20)),
	}
	return snap, nil
}

func lastOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
