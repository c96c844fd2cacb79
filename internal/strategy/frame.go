package strategy

import (
	"math"

	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
)

// Frame holds the input candles plus every indicator column the gates and
// exits read, all index-aligned with the candles. Building a frame is O(N)
// and happens once per backtest or live tick.
type Frame struct {
	Ticker  string
	Candles []market.Candle

	BBWidth     []float64 // (upper-lower)/middle
	BBWidthMean []float64 // rolling mean of BBWidth over BBPeriod
	VolumeMean  []float64 // rolling mean volume over BBPeriod
	TrendMA     []float64
	ATR         []float64
	ADX         []float64
	OBV         []float64
	OBVMA5      []float64
	OBVMA20     []float64
	Donchian    []float64 // previous-bar rolling max high, current bar excluded
	DynamicK    []float64
}

// NewFrame precomputes all indicator columns for a series
func NewFrame(s *market.Series, cfg Config) *Frame {
	cfg.Normalize()
	closes := s.Closes()
	volumes := s.Volumes()

	bb := indicator.BollingerBands(closes, cfg.BBPeriod, 2.0)
	obv := indicator.OBV(s.Candles)

	return &Frame{
		Ticker:      s.Ticker,
		Candles:     s.Candles,
		BBWidth:     bb.Width,
		BBWidthMean: indicator.SMA(bb.Width, cfg.BBPeriod),
		VolumeMean:  indicator.SMA(volumes, cfg.BBPeriod),
		TrendMA:     indicator.SMA(closes, cfg.TrendMAPeriod),
		ATR:         indicator.ATR(s.Candles, 14),
		ADX:         indicator.ADX(s.Candles, 14),
		OBV:         obv,
		OBVMA5:      indicator.SMA(obv, 5),
		OBVMA20:     indicator.SMA(obv, 20),
		Donchian:    indicator.DonchianHigh(s.Candles, cfg.DonchianPeriod),
		DynamicK:    indicator.DynamicK(s.Candles, cfg.BBPeriod),
	}
}

// at returns a column value, NaN-safe
func at(col []float64, i int) float64 {
	if i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

func valid(v float64) bool {
	return !math.IsNaN(v)
}
