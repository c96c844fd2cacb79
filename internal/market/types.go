package market

import (
	"fmt"
	"time"
)

// Interval represents a candle interval
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval15m Interval = "15m"
	Interval60m Interval = "60m"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// Duration returns the wall-clock length of one candle at this interval
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval60m:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// Candle represents a single OHLCV sample. Immutable once fetched.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Range returns high minus low
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Series is an ordered OHLCV sequence for one ticker at one interval.
// Timestamps are strictly increasing after validation.
type Series struct {
	Ticker   string   `json:"ticker"`
	Interval Interval `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// Len returns the number of candles
func (s *Series) Len() int {
	return len(s.Candles)
}

// Last returns the most recent candle
func (s *Series) Last() (Candle, error) {
	if len(s.Candles) == 0 {
		return Candle{}, fmt.Errorf("series %s/%s is empty", s.Ticker, s.Interval)
	}
	return s.Candles[len(s.Candles)-1], nil
}

// Closes extracts the close column
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high column
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low column
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts the volume column
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Volume
	}
	return out
}

// Tail returns the last n candles (or fewer if the series is shorter)
func (s *Series) Tail(n int) []Candle {
	if n >= len(s.Candles) {
		return s.Candles
	}
	return s.Candles[len(s.Candles)-n:]
}

// OrderbookLevel is one price level on one side of the book
type OrderbookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// Orderbook is a top-K depth snapshot. Asks ascend, bids descend by price.
type Orderbook struct {
	Ticker    string           `json:"ticker"`
	Timestamp time.Time        `json:"timestamp"`
	Bids      []OrderbookLevel `json:"bids"`
	Asks      []OrderbookLevel `json:"asks"`
}

// OrderbookSummary condenses a snapshot for the analysis payload
type OrderbookSummary struct {
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Spread    float64 `json:"spread"`
	BidDepth  float64 `json:"bid_depth"`
	AskDepth  float64 `json:"ask_depth"`
	Imbalance float64 `json:"imbalance"` // (bid-ask)/(bid+ask) depth, -1..1
}

// Summarize derives best bid/ask, cumulative depth per side and imbalance
func (ob *Orderbook) Summarize() OrderbookSummary {
	var s OrderbookSummary
	if len(ob.Bids) > 0 {
		s.BestBid = ob.Bids[0].Price
	}
	if len(ob.Asks) > 0 {
		s.BestAsk = ob.Asks[0].Price
	}
	s.Spread = s.BestAsk - s.BestBid
	for _, l := range ob.Bids {
		s.BidDepth += l.Price * l.Volume
	}
	for _, l := range ob.Asks {
		s.AskDepth += l.Price * l.Volume
	}
	if total := s.BidDepth + s.AskDepth; total > 0 {
		s.Imbalance = (s.BidDepth - s.AskDepth) / total
	}
	return s
}

// FearGreed is the market-wide fear/greed index reading
type FearGreed struct {
	Value          int    `json:"value"` // 0-100
	Classification string `json:"classification"`
}
