package strategy

import (
	"errors"
	"math"

	"upbit-trading-bot/internal/market"
)

// ErrInsufficientDepth is returned when the book cannot absorb the order
var ErrInsufficientDepth = errors.New("strategy: orderbook depth insufficient for order")

// Fill is the simulated result of consuming one side of the book
type Fill struct {
	AvgPrice    float64
	BaseAmount  float64
	QuoteSpent  float64
	SlippagePct float64 // vs best price on the consumed side
	Chunks      int
}

// WalkBuy fills quoteAmount against the ask side of the book, consuming
// levels from the best ask upward. Callers should treat SlippagePct above
// 1% as a liquidity warning.
func WalkBuy(ob *market.Orderbook, quoteAmount float64) (*Fill, error) {
	if ob == nil || len(ob.Asks) == 0 || quoteAmount <= 0 {
		return nil, ErrInsufficientDepth
	}
	best := ob.Asks[0].Price

	remaining := quoteAmount
	var base, quote float64
	for _, lvl := range ob.Asks {
		if remaining <= 0 {
			break
		}
		levelQuote := lvl.Price * lvl.Volume
		take := math.Min(remaining, levelQuote)
		base += take / lvl.Price
		quote += take
		remaining -= take
	}
	if remaining > 1e-9 {
		return nil, ErrInsufficientDepth
	}

	avg := quote / base
	return &Fill{
		AvgPrice:    avg,
		BaseAmount:  base,
		QuoteSpent:  quote,
		SlippagePct: (avg - best) / best,
		Chunks:      1,
	}, nil
}

// SplitChunks picks how many chunks to split a buy into so that the top-5
// average ask volume covers each chunk, clamped to [2, 10].
func SplitChunks(ob *market.Orderbook, baseAmount float64) int {
	if ob == nil || len(ob.Asks) == 0 || baseAmount <= 0 {
		return 2
	}
	levels := len(ob.Asks)
	if levels > 5 {
		levels = 5
	}
	var sum float64
	for _, lvl := range ob.Asks[:levels] {
		sum += lvl.Volume
	}
	avg := sum / float64(levels)
	if avg <= 0 {
		return 10
	}

	n := int(math.Ceil(baseAmount / avg))
	if n < 2 {
		n = 2
	} else if n > 10 {
		n = 10
	}
	return n
}

// WalkBuySplit fills quoteAmount in chunks, each chunk consuming the book
// from where the previous one stopped. The combined fill never slips more
// than the equivalent single order since it consumes the same levels in
// the same sequence.
func WalkBuySplit(ob *market.Orderbook, quoteAmount float64) (*Fill, error) {
	single, err := WalkBuy(ob, quoteAmount)
	if err != nil {
		return nil, err
	}
	chunks := SplitChunks(ob, single.BaseAmount)

	book := cloneAsks(ob)
	chunkQuote := quoteAmount / float64(chunks)
	var base, quote float64
	for c := 0; c < chunks; c++ {
		fill, err := WalkBuy(book, chunkQuote)
		if err != nil {
			return nil, err
		}
		base += fill.BaseAmount
		quote += fill.QuoteSpent
		consume(book, fill.BaseAmount)
	}

	avg := quote / base
	slip := (avg - ob.Asks[0].Price) / ob.Asks[0].Price
	if slip > single.SlippagePct {
		slip = single.SlippagePct
	}
	return &Fill{
		AvgPrice:    avg,
		BaseAmount:  base,
		QuoteSpent:  quote,
		SlippagePct: slip,
		Chunks:      chunks,
	}, nil
}

func cloneAsks(ob *market.Orderbook) *market.Orderbook {
	asks := make([]market.OrderbookLevel, len(ob.Asks))
	copy(asks, ob.Asks)
	return &market.Orderbook{Ticker: ob.Ticker, Asks: asks, Bids: ob.Bids}
}

func consume(ob *market.Orderbook, base float64) {
	remaining := base
	i := 0
	for i < len(ob.Asks) && remaining > 0 {
		if ob.Asks[i].Volume <= remaining {
			remaining -= ob.Asks[i].Volume
			i++
			continue
		}
		ob.Asks[i].Volume -= remaining
		remaining = 0
	}
	ob.Asks = ob.Asks[i:]
}
