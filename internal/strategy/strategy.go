package strategy

import (
	"fmt"
	"time"
)

// Action is a closed set of signal actions
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionNone Action = "none"
)

// ExitTrigger is a closed set of exit reasons, in priority order
type ExitTrigger string

const (
	ExitStopLoss       ExitTrigger = "stop_loss"
	ExitFakeout        ExitTrigger = "fakeout"
	ExitTakeProfit     ExitTrigger = "take_profit"
	ExitTrendWeakening ExitTrigger = "trend_weakening"
	ExitTimeout        ExitTrigger = "timeout"
)

// EntryReason records which sub-clause satisfied each gate
type EntryReason struct {
	TrendFilter   string `json:"trend_filter,omitempty"`
	Squeeze       string `json:"squeeze"`
	Breakout      string `json:"breakout"`
	BreakoutGrade string `json:"breakout_grade"` // "strong" or "weak"
	Volume        string `json:"volume"`
}

func (r EntryReason) String() string {
	return fmt.Sprintf("squeeze=%s breakout=%s(%s) volume=%s", r.Squeeze, r.Breakout, r.BreakoutGrade, r.Volume)
}

// Signal is a per-bar, per-ticker trading signal
type Signal struct {
	Action     Action       `json:"action"`
	Ticker     string       `json:"ticker"`
	Price      float64      `json:"price"`
	Size       float64      `json:"size,omitempty"` // base quantity, set by sizing
	StopLoss   float64      `json:"stop_loss,omitempty"`
	TakeProfit float64      `json:"take_profit,omitempty"`
	Entry      *EntryReason `json:"entry_reason,omitempty"`
	Exit       ExitTrigger  `json:"exit_trigger,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Position is the open-position view the strategy needs for exit checks
type Position struct {
	Ticker     string
	EntryPrice float64
	EntryIndex int // bar index at entry
	StopLoss   float64
	TakeProfit float64
}

// Config holds volatility-breakout strategy parameters
type Config struct {
	DonchianPeriod   int     `json:"donchian_period"`
	BBPeriod         int     `json:"bb_period"`
	SqueezeLookback  int     `json:"squeeze_lookback"`
	VolumeMultiplier float64 `json:"volume_multiplier"`
	KValue           float64 `json:"k_value"`
	UseDynamicK      bool    `json:"use_dynamic_k"`

	TrendFilterEnabled bool `json:"trend_filter_enabled"`
	TrendMAPeriod      int  `json:"trend_ma_period"`

	ATRStopMultiple   float64 `json:"atr_stop_multiple"`
	ATRTargetMultiple float64 `json:"atr_target_multiple"`
	TimeoutBars       int     `json:"timeout_bars"`

	RiskPerTrade        float64 `json:"risk_per_trade"`
	MinPositionPct      float64 `json:"min_position_pct"`
	MaxPositionPct      float64 `json:"max_position_pct"`
	FallbackPositionPct float64 `json:"fallback_position_pct"`

	UseSplitOrders bool `json:"use_split_orders"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		DonchianPeriod:      20,
		BBPeriod:            20,
		SqueezeLookback:     10,
		VolumeMultiplier:    1.5,
		KValue:              0.5,
		UseDynamicK:         true,
		TrendFilterEnabled:  true,
		TrendMAPeriod:       50,
		ATRStopMultiple:     2.0,
		ATRTargetMultiple:   3.0,
		TimeoutBars:         24,
		RiskPerTrade:        0.02,
		MinPositionPct:      0.05,
		MaxPositionPct:      0.20,
		FallbackPositionPct: 0.10,
	}
}

// Normalize clamps config values into their supported ranges
func (c *Config) Normalize() {
	if c.DonchianPeriod <= 0 {
		c.DonchianPeriod = 20
	}
	if c.BBPeriod <= 0 {
		c.BBPeriod = 20
	}
	if c.SqueezeLookback <= 0 {
		c.SqueezeLookback = 10
	}
	if c.TrendMAPeriod < 20 {
		c.TrendMAPeriod = 20
	}
	if c.VolumeMultiplier <= 0 {
		c.VolumeMultiplier = 1.5
	}
	if c.TimeoutBars <= 0 {
		c.TimeoutBars = 24
	}
	if c.ATRStopMultiple <= 0 {
		c.ATRStopMultiple = 2.0
	}
	if c.ATRTargetMultiple <= 0 {
		c.ATRTargetMultiple = 3.0
	}
}

// Breakout is the rule-based volatility-breakout strategy. It is a pure
// function of history plus position state: identical inputs always produce
// identical signals.
type Breakout struct {
	cfg Config
}

// NewBreakout creates the strategy with normalized config
func NewBreakout(cfg Config) *Breakout {
	cfg.Normalize()
	return &Breakout{cfg: cfg}
}

// Config returns a copy of the effective configuration
func (b *Breakout) Config() Config {
	return b.cfg
}

// WarmupBars is how many bars the frame needs before signals are meaningful
func (b *Breakout) WarmupBars() int {
	w := 2 * b.cfg.BBPeriod // BB width mean needs the BB warmup twice over
	if b.cfg.TrendMAPeriod > w {
		w = b.cfg.TrendMAPeriod
	}
	if w < 29 { // ADX(14) warmup
		w = 29
	}
	return w
}

// Evaluate produces the signal for bar i. With no position it runs the four
// entry gates; with a position it runs the five exit rules in priority order.
func (b *Breakout) Evaluate(f *Frame, i int, pos *Position) *Signal {
	if i < b.WarmupBars() || i >= len(f.Candles) {
		return &Signal{Action: ActionNone, Ticker: f.Ticker}
	}
	if pos != nil {
		return b.evaluateExit(f, i, pos)
	}
	return b.evaluateEntry(f, i)
}
