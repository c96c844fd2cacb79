package portfolio

import "fmt"

// EvalAction is the evaluator's verdict for one held position
type EvalAction string

const (
	EvalHold        EvalAction = "hold"
	EvalExit        EvalAction = "exit"
	EvalPartialExit EvalAction = "partial_exit"
	EvalAdjustStop  EvalAction = "adjust_stop"
)

// EvaluatorConfig tunes the rule-first position evaluator
type EvaluatorConfig struct {
	StopLossPct          float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`     // negative, e.g. -0.05
	TakeProfitPct        float64 `json:"take_profit_pct" yaml:"take_profit_pct"` // positive, e.g. 0.10
	FakeoutMaxCandles    int     `json:"fakeout_max_candles" yaml:"fakeout_max_candles"`
	TimeoutHours         float64 `json:"timeout_hours" yaml:"timeout_hours"`
	TimeoutMinProfit     float64 `json:"timeout_min_profit" yaml:"timeout_min_profit"`
	ADXMinHoldingHours   float64 `json:"adx_min_holding_hours" yaml:"adx_min_holding_hours"`
	TrailingTriggerPct   float64 `json:"trailing_trigger_pct" yaml:"trailing_trigger_pct"`
	TrailingStopDistance float64 `json:"trailing_stop_distance" yaml:"trailing_stop_distance"`
	PartialExitPct       float64 `json:"partial_exit_pct" yaml:"partial_exit_pct"`
	EscalatePartialToAI  bool    `json:"escalate_partial_to_ai" yaml:"escalate_partial_to_ai"`
}

// DefaultEvaluatorConfig returns production evaluator defaults
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		StopLossPct:          -0.05,
		TakeProfitPct:        0.10,
		FakeoutMaxCandles:    3,
		TimeoutHours:         24,
		TimeoutMinProfit:     0.02,
		ADXMinHoldingHours:   6,
		TrailingTriggerPct:   0.05,
		TrailingStopDistance: 0.03,
		PartialExitPct:       0.10,
	}
}

// PositionView is what the evaluator needs to judge one position
type PositionView struct {
	Ticker         string
	EntryPrice     float64
	CurrentPrice   float64
	HoldingHours   float64
	HoldingCandles int
	TrailingStop   float64 // 0 when not set
	ADX            float64 // latest bar
	PrevADX        float64 // prior bar
}

// Evaluation is the verdict plus its supporting detail
type Evaluation struct {
	Action     EvalAction `json:"action"`
	Trigger    string     `json:"trigger,omitempty"`
	Reason     string     `json:"reason"`
	NewStop    float64    `json:"new_stop,omitempty"`
	ProfitRate float64    `json:"profit_rate"`
}

// Evaluator applies the eight management rules in priority order. All of
// them are local arithmetic, no AI calls.
type Evaluator struct {
	cfg EvaluatorConfig
}

// NewEvaluator creates the evaluator
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate returns the first rule that fires, or HOLD
func (e *Evaluator) Evaluate(v PositionView) Evaluation {
	profit := 0.0
	if v.EntryPrice > 0 {
		profit = (v.CurrentPrice - v.EntryPrice) / v.EntryPrice
	}
	out := Evaluation{Action: EvalHold, ProfitRate: profit}

	exit := func(trigger, reason string) Evaluation {
		out.Action = EvalExit
		out.Trigger = trigger
		out.Reason = reason
		return out
	}

	// 1. Stop loss.
	if v.CurrentPrice <= v.EntryPrice*(1+e.cfg.StopLossPct) {
		return exit("stop_loss", fmt.Sprintf("price %.0f under stop %.0f", v.CurrentPrice, v.EntryPrice*(1+e.cfg.StopLossPct)))
	}

	// 2. Take profit.
	if v.CurrentPrice >= v.EntryPrice*(1+e.cfg.TakeProfitPct) {
		return exit("take_profit", fmt.Sprintf("profit %.2f%% over target", profit*100))
	}

	// 3. Trailing stop hit.
	if v.TrailingStop > 0 && v.CurrentPrice <= v.TrailingStop {
		return exit("trailing_stop", fmt.Sprintf("price %.0f under trailing stop %.0f", v.CurrentPrice, v.TrailingStop))
	}

	// 4. Fakeout.
	if v.HoldingCandles <= e.cfg.FakeoutMaxCandles && v.CurrentPrice < v.EntryPrice*0.98 {
		return exit("fakeout", fmt.Sprintf("down %.2f%% within %d candles of entry", -profit*100, v.HoldingCandles))
	}

	// 5. Timeout.
	if v.HoldingHours >= e.cfg.TimeoutHours && profit < e.cfg.TimeoutMinProfit {
		return exit("timeout", fmt.Sprintf("%.0fh held, only %.2f%%", v.HoldingHours, profit*100))
	}

	// 6. ADX weakening.
	if v.HoldingHours >= e.cfg.ADXMinHoldingHours && v.ADX < 20 && v.PrevADX > 0 {
		if (v.PrevADX-v.ADX)/v.PrevADX >= 0.20 {
			return exit("adx_weak", fmt.Sprintf("adx %.1f fell %.0f%% from %.1f", v.ADX, (v.PrevADX-v.ADX)/v.PrevADX*100, v.PrevADX))
		}
	}

	// 7. Trailing adjust: in profit, ratchet the stop up, never down.
	if profit >= e.cfg.TrailingTriggerPct {
		newStop := v.CurrentPrice * (1 - e.cfg.TrailingStopDistance)
		if newStop > v.TrailingStop {
			out.Action = EvalAdjustStop
			out.NewStop = newStop
			out.Reason = fmt.Sprintf("profit %.2f%%, stop raised to %.0f", profit*100, newStop)
			return out
		}
	}

	// 8. Hold. Large unrealised profits may be escalated to AI review.
	if e.cfg.EscalatePartialToAI && profit >= e.cfg.PartialExitPct {
		out.Action = EvalPartialExit
		out.Reason = fmt.Sprintf("profit %.2f%%, partial exit candidate", profit*100)
		return out
	}
	out.Reason = "no exit rule fired"
	return out
}
