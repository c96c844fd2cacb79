package analysis

import (
	"math"

	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
)

// FlashCrashConfig tunes the crash detector
type FlashCrashConfig struct {
	Lookback      int     `json:"lookback" yaml:"lookback"`
	DropThreshold float64 `json:"drop_threshold" yaml:"drop_threshold"` // negative fraction
	AbnormalRatio float64 `json:"abnormal_ratio" yaml:"abnormal_ratio"`
}

// DefaultFlashCrashConfig matches production tuning
func DefaultFlashCrashConfig() FlashCrashConfig {
	return FlashCrashConfig{Lookback: 5, DropThreshold: -0.05, AbnormalRatio: 2.0}
}

// FlashCrash is the detector outcome, attached to the tick payload
type FlashCrash struct {
	Detected      bool    `json:"detected"`
	MaxDropPct    float64 `json:"max_drop_pct"`   // fraction, negative on a drop
	AbnormalRatio float64 `json:"abnormal_ratio"` // drop size in ATR-lookback units
	CurrentPrice  float64 `json:"current_price"`
	RecentHigh    float64 `json:"recent_high"`
}

// DetectFlashCrash flags a crash when the fall from the recent high exceeds
// the drop threshold and is abnormally fast relative to ATR
func DetectFlashCrash(s *market.Series, cfg FlashCrashConfig) FlashCrash {
	out := FlashCrash{}
	if s == nil || s.Len() < cfg.Lookback+1 {
		return out
	}

	last := s.Candles[s.Len()-1]
	out.CurrentPrice = last.Close

	maxHigh := 0.0
	for _, c := range s.Candles[s.Len()-cfg.Lookback:] {
		if c.High > maxHigh {
			maxHigh = c.High
		}
	}
	out.RecentHigh = maxHigh
	if maxHigh <= 0 {
		return out
	}
	out.MaxDropPct = (last.Close - maxHigh) / maxHigh

	atrs := indicator.ATR(s.Candles, 14)
	atr := atrs[len(atrs)-1]
	if math.IsNaN(atr) || atr <= 0 {
		return out
	}
	out.AbnormalRatio = math.Abs(last.Close-maxHigh) / (atr * float64(cfg.Lookback))

	out.Detected = out.MaxDropPct <= cfg.DropThreshold && out.AbnormalRatio > cfg.AbnormalRatio
	return out
}
