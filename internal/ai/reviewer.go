package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"upbit-trading-bot/internal/analysis"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/indicator"
	"upbit-trading-bot/internal/market"
)

// Decision is the closed set of AI trade decisions
type Decision string

const (
	DecisionBuy  Decision = "buy"
	DecisionSell Decision = "sell"
	DecisionHold Decision = "hold"
)

// Review is the parsed AI verdict for one ticker
type Review struct {
	Decision         Decision `json:"decision"`
	Confidence       float64  `json:"confidence"` // 0..1
	Reason           string   `json:"reason"`
	KeyIndicators    []string `json:"key_indicators,omitempty"`
	RejectionReasons []string `json:"rejection_reasons,omitempty"`
	FlashCrashRisk   bool     `json:"flash_crash_risk"`
	DivergenceRisk   bool     `json:"divergence_risk"`
	MarketRiskHigh   bool     `json:"market_risk_high"`
	Overridden       bool     `json:"overridden,omitempty"`
}

// ReviewRequest bundles everything the analysis stage produced for the
// ticker into one payload the model sees
type ReviewRequest struct {
	Ticker       string                  `json:"ticker"`
	CurrentPrice float64                 `json:"current_price"`
	Snapshot     *indicator.Snapshot     `json:"indicators,omitempty"`
	Orderbook    *market.OrderbookSummary `json:"orderbook,omitempty"`
	FearGreed    *market.FearGreed       `json:"fear_greed,omitempty"`
	FlashCrash   *analysis.FlashCrash    `json:"flash_crash,omitempty"`
	Divergence   *analysis.Divergence    `json:"divergence,omitempty"`
	Correlation  *analysis.Correlation   `json:"correlation,omitempty"`
	Backtest     *backtest.Metrics       `json:"backtest,omitempty"`
	Filter       *backtest.FilterResult  `json:"filter,omitempty"`
	Position     *PositionInfo           `json:"position,omitempty"`
	Portfolio    *PortfolioInfo          `json:"portfolio,omitempty"`
}

// PositionInfo is the held-position view sent to the model
type PositionInfo struct {
	Amount         float64 `json:"amount"`
	AvgBuyPrice    float64 `json:"avg_buy_price"`
	CurrentValue   float64 `json:"current_value"`
	UnrealizedPnl  float64 `json:"unrealized_pnl"`
	ProfitRatePct  float64 `json:"profit_rate_pct"`
	HoldingHours   float64 `json:"holding_hours"`
}

// PortfolioInfo is the account-level view sent to the model
type PortfolioInfo struct {
	Cash             float64 `json:"cash"`
	TotalValue       float64 `json:"total_value"`
	PositionCount    int     `json:"position_count"`
	MaxPositions     int     `json:"max_positions"`
	AvailableCapital float64 `json:"available_capital"`
}

const systemPrompt = `You are a risk-aware crypto spot trading reviewer for a KRW-quoted exchange.
You receive one JSON payload describing a single ticker: technical indicators, orderbook summary,
flash-crash and RSI-divergence detectors, market correlation, and backtest quality metrics.
Respond with ONLY a JSON object, no prose, matching exactly:
{
  "decision": "buy" | "sell" | "hold",
  "confidence": <number 0..1>,
  "reason": "<one or two sentences>",
  "key_indicators": ["..."],
  "rejection_reasons": ["..."],
  "flash_crash_risk": <bool>,
  "divergence_risk": <bool>,
  "market_risk_high": <bool>
}
Never recommend buy when the flash-crash detector fired or when backtest filter marks the coin research-only.`

// Reviewer drives one AI review per ticker through the port and applies the
// rule validator to the model's answer
type Reviewer struct {
	port      Port
	validator *Validator
}

// NewReviewer creates a reviewer; validator may be nil to skip overrides
func NewReviewer(port Port, validator *Validator) *Reviewer {
	return &Reviewer{port: port, validator: validator}
}

// Review asks the model for a verdict and validates it against hard rules
func (r *Reviewer) Review(ctx context.Context, req *ReviewRequest) (*Review, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("ai: marshal review request: %w", err)
	}

	var rev Review
	if err := r.port.Complete(ctx, systemPrompt, string(payload), &rev); err != nil {
		return nil, err
	}
	if err := rev.validate(); err != nil {
		return nil, err
	}

	if r.validator != nil {
		r.validator.Apply(&rev, req)
	}
	return &rev, nil
}

func (rev *Review) validate() error {
	switch rev.Decision {
	case DecisionBuy, DecisionSell, DecisionHold:
	default:
		return fmt.Errorf("ai: invalid decision %q", rev.Decision)
	}
	if rev.Confidence < 0 || rev.Confidence > 1 {
		return fmt.Errorf("ai: confidence %.2f out of range", rev.Confidence)
	}
	return nil
}
