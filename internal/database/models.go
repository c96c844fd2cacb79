package database

import "time"

// Trade is one executed order, buy or sell. Pnl fields are only set on
// sells.
type Trade struct {
	ID             int64     `json:"id"`
	Ticker         string    `json:"ticker"`
	Side           string    `json:"side"`
	Price          float64   `json:"price"`
	Amount         float64   `json:"amount"`
	Total          float64   `json:"total"`
	Commission     float64   `json:"commission"`
	Pnl            *float64  `json:"pnl,omitempty"`
	PnlPct         *float64  `json:"pnl_pct,omitempty"`
	Trigger        string    `json:"trigger,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	ExecutedAt     time.Time `json:"executed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// TickRecord is one pipeline outcome, persisted for the dashboard and
// post-mortems
type TickRecord struct {
	ID         int64     `json:"id"`
	Ticker     string    `json:"ticker,omitempty"`
	Status     string    `json:"status"`
	Kind       string    `json:"kind"`
	Stage      string    `json:"stage,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Data       []byte    `json:"data,omitempty"` // raw JSONB payload
	DurationMs int64     `json:"duration_ms"`
	TickTime   time.Time `json:"tick_time"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScanRecord is one scanner verdict for one ticker
type ScanRecord struct {
	ID            int64     `json:"id"`
	Ticker        string    `json:"ticker"`
	BacktestScore float64   `json:"backtest_score"`
	BacktestGrade string    `json:"backtest_grade"`
	AIScore       *float64  `json:"ai_score,omitempty"`
	FinalScore    float64   `json:"final_score"`
	FinalGrade    string    `json:"final_grade"`
	Selected      bool      `json:"selected"`
	Reason        string    `json:"reason,omitempty"`
	ConfigHash    string    `json:"config_hash,omitempty"`
	ScannedAt     time.Time `json:"scanned_at"`
	CreatedAt     time.Time `json:"created_at"`
}
