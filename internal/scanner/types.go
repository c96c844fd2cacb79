package scanner

import (
	"time"

	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/market"
)

// Grade is the backtest verdict for one coin
type Grade string

const (
	GradeStrongPass Grade = "STRONG PASS"
	GradeWeakPass   Grade = "WEAK PASS"
	GradeFail       Grade = "FAIL"
)

// FinalGrade combines backtest and AI verdicts
type FinalGrade string

const (
	FinalStrongBuy FinalGrade = "STRONG BUY"
	FinalBuy       FinalGrade = "BUY"
	FinalWeakBuy   FinalGrade = "WEAK BUY"
	FinalHold      FinalGrade = "HOLD"
	FinalFail      FinalGrade = "FAIL"
)

// BacktestScore is the scored backtest outcome for one coin
type BacktestScore struct {
	Ticker     string                 `json:"ticker"`
	Metrics    backtest.Metrics       `json:"metrics"`
	Filter     backtest.FilterResult  `json:"filter"`
	Score      float64                `json:"score"` // 0..100
	Grade      Grade                  `json:"grade"`
	Passed     bool                   `json:"passed"`
	Reason     string                 `json:"reason"`
	ConfigHash string                 `json:"config_hash"`
}

// Candidate carries one coin through the scan phases
type Candidate struct {
	Ticker          string             `json:"ticker"`
	Coin            exchange.CoinInfo  `json:"coin"`
	Sector          string             `json:"sector,omitempty"`
	Backtest        *BacktestScore     `json:"backtest,omitempty"`
	AIScore         float64            `json:"ai_score"`
	AIDecision      string             `json:"ai_decision,omitempty"`
	AIConfidence    float64            `json:"ai_confidence,omitempty"`
	FinalScore      float64            `json:"final_score"`
	FinalGrade      FinalGrade         `json:"final_grade"`
	Selected        bool               `json:"selected"`
	SelectionReason string             `json:"selection_reason,omitempty"`
	Series          *market.Series     `json:"-"` // synced local history
}

// Result is the full scan outcome
type Result struct {
	ScanTime          time.Time    `json:"scan_time"`
	LiquidityScanned  int          `json:"liquidity_scanned"`
	BacktestPassed    int          `json:"backtest_passed"`
	AIAnalyzed        int          `json:"ai_analyzed"`
	Candidates        []*Candidate `json:"candidates"`
	Selected          []*Candidate `json:"selected"`
	Duration          time.Duration `json:"duration"`
}

// Config holds scanner parameters across all five phases
type Config struct {
	QuoteCurrency string          `json:"quote_currency" yaml:"quote_currency"`
	Interval      market.Interval `json:"interval" yaml:"interval"`

	MinVolumeQuote float64 `json:"min_volume_quote" yaml:"min_volume_quote"`
	LiquidityTopN  int     `json:"liquidity_top_n" yaml:"liquidity_top_n"`

	EnableSectorDiversification bool `json:"enable_sector_diversification" yaml:"enable_sector_diversification"`
	OnePerSector                bool `json:"one_per_sector" yaml:"one_per_sector"`
	DropUnknownSector           bool `json:"drop_unknown_sector" yaml:"drop_unknown_sector"`

	SyncWindow      time.Duration `json:"sync_window" yaml:"sync_window"`
	SyncConcurrency int           `json:"sync_concurrency" yaml:"sync_concurrency"`
	SyncTimeout     time.Duration `json:"sync_timeout" yaml:"sync_timeout"`
	BulkSyncTimeout time.Duration `json:"bulk_sync_timeout" yaml:"bulk_sync_timeout"`

	Workers      int     `json:"workers" yaml:"workers"`
	EnableAI     bool    `json:"enable_ai" yaml:"enable_ai"`
	AITopN       int     `json:"ai_top_n" yaml:"ai_top_n"`
	MinScore     float64 `json:"min_score" yaml:"min_score"`
	FinalSelectN int     `json:"final_select_n" yaml:"final_select_n"`
}

// DefaultConfig returns production scanner defaults
func DefaultConfig() Config {
	return Config{
		QuoteCurrency:               "KRW",
		Interval:                    market.Interval60m,
		MinVolumeQuote:              1_000_000_000,
		LiquidityTopN:               10,
		EnableSectorDiversification: true,
		OnePerSector:                true,
		SyncWindow:                  2 * 365 * 24 * time.Hour,
		SyncConcurrency:             4,
		SyncTimeout:                 60 * time.Second,
		BulkSyncTimeout:             180 * time.Second,
		Workers:                     4,
		AITopN:                      5,
		MinScore:                    50,
		FinalSelectN:                2,
	}
}
