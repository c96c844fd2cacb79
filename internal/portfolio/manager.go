package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/exchange"
)

// TradingMode is the arbiter's verdict for the current tick
type TradingMode string

const (
	ModeEntry      TradingMode = "entry"
	ModeManagement TradingMode = "management"
	ModeBlocked    TradingMode = "blocked"
)

// Config holds portfolio-level risk parameters
type Config struct {
	QuoteCurrency        string  `json:"quote_currency" yaml:"quote_currency"`
	MinPositionValue     float64 `json:"min_position_value" yaml:"min_position_value"`
	MaxPositions         int     `json:"max_positions" yaml:"max_positions"`
	ReserveRatio         float64 `json:"reserve_ratio" yaml:"reserve_ratio"`
	MaxAllocationPerCoin float64 `json:"max_allocation_per_coin" yaml:"max_allocation_per_coin"`
	DailyLossLimitPct    float64 `json:"daily_loss_limit_pct" yaml:"daily_loss_limit_pct"`   // negative
	WeeklyLossLimitPct   float64 `json:"weekly_loss_limit_pct" yaml:"weekly_loss_limit_pct"` // negative
}

// DefaultConfig returns production portfolio defaults
func DefaultConfig() Config {
	return Config{
		QuoteCurrency:        "KRW",
		MinPositionValue:     10_000,
		MaxPositions:         3,
		ReserveRatio:         0.10,
		MaxAllocationPerCoin: 0.40,
		DailyLossLimitPct:    -10,
		WeeklyLossLimitPct:   -15,
	}
}

// Position is one held coin as seen by the arbiter
type Position struct {
	Ticker       string    `json:"ticker"`
	Amount       float64   `json:"amount"`
	Locked       float64   `json:"locked"`
	AvgBuyPrice  float64   `json:"avg_buy_price"`
	CurrentPrice float64   `json:"current_price"`
	EntryTime    time.Time `json:"entry_time,omitempty"`
}

// Value is the position's current market value
func (p Position) Value() float64 {
	return (p.Amount + p.Locked) * p.CurrentPrice
}

// Invested is what the position cost to open
func (p Position) Invested() float64 {
	return (p.Amount + p.Locked) * p.AvgBuyPrice
}

// ProfitRate is the unrealised return as a fraction
func (p Position) ProfitRate() float64 {
	if p.AvgBuyPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgBuyPrice) / p.AvgBuyPrice
}

// Status is the derived portfolio snapshot consumed by the risk stage
type Status struct {
	Positions          []Position  `json:"positions"`
	Cash               float64     `json:"cash"`
	TotalInvested      float64     `json:"total_invested"`
	CurrentValue       float64     `json:"current_value"`
	Pnl                float64     `json:"pnl"`
	PositionCount      int         `json:"position_count"`
	MaxPositions       int         `json:"max_positions"`
	TradingMode        TradingMode `json:"trading_mode"`
	CanOpenNewPosition bool        `json:"can_open_new_position"`
	AvailableCapital   float64     `json:"available_capital"`
	CapitalPerPosition float64     `json:"capital_per_position"`
	DailyPnlPct        float64     `json:"daily_pnl_pct"`
	WeeklyPnlPct       float64     `json:"weekly_pnl_pct"`
	BlockedReason      string      `json:"blocked_reason,omitempty"`
}

// Holds reports whether the portfolio has a position in the ticker
func (s *Status) Holds(ticker string) bool {
	for _, p := range s.Positions {
		if p.Ticker == ticker {
			return true
		}
	}
	return false
}

// HeldTickers lists tickers with open positions
func (s *Status) HeldTickers() []string {
	out := make([]string, 0, len(s.Positions))
	for _, p := range s.Positions {
		out = append(out, p.Ticker)
	}
	return out
}

// PnlSource provides realised pnl accumulators for circuit breaking
type PnlSource interface {
	DailyPnlPct(ctx context.Context) (float64, error)
	WeeklyPnlPct(ctx context.Context) (float64, error)
}

// Manager builds portfolio snapshots from the exchange port
type Manager struct {
	client exchange.Client
	pnl    PnlSource
	cfg    Config
	logger zerolog.Logger
}

// NewManager creates a portfolio manager
func NewManager(client exchange.Client, pnl PnlSource, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{client: client, pnl: pnl, cfg: cfg, logger: logger}
}

// Snapshot reads balances and prices and derives the full status, including
// the trading-mode decision
func (m *Manager) Snapshot(ctx context.Context) (*Status, error) {
	balances, err := m.client.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: read balances: %w", err)
	}

	st := &Status{}
	for _, bal := range balances {
		if bal.Currency == m.cfg.QuoteCurrency {
			st.Cash = bal.Available.InexactFloat64()
			continue
		}
		pos, err := m.buildPosition(ctx, bal)
		if err != nil {
			m.logger.Warn().Err(err).Str("currency", bal.Currency).Msg("skipping unpriceable balance")
			continue
		}
		if pos.Value() < m.cfg.MinPositionValue {
			continue // dust
		}
		st.Positions = append(st.Positions, pos)
		st.TotalInvested += pos.Invested()
		st.CurrentValue += pos.Value()
	}
	st.PositionCount = len(st.Positions)
	st.MaxPositions = m.cfg.MaxPositions
	st.Pnl = st.CurrentValue - st.TotalInvested

	m.applyMode(ctx, st)
	m.applyCapital(st)
	return st, nil
}

func (m *Manager) buildPosition(ctx context.Context, bal exchange.BalanceInfo) (Position, error) {
	ticker := m.cfg.QuoteCurrency + "-" + strings.ToUpper(bal.Currency)
	price, err := m.client.GetCurrentPrice(ctx, ticker)
	if err != nil {
		return Position{}, err
	}
	return Position{
		Ticker:       ticker,
		Amount:       bal.Available.InexactFloat64(),
		Locked:       bal.Locked.InexactFloat64(),
		AvgBuyPrice:  bal.AvgBuyPrice.InexactFloat64(),
		CurrentPrice: price.InexactFloat64(),
	}, nil
}

// applyMode selects BLOCKED, ENTRY or MANAGEMENT
func (m *Manager) applyMode(ctx context.Context, st *Status) {
	if m.pnl != nil {
		daily, err := m.pnl.DailyPnlPct(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("daily pnl unavailable, not blocking")
		} else {
			st.DailyPnlPct = daily
			if daily <= m.cfg.DailyLossLimitPct {
				st.TradingMode = ModeBlocked
				st.BlockedReason = fmt.Sprintf("daily loss %.2f%% breaches limit %.2f%%", daily, m.cfg.DailyLossLimitPct)
				return
			}
		}
		weekly, err := m.pnl.WeeklyPnlPct(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("weekly pnl unavailable, not blocking")
		} else {
			st.WeeklyPnlPct = weekly
			if weekly <= m.cfg.WeeklyLossLimitPct {
				st.TradingMode = ModeBlocked
				st.BlockedReason = fmt.Sprintf("weekly loss %.2f%% breaches limit %.2f%%", weekly, m.cfg.WeeklyLossLimitPct)
				return
			}
		}
	}

	if st.PositionCount < m.cfg.MaxPositions && st.Cash >= m.cfg.MinPositionValue {
		st.TradingMode = ModeEntry
		st.CanOpenNewPosition = true
		return
	}
	st.TradingMode = ModeManagement
}

// applyCapital computes what a new position may spend: cash above the
// reserve, capped by the per-coin allocation limit, split across the
// remaining slots
func (m *Manager) applyCapital(st *Status) {
	if st.TradingMode == ModeBlocked {
		return
	}
	total := st.Cash + st.CurrentValue
	available := st.Cash - m.cfg.ReserveRatio*total
	if limit := m.cfg.MaxAllocationPerCoin * total; available > limit {
		available = limit
	}
	if available < 0 {
		available = 0
	}
	st.AvailableCapital = available

	slots := m.cfg.MaxPositions - st.PositionCount
	if slots > 0 {
		st.CapitalPerPosition = available / float64(slots)
	}
	if st.AvailableCapital < m.cfg.MinPositionValue {
		st.CanOpenNewPosition = false
	}
}
