package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"upbit-trading-bot/internal/pipeline"
	"upbit-trading-bot/internal/scanner"
)

// Repository provides data access for trades, tick outcomes and scans
type Repository struct {
	db *DB
}

// NewRepository creates a repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveTrade inserts one executed order
func (r *Repository) SaveTrade(ctx context.Context, trade *Trade) error {
	query := `
		INSERT INTO trades (ticker, side, price, amount, total, commission, pnl, pnl_pct,
		                    trigger, order_id, idempotency_key, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		trade.Ticker, trade.Side, trade.Price, trade.Amount, trade.Total, trade.Commission,
		trade.Pnl, trade.PnlPct, trade.Trigger, trade.OrderID, trade.IdempotencyKey, trade.ExecutedAt,
	).Scan(&trade.ID, &trade.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil // duplicate key, already recorded
	}
	return err
}

// TradeHistory returns trades newest first
func (r *Repository) TradeHistory(ctx context.Context, limit, offset int) ([]*Trade, error) {
	query := `
		SELECT id, ticker, side, price, amount, total, commission, pnl, pnl_pct,
		       trigger, order_id, idempotency_key, executed_at, created_at
		FROM trades
		ORDER BY executed_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("database: trade history: %w", err)
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t := &Trade{}
		if err := rows.Scan(
			&t.ID, &t.Ticker, &t.Side, &t.Price, &t.Amount, &t.Total, &t.Commission,
			&t.Pnl, &t.PnlPct, &t.Trigger, &t.OrderID, &t.IdempotencyKey, &t.ExecutedAt, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// LastBuyTime returns the most recent buy not followed by a sell for the
// ticker, which is the open position's entry time
func (r *Repository) LastBuyTime(ctx context.Context, ticker string) (time.Time, error) {
	query := `
		SELECT b.executed_at
		FROM trades b
		WHERE b.ticker = $1 AND b.side = 'buy'
		  AND NOT EXISTS (
			SELECT 1 FROM trades s
			WHERE s.ticker = b.ticker AND s.side = 'sell' AND s.executed_at > b.executed_at
		  )
		ORDER BY b.executed_at DESC
		LIMIT 1
	`
	var at time.Time
	err := r.db.Pool.QueryRow(ctx, query, ticker).Scan(&at)
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// SaveTick inserts one pipeline outcome
func (r *Repository) SaveTick(ctx context.Context, rec *TickRecord) error {
	query := `
		INSERT INTO ticks (ticker, status, kind, stage, decision, reason, data, duration_ms, tick_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		rec.Ticker, rec.Status, rec.Kind, rec.Stage, rec.Decision, rec.Reason,
		rec.Data, rec.DurationMs, rec.TickTime,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// SaveOutcome converts and persists a pipeline outcome
func (r *Repository) SaveOutcome(ctx context.Context, ticker string, tickTime time.Time, out *pipeline.Outcome) error {
	var data []byte
	if out.Data != nil {
		raw, err := json.Marshal(out.Data)
		if err == nil {
			data = raw
		}
	}
	return r.SaveTick(ctx, &TickRecord{
		Ticker:     ticker,
		Status:     out.Status,
		Kind:       out.Kind,
		Stage:      out.Stage,
		Decision:   out.Decision,
		Reason:     out.Reason,
		Data:       data,
		DurationMs: out.Duration.Milliseconds(),
		TickTime:   tickTime,
	})
}

// RecentTicks returns pipeline outcomes newest first
func (r *Repository) RecentTicks(ctx context.Context, limit int) ([]*TickRecord, error) {
	query := `
		SELECT id, ticker, status, kind, stage, decision, reason, data, duration_ms, tick_time, created_at
		FROM ticks
		ORDER BY tick_time DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database: recent ticks: %w", err)
	}
	defer rows.Close()

	var recs []*TickRecord
	for rows.Next() {
		rec := &TickRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Ticker, &rec.Status, &rec.Kind, &rec.Stage, &rec.Decision,
			&rec.Reason, &rec.Data, &rec.DurationMs, &rec.TickTime, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveScan persists every candidate verdict from one scanner run
func (r *Repository) SaveScan(ctx context.Context, res *scanner.Result, at time.Time) error {
	selected := make(map[string]bool, len(res.Selected))
	for _, c := range res.Selected {
		selected[c.Ticker] = true
	}

	query := `
		INSERT INTO scans (ticker, backtest_score, backtest_grade, ai_score, final_score,
		                   final_grade, selected, reason, config_hash, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, c := range res.Candidates {
		var aiScore *float64
		if c.AIDecision != "" {
			v := c.AIScore
			aiScore = &v
		}
		bt := c.Backtest
		if bt == nil {
			continue
		}
		_, err := r.db.Pool.Exec(ctx, query,
			c.Ticker, bt.Score, string(bt.Grade), aiScore, c.FinalScore,
			string(c.FinalGrade), selected[c.Ticker], c.SelectionReason, bt.ConfigHash, at,
		)
		if err != nil {
			return fmt.Errorf("database: save scan %s: %w", c.Ticker, err)
		}
	}
	return nil
}

// RecentScans returns scanner verdicts newest first
func (r *Repository) RecentScans(ctx context.Context, limit int) ([]*ScanRecord, error) {
	query := `
		SELECT id, ticker, backtest_score, backtest_grade, ai_score, final_score,
		       final_grade, selected, reason, config_hash, scanned_at, created_at
		FROM scans
		ORDER BY scanned_at DESC, final_score DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("database: recent scans: %w", err)
	}
	defer rows.Close()

	var recs []*ScanRecord
	for rows.Next() {
		rec := &ScanRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Ticker, &rec.BacktestScore, &rec.BacktestGrade, &rec.AIScore,
			&rec.FinalScore, &rec.FinalGrade, &rec.Selected, &rec.Reason, &rec.ConfigHash,
			&rec.ScannedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// EntryTimes adapts the repository to the pipeline's entry-time lookup.
// Lookups are bounded so a slow database cannot stall a tick.
type EntryTimes struct {
	repo *Repository
}

// NewEntryTimes creates the adapter
func NewEntryTimes(repo *Repository) *EntryTimes {
	return &EntryTimes{repo: repo}
}

// EntryTime implements pipeline.EntryTimeSource
func (e *EntryTimes) EntryTime(ticker string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	at, err := e.repo.LastBuyTime(ctx, ticker)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}
