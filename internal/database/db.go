package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database connection settings
type Config struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// NewDB connects to PostgreSQL and verifies the connection
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("database: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("postgres connected")
	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates the schema if it does not exist
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			ticker VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			price DECIMAL(24, 8) NOT NULL,
			amount DECIMAL(24, 8) NOT NULL,
			total DECIMAL(24, 8) NOT NULL,
			commission DECIMAL(24, 8) NOT NULL DEFAULT 0,
			pnl DECIMAL(24, 8),
			pnl_pct DECIMAL(10, 4),
			trigger VARCHAR(40),
			order_id VARCHAR(64),
			idempotency_key VARCHAR(64) UNIQUE,
			executed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at)`,

		`CREATE TABLE IF NOT EXISTS ticks (
			id SERIAL PRIMARY KEY,
			ticker VARCHAR(20),
			status VARCHAR(16) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			stage VARCHAR(40),
			decision VARCHAR(8),
			reason TEXT,
			data JSONB,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			tick_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_tick_time ON ticks(tick_time)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_ticker ON ticks(ticker)`,

		`CREATE TABLE IF NOT EXISTS scans (
			id SERIAL PRIMARY KEY,
			ticker VARCHAR(20) NOT NULL,
			backtest_score DECIMAL(6, 1) NOT NULL,
			backtest_grade VARCHAR(16) NOT NULL,
			ai_score DECIMAL(6, 1),
			final_score DECIMAL(6, 1) NOT NULL,
			final_grade VARCHAR(16) NOT NULL,
			selected BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT,
			config_hash VARCHAR(16),
			scanned_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_scanned_at ON scans(scanned_at)`,
	}

	for i, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("database: migration %d: %w", i, err)
		}
	}
	db.logger.Info().Int("statements", len(migrations)).Msg("migrations applied")
	return nil
}
