// Package config loads the bot's configuration: YAML file, then
// environment overrides, on top of per-package defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/api"
	"upbit-trading-bot/internal/auth"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/bot"
	"upbit-trading-bot/internal/cache"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/notification"
	"upbit-trading-bot/internal/pipeline"
	"upbit-trading-bot/internal/portfolio"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/scanner"
	"upbit-trading-bot/internal/strategy"
	"upbit-trading-bot/internal/vault"
)

// ExchangeConfig selects the trading venue
type ExchangeConfig struct {
	Paper          bool    `json:"paper"`           // paper client instead of live Upbit
	InitialCash    float64 `json:"initial_cash"`    // paper starting balance
	QuoteCurrency  string  `json:"quote_currency"`  // e.g. KRW
	CommissionPct  float64 `json:"commission_pct"`  // taker fee fraction
	BaseURL        string  `json:"base_url"`        // live API, empty for default
	CredentialName string  `json:"credential_name"` // vault secret name
}

// DatabaseConfig adds the on/off switch around the connection settings
type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	database.Config `json:",squash"`
}

// AuthConfig adds the on/off switch around the auth settings
type AuthConfig struct {
	Enabled bool `json:"enabled"`
	auth.Config `json:",squash"`
}

// AIConfig adds the on/off switch around the LLM client settings
type AIConfig struct {
	Enabled bool `json:"enabled"`
	ai.ClientConfig `json:",squash"`
}

// ScannerConfig adds the on/off switch around the scanner settings
type ScannerConfig struct {
	Enabled bool `json:"enabled"`
	scanner.Config `json:",squash"`
}

// DatastoreConfig points at the local candle archive
type DatastoreConfig struct {
	Dir      string `json:"dir"`
	MaxYears int    `json:"max_years"`
}

// PipelineConfig groups the stage settings
type PipelineConfig struct {
	RiskCheck pipeline.RiskCheckConfig `json:"risk_check"`
	Execution pipeline.ExecutionConfig `json:"execution"`
	Reference string                   `json:"reference"` // correlation reference ticker
	Deadline  time.Duration            `json:"deadline"`
}

// NotificationConfig groups delivery channels
type NotificationConfig struct {
	Telegram notification.TelegramConfig `json:"telegram"`
	Discord  notification.DiscordConfig  `json:"discord"`
}

// Config is the full bot configuration
type Config struct {
	Logging      logging.Config            `json:"logging"`
	Server       api.Config                `json:"server"`
	Auth         AuthConfig                `json:"auth"`
	Vault        vault.Config              `json:"vault"`
	Exchange     ExchangeConfig            `json:"exchange"`
	Database     DatabaseConfig            `json:"database"`
	Redis        cache.Config              `json:"redis"`
	Datastore    DatastoreConfig           `json:"datastore"`
	Risk         risk.Config               `json:"risk"`
	Portfolio    portfolio.Config          `json:"portfolio"`
	Evaluator    portfolio.EvaluatorConfig `json:"evaluator"`
	Strategy     strategy.Config           `json:"strategy"`
	Backtest     backtest.Config           `json:"backtest"`
	Filter       backtest.FilterConfig     `json:"filter"`
	Scanner      ScannerConfig             `json:"scanner"`
	AI           AIConfig                  `json:"ai"`
	Pipeline     PipelineConfig            `json:"pipeline"`
	Bot          bot.Config                `json:"bot"`
	Notification NotificationConfig        `json:"notification"`
}

// Default composes every package's production defaults
func Default() *Config {
	return &Config{
		Logging: logging.Config{Level: "info", Output: "stdout"},
		Server:  api.Config{Host: "0.0.0.0", Port: 8080},
		Vault:   vault.Config{MountPath: "secret"},
		Exchange: ExchangeConfig{
			Paper:          true,
			InitialCash:    10_000_000,
			QuoteCurrency:  "KRW",
			CommissionPct:  0.0005,
			CredentialName: "upbit",
		},
		Redis:     cache.Config{Address: "localhost:6379"},
		Datastore: DatastoreConfig{Dir: "data/candles", MaxYears: 3},
		Risk:      risk.DefaultConfig(),
		Portfolio: portfolio.DefaultConfig(),
		Evaluator: portfolio.DefaultEvaluatorConfig(),
		Strategy:  strategy.DefaultConfig(),
		Backtest:  backtest.DefaultConfig(),
		Filter:    backtest.DefaultFilterConfig(),
		Scanner:   ScannerConfig{Config: scanner.DefaultConfig()},
		AI:        AIConfig{ClientConfig: ai.DefaultClientConfig()},
		Pipeline: PipelineConfig{
			RiskCheck: pipeline.RiskCheckConfig{
				FallbackTicker:   "KRW-BTC",
				MinPositionValue: 10_000,
				MaxPositions:     portfolio.DefaultConfig().MaxPositions,
			},
			Execution: pipeline.DefaultExecutionConfig(),
			Reference: "KRW-BTC",
			Deadline:  pipeline.DefaultTickDeadline,
		},
		Bot: bot.DefaultConfig(),
	}
}

// Load reads the YAML file at path (optional) and environment overrides
// on top of the defaults. Env vars use the BOT_ prefix with underscores,
// e.g. BOT_SERVER_PORT=9090.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run
func (c *Config) Validate() error {
	if c.Exchange.QuoteCurrency == "" {
		return fmt.Errorf("config: exchange.quote_currency is required")
	}
	if c.Bot.Ticker == "" && !c.Scanner.Enabled {
		return fmt.Errorf("config: bot.ticker is required when the scanner is disabled")
	}
	if c.Auth.Enabled {
		if c.Auth.Username == "" || c.Auth.PasswordHash == "" {
			return fmt.Errorf("config: auth enabled but username or password_hash missing")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("config: auth enabled but jwt_secret missing")
		}
	}
	if c.Risk.BaselineCapital <= 0 {
		return fmt.Errorf("config: risk.baseline_capital must be positive")
	}
	return nil
}
