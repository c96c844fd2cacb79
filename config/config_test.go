package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "KRW", cfg.Exchange.QuoteCurrency)
	require.True(t, cfg.Exchange.Paper)
	require.Equal(t, time.Minute, cfg.Bot.TickInterval)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
bot:
  ticker: KRW-ETH
  tick_interval: 5m
exchange:
  paper: false
  quote_currency: KRW
scanner:
  enabled: true
  workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "KRW-ETH", cfg.Bot.Ticker)
	require.Equal(t, 5*time.Minute, cfg.Bot.TickInterval)
	require.False(t, cfg.Exchange.Paper)
	require.True(t, cfg.Scanner.Enabled)
	require.Equal(t, 8, cfg.Scanner.Workers)

	// Untouched sections keep their defaults.
	require.Equal(t, "info", cfg.Logging.Level)
	require.Greater(t, cfg.Risk.BaselineCapital, 0.0)
}

func TestValidateRejectsAuthWithoutSecret(t *testing.T) {
	cfg := Default()
	cfg.Auth.Enabled = true
	cfg.Auth.Username = "operator"
	cfg.Auth.PasswordHash = "$2a$12$x"
	require.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "secret"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresTickerWithoutScanner(t *testing.T) {
	cfg := Default()
	cfg.Bot.Ticker = ""
	cfg.Scanner.Enabled = false
	require.Error(t, cfg.Validate())

	cfg.Scanner.Enabled = true
	require.NoError(t, cfg.Validate())
}
