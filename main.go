package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/config"
	"upbit-trading-bot/internal/ai"
	"upbit-trading-bot/internal/api"
	"upbit-trading-bot/internal/auth"
	"upbit-trading-bot/internal/bot"
	"upbit-trading-bot/internal/cache"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/events"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/metrics"
	"upbit-trading-bot/internal/notification"
	"upbit-trading-bot/internal/pipeline"
	"upbit-trading-bot/internal/portfolio"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/scanner"
	"upbit-trading-bot/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load configuration")
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Str("config", path).Msg("starting upbit trading bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	// Redis backs the order ledger, tick lock and risk accumulators.
	// Everything degrades to process-local memory without it.
	var cacheSvc *cache.Service
	if cfg.Redis.Enabled {
		cacheSvc, err = cache.NewService(cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, running memory-only")
			cacheSvc = nil
		}
	}

	vaultClient, err := vault.NewClient(cfg.Vault)
	if err != nil {
		logger.Fatal().Err(err).Msg("vault client")
	}

	client, err := buildExchange(ctx, cfg, vaultClient, cacheSvc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("exchange client")
	}

	store, err := datastore.NewStore(cfg.Datastore.Dir, cfg.Datastore.MaxYears, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("candle store")
	}

	var riskMgr *risk.Manager
	if cacheSvc != nil {
		riskMgr = risk.NewManager(cacheSvc.Client(), cfg.Risk, logger)
	} else {
		riskMgr = risk.NewManager(nil, cfg.Risk, logger)
	}

	pm := portfolio.NewManager(client, riskMgr, cfg.Portfolio, logger)
	evaluator := portfolio.NewEvaluator(cfg.Evaluator)

	reviewer := buildReviewer(ctx, cfg, vaultClient, logger)

	var scan *scanner.Scanner
	if cfg.Scanner.Enabled {
		scan = scanner.New(client, store, reviewer, cfg.Scanner.Config,
			cfg.Backtest, cfg.Strategy, cfg.Filter, logger)
	}

	var repo *database.Repository
	var entries pipeline.EntryTimeSource
	if cfg.Database.Enabled {
		db, err := database.NewDB(cfg.Database.Config, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("database")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrations")
		}
		repo = database.NewRepository(db)
		entries = database.NewEntryTimes(repo)
	}

	deps := pipeline.Deps{
		Client:    client,
		FearGreed: exchange.NewFearGreedService(),
		Portfolio: pm,
		Evaluator: evaluator,
		Scanner:   scan,
		Risk:      riskMgr,
		Store:     store,
		Reviewer:  reviewer,
		Entries:   entries,
		RiskCheck: cfg.Pipeline.RiskCheck,
		Execution: cfg.Pipeline.Execution,
		Backtest:  cfg.Backtest,
		Strategy:  cfg.Strategy,
		Filter:    cfg.Filter,
		Reference: cfg.Pipeline.Reference,
		Quote:     cfg.Exchange.QuoteCurrency,
		Deadline:  cfg.Pipeline.Deadline,
		Logger:    logger,
	}
	var pl *pipeline.Pipeline
	if cfg.Scanner.Enabled {
		deps.RiskCheck.EnableScanning = true
		pl = pipeline.NewHybrid(deps)
	} else {
		pl = pipeline.NewSingleTicker(deps)
	}

	m := metrics.New()
	lock := cache.NewTickLock(cacheSvc, "primary")
	trader := bot.New(cfg.Bot, pl, lock, repo, bus, m, logger)

	notifier := notification.NewManager()
	notifier.AddNotifier(notification.NewTelegramNotifier(cfg.Notification.Telegram))
	notifier.AddNotifier(notification.NewDiscordNotifier(cfg.Notification.Discord))
	notifier.BindBus(bus)

	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc = auth.NewService(cfg.Auth.Config)
	}
	server := api.NewServer(cfg.Server, repo, bus, trader, pm, authSvc, logger)
	server.AttachMetrics(m.Handler())

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	if err := trader.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start bot")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	if err := trader.Stop(); err != nil {
		logger.Warn().Err(err).Msg("stop bot")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if cacheSvc != nil {
		cacheSvc.Close()
	}
	logger.Info().Msg("bye")
}

// buildExchange returns the paper client or a live Upbit client with
// credentials from Vault (or the environment when Vault is disabled)
func buildExchange(ctx context.Context, cfg *config.Config, vc *vault.Client,
	cacheSvc *cache.Service, logger zerolog.Logger) (exchange.Client, error) {
	if cfg.Exchange.Paper {
		logger.Info().Float64("cash", cfg.Exchange.InitialCash).Msg("paper trading mode")
		return exchange.NewPaperClient(
			cfg.Exchange.QuoteCurrency,
			decimal.NewFromFloat(cfg.Exchange.InitialCash),
			cfg.Exchange.CommissionPct,
		), nil
	}

	creds, err := vc.Credentials(ctx, cfg.Exchange.CredentialName)
	if err != nil {
		return nil, err
	}
	ledger := cache.NewOrderLedger(cacheSvc)
	return exchange.NewUpbitClient(exchange.UpbitConfig{
		AccessKey:     creds.AccessKey,
		SecretKey:     creds.SecretKey,
		BaseURL:       cfg.Exchange.BaseURL,
		QuoteCurrency: cfg.Exchange.QuoteCurrency,
		CommissionPct: cfg.Exchange.CommissionPct,
	}, ledger, logger), nil
}

// buildReviewer wires the LLM reviewer, nil when disabled or without a key
func buildReviewer(ctx context.Context, cfg *config.Config, vc *vault.Client, logger zerolog.Logger) *ai.Reviewer {
	if !cfg.AI.Enabled {
		return nil
	}

	clientCfg := cfg.AI.ClientConfig
	if clientCfg.APIKey == "" {
		creds, err := vc.Credentials(ctx, string(clientCfg.Provider))
		if err != nil {
			logger.Warn().Err(err).Msg("no ai credentials, review disabled")
			return nil
		}
		clientCfg.APIKey = creds.AccessKey
	}
	return ai.NewReviewer(ai.NewClient(clientCfg), ai.NewValidator(nil))
}
