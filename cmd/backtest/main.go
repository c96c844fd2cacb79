// Command backtest replays the breakout strategy over archived candles
// and prints the metrics and quality-gate verdict for one ticker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"upbit-trading-bot/config"
	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/market"
	"upbit-trading-bot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	ticker := flag.String("ticker", "KRW-BTC", "ticker to backtest")
	interval := flag.String("interval", "60m", "candle interval: 15m, 60m or 1d")
	sync := flag.Bool("sync", false, "fetch missing candles from the exchange first")
	window := flag.Duration("window", 90*24*time.Hour, "history window when syncing")
	jsonOut := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Level: "warn", Output: "stderr"})

	iv, err := parseInterval(*interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store, err := datastore.NewStore(cfg.Datastore.Dir, cfg.Datastore.MaxYears, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var series *market.Series
	if *sync {
		client := exchange.NewUpbitClient(exchange.UpbitConfig{
			QuoteCurrency: cfg.Exchange.QuoteCurrency,
		}, nil, logger)
		series, err = store.Sync(context.Background(), client, *ticker, iv, *window)
	} else {
		series, err = store.Load(*ticker, iv)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	strat := strategy.NewBreakout(cfg.Strategy)
	engine := backtest.NewEngine(cfg.Backtest, strat, logger)
	result, err := engine.Run(series, cfg.Strategy)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	verdict := cfg.Filter.Evaluate(result.Metrics)

	if *jsonOut {
		out := struct {
			Result *backtest.Result      `json:"result"`
			Filter backtest.FilterResult `json:"filter"`
		}{result, verdict}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	m := result.Metrics
	fmt.Printf("%s  %s  %d candles\n", *ticker, iv, series.Len())
	fmt.Printf("  trades          %d\n", m.TotalTrades)
	fmt.Printf("  total return    %.2f%%\n", m.TotalReturnPct)
	fmt.Printf("  win rate        %.1f%%\n", m.WinRatePct)
	fmt.Printf("  profit factor   %.2f\n", m.ProfitFactor)
	fmt.Printf("  sharpe          %.2f\n", m.SharpeRatio)
	fmt.Printf("  max drawdown    %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("  tradeable       %v\n", verdict.Tradeable())
	fmt.Printf("  researchable    %v\n", verdict.Researchable())
}

func parseInterval(s string) (market.Interval, error) {
	switch s {
	case "15m":
		return market.Interval15m, nil
	case "60m", "1h":
		return market.Interval60m, nil
	case "1d", "day":
		return market.Interval1d, nil
	}
	return "", fmt.Errorf("unknown interval %q", s)
}
