// Command scan runs the multi-coin scanner once and prints the ranked
// candidates, without trading anything.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"upbit-trading-bot/config"
	"upbit-trading-bot/internal/datastore"
	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/scanner"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall scan timeout")
	jsonOut := flag.Bool("json", false, "print the full result as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Level: "info", Output: "stderr", Pretty: true})

	client := exchange.NewUpbitClient(exchange.UpbitConfig{
		QuoteCurrency: cfg.Exchange.QuoteCurrency,
	}, nil, logger)

	store, err := datastore.NewStore(cfg.Datastore.Dir, cfg.Datastore.MaxYears, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// AI review is skipped here; scoring runs on backtests alone.
	scan := scanner.New(client, store, nil, cfg.Scanner.Config,
		cfg.Backtest, cfg.Strategy, cfg.Filter, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := scan.Scan(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}

	fmt.Printf("scanned %d candidates, selected %d\n\n", len(result.Candidates), len(result.Selected))
	for _, c := range result.Selected {
		score := 0.0
		grade := ""
		if c.Backtest != nil {
			score = c.Backtest.Score
			grade = string(c.Backtest.Grade)
		}
		fmt.Printf("  %-12s final %.1f (%s)  backtest %.1f (%s)  %s\n",
			c.Ticker, c.FinalScore, c.FinalGrade, score, grade, c.SelectionReason)
	}
}
