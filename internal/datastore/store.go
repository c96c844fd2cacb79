package datastore

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/exchange"
	"upbit-trading-bot/internal/market"
)

// Store is the on-disk OHLCV cache, one CSV per (ticker, interval). Reads
// are unrestricted; writes to the same file are serialised so concurrent
// syncs never interleave.
type Store struct {
	dir      string
	maxYears int
	logger   zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at dir, purging rows older than maxYears
// on save
func NewStore(dir string, maxYears int, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create %s: %w", dir, err)
	}
	if maxYears <= 0 {
		maxYears = 3
	}
	return &Store{dir: dir, maxYears: maxYears, logger: logger, locks: make(map[string]*sync.Mutex)}, nil
}

func (st *Store) path(ticker string, interval market.Interval) string {
	name := strings.ReplaceAll(ticker, "/", "_") + "_" + string(interval) + ".csv"
	return filepath.Join(st.dir, name)
}

// fileLock returns the per-file writer lock
func (st *Store) fileLock(path string) *sync.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()
	l, ok := st.locks[path]
	if !ok {
		l = &sync.Mutex{}
		st.locks[path] = l
	}
	return l
}

// Load reads the cached series; a missing file yields an empty series
func (st *Store) Load(ticker string, interval market.Interval) (*market.Series, error) {
	s := &market.Series{Ticker: ticker, Interval: interval}

	f, err := os.Open(st.path(ticker, interval))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: open %s/%s: %w", ticker, interval, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("datastore: read %s/%s: %w", ticker, interval, err)
	}
	for i, row := range rows {
		if i == 0 && row[0] == "timestamp" {
			continue
		}
		c, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("datastore: %s/%s row %d: %w", ticker, interval, i, err)
		}
		s.Candles = append(s.Candles, c)
	}
	return s, nil
}

// Save writes the series atomically, purging rows older than maxYears
func (st *Store) Save(s *market.Series) error {
	path := st.path(s.Ticker, s.Interval)
	lock := st.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	cutoff := time.Now().UTC().AddDate(-st.maxYears, 0, 0)
	tmp, err := os.CreateTemp(st.dir, "sync-*.csv")
	if err != nil {
		return fmt.Errorf("datastore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		tmp.Close()
		return fmt.Errorf("datastore: write header: %w", err)
	}
	for _, c := range s.Candles {
		if c.Timestamp.Before(cutoff) {
			continue
		}
		row := []string{
			c.Timestamp.UTC().Format(time.RFC3339),
			formatFloat(c.Open), formatFloat(c.High), formatFloat(c.Low), formatFloat(c.Close),
			formatFloat(c.Volume),
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("datastore: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("datastore: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("datastore: close temp: %w", err)
	}

	// Rename is atomic on the same filesystem, readers never see a torn file.
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("datastore: replace %s: %w", path, err)
	}
	return nil
}

// Sync brings the local cache up to date: load what exists, fetch only the
// missing tail from the exchange, merge, validate, and save. The returned
// series is the merged view.
func (st *Store) Sync(ctx context.Context, client exchange.Client, ticker string, interval market.Interval, window time.Duration) (*market.Series, error) {
	existing, err := st.Load(ticker, interval)
	if err != nil {
		st.logger.Warn().Err(err).Str("ticker", ticker).Msg("cache unreadable, refetching")
		existing = &market.Series{Ticker: ticker, Interval: interval}
	}

	count := missingCount(existing, interval, window, time.Now().UTC())
	if count == 0 {
		return existing, nil
	}

	fresh, err := client.GetOHLCV(ctx, ticker, interval, count)
	if err != nil {
		if existing.Len() > 0 {
			st.logger.Warn().Err(err).Str("ticker", ticker).Msg("fetch failed, serving stale cache")
			return existing, nil
		}
		return nil, fmt.Errorf("datastore: sync %s/%s: %w", ticker, interval, err)
	}

	merged := merge(existing, fresh)
	if issues := market.Validate(merged); len(issues) > 0 {
		st.logger.Debug().Str("ticker", ticker).Int("issues", len(issues)).Msg("corrected candle issues during sync")
	}
	if err := st.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// missingCount estimates how many candles the cache lacks, capped at the
// exchange's practical page size ceiling
func missingCount(existing *market.Series, interval market.Interval, window time.Duration, now time.Time) int {
	const maxFetch = 1000

	step := interval.Duration()
	if step <= 0 {
		return maxFetch
	}
	if existing.Len() == 0 {
		n := int(window / step)
		if n > maxFetch {
			n = maxFetch
		}
		return n
	}
	last, _ := existing.Last()
	gap := now.Sub(last.Timestamp)
	if gap < step {
		return 0
	}
	n := int(gap/step) + 1
	if n > maxFetch {
		n = maxFetch
	}
	return n
}

// merge combines two series, newer rows winning on duplicate timestamps
func merge(a, b *market.Series) *market.Series {
	byTime := make(map[int64]market.Candle, a.Len()+b.Len())
	for _, c := range a.Candles {
		byTime[c.Timestamp.Unix()] = c
	}
	for _, c := range b.Candles {
		byTime[c.Timestamp.Unix()] = c
	}

	out := &market.Series{Ticker: a.Ticker, Interval: a.Interval}
	out.Candles = make([]market.Candle, 0, len(byTime))
	for _, c := range byTime {
		out.Candles = append(out.Candles, c)
	}
	sort.Slice(out.Candles, func(i, j int) bool {
		return out.Candles[i].Timestamp.Before(out.Candles[j].Timestamp)
	})
	return out
}

func parseRow(row []string) (market.Candle, error) {
	if len(row) != 6 {
		return market.Candle{}, fmt.Errorf("want 6 fields, got %d", len(row))
	}
	ts, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return market.Candle{}, err
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return market.Candle{}, err
		}
		vals[i] = v
	}
	return market.Candle{
		Timestamp: ts,
		Open:      vals[0], High: vals[1], Low: vals[2], Close: vals[3],
		Volume: vals[4],
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
