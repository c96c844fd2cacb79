package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key formats for the realised-pnl accumulators and trade throttle
const (
	keyDailyPnl  = "risk:pnl:day:%s"  // 2006-01-02
	keyWeeklyPnl = "risk:pnl:week:%s" // 2006-W02
	keyLastTrade = "risk:last_trade:%s"

	dailyTTL  = 48 * time.Hour
	weeklyTTL = 9 * 24 * time.Hour
)

// Config holds risk accounting parameters
type Config struct {
	BaselineCapital       float64       `json:"baseline_capital" yaml:"baseline_capital"`
	MinTradeInterval      time.Duration `json:"min_trade_interval" yaml:"min_trade_interval"`
}

// DefaultConfig returns production risk defaults
func DefaultConfig() Config {
	return Config{
		BaselineCapital:  10_000_000,
		MinTradeInterval: time.Hour,
	}
}

// Manager accumulates realised pnl for circuit breaking and throttles trade
// frequency per ticker. Redis makes the accumulators survive restarts and
// shared across instances; when Redis is down everything degrades to
// process-local memory.
type Manager struct {
	rdb    *redis.Client // nil means memory only
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	memPnl    map[string]float64
	memTrades map[string]time.Time
}

// NewManager creates a risk manager; rdb may be nil for memory-only mode
func NewManager(rdb *redis.Client, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		rdb:       rdb,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		memPnl:    make(map[string]float64),
		memTrades: make(map[string]time.Time),
	}
}

// SetBaseline replaces the capital base the loss percentages are computed
// against, normally the session's starting equity
func (m *Manager) SetBaseline(capital float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if capital > 0 {
		m.cfg.BaselineCapital = capital
	}
}

// RecordRealizedPnl adds a closed trade's pnl to both accumulators
func (m *Manager) RecordRealizedPnl(ctx context.Context, pnl float64) {
	day := m.dailyKey()
	week := m.weeklyKey()

	if m.rdb != nil {
		pipe := m.rdb.Pipeline()
		pipe.IncrByFloat(ctx, day, pnl)
		pipe.Expire(ctx, day, dailyTTL)
		pipe.IncrByFloat(ctx, week, pnl)
		pipe.Expire(ctx, week, weeklyTTL)
		if _, err := pipe.Exec(ctx); err == nil {
			return
		} else {
			m.logger.Warn().Err(err).Msg("redis pnl record failed, using memory")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.memPnl[day] += pnl
	m.memPnl[week] += pnl
}

// DailyPnlPct returns today's realised pnl as a percentage of baseline
func (m *Manager) DailyPnlPct(ctx context.Context) (float64, error) {
	return m.pnlPct(ctx, m.dailyKey())
}

// WeeklyPnlPct returns this ISO week's realised pnl as a percentage
func (m *Manager) WeeklyPnlPct(ctx context.Context) (float64, error) {
	return m.pnlPct(ctx, m.weeklyKey())
}

func (m *Manager) pnlPct(ctx context.Context, key string) (float64, error) {
	if m.cfg.BaselineCapital <= 0 {
		return 0, fmt.Errorf("risk: baseline capital not set")
	}

	if m.rdb != nil {
		val, err := m.rdb.Get(ctx, key).Float64()
		switch {
		case err == nil:
			return val / m.cfg.BaselineCapital * 100, nil
		case err == redis.Nil:
			return 0, nil
		default:
			m.logger.Warn().Err(err).Str("key", key).Msg("redis pnl read failed, using memory")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memPnl[key] / m.cfg.BaselineCapital * 100, nil
}

// RecordTradeTime stamps the last trade for a ticker
func (m *Manager) RecordTradeTime(ctx context.Context, ticker string) {
	now := m.now()
	if m.rdb != nil {
		key := fmt.Sprintf(keyLastTrade, ticker)
		if err := m.rdb.Set(ctx, key, now.Format(time.RFC3339), m.cfg.MinTradeInterval).Err(); err == nil {
			return
		} else {
			m.logger.Warn().Err(err).Str("ticker", ticker).Msg("redis trade stamp failed, using memory")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memTrades[ticker] = now
}

// CanTrade reports whether the min-trade-interval throttle allows a new
// order on the ticker
func (m *Manager) CanTrade(ctx context.Context, ticker string) bool {
	if m.rdb != nil {
		key := fmt.Sprintf(keyLastTrade, ticker)
		exists, err := m.rdb.Exists(ctx, key).Result()
		if err == nil {
			return exists == 0
		}
		m.logger.Warn().Err(err).Str("ticker", ticker).Msg("redis throttle read failed, using memory")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.memTrades[ticker]
	return !ok || m.now().Sub(last) >= m.cfg.MinTradeInterval
}

func (m *Manager) dailyKey() string {
	return fmt.Sprintf(keyDailyPnl, m.now().UTC().Format("2006-01-02"))
}

func (m *Manager) weeklyKey() string {
	year, week := m.now().UTC().ISOWeek()
	return fmt.Sprintf(keyWeeklyPnl, fmt.Sprintf("%d-W%02d", year, week))
}
