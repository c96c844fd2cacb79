// Package metrics exposes Prometheus instrumentation for the tick loop,
// order flow and portfolio state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the bot records into
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal   *prometheus.CounterVec
	tickDuration prometheus.Histogram
	tradesTotal  *prometheus.CounterVec
	tradeValue   *prometheus.CounterVec
	realizedPnl  prometheus.Counter

	portfolioCash  prometheus.Gauge
	portfolioValue prometheus.Gauge
	openPositions  prometheus.Gauge
	dailyPnlPct    prometheus.Gauge
	weeklyPnlPct   prometheus.Gauge
	scanDuration   prometheus.Histogram
	scanCandidates prometheus.Gauge
}

// New creates and registers all collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Pipeline runs by status and kind.",
		}, []string{"status", "kind"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_tick_duration_seconds",
			Help:    "Wall time of one pipeline run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}),
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trades_total",
			Help: "Executed orders by side.",
		}, []string{"side"}),
		tradeValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_trade_value_total",
			Help: "Traded notional by side, in quote currency.",
		}, []string{"side"}),
		realizedPnl: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_realized_pnl_total",
			Help: "Cumulative realized pnl in quote currency, signed.",
		}),
		portfolioCash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_portfolio_cash",
			Help: "Free quote-currency balance.",
		}),
		portfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_portfolio_value",
			Help: "Market value of held positions.",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Number of held positions.",
		}),
		dailyPnlPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_daily_pnl_pct",
			Help: "Realized pnl today as a percent of baseline capital.",
		}),
		weeklyPnlPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_weekly_pnl_pct",
			Help: "Realized pnl this week as a percent of baseline capital.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_scan_duration_seconds",
			Help:    "Wall time of one multi-coin scan.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		scanCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_scan_candidates",
			Help: "Candidates evaluated in the last scan.",
		}),
	}

	reg.MustRegister(
		m.ticksTotal, m.tickDuration, m.tradesTotal, m.tradeValue, m.realizedPnl,
		m.portfolioCash, m.portfolioValue, m.openPositions,
		m.dailyPnlPct, m.weeklyPnlPct, m.scanDuration, m.scanCandidates,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one pipeline outcome
func (m *Metrics) ObserveTick(status, kind string, seconds float64) {
	m.ticksTotal.WithLabelValues(status, kind).Inc()
	m.tickDuration.Observe(seconds)
}

// ObserveTrade records one filled order
func (m *Metrics) ObserveTrade(side string, notional float64) {
	m.tradesTotal.WithLabelValues(side).Inc()
	m.tradeValue.WithLabelValues(side).Add(notional)
}

// ObserveRealizedPnl accumulates a sell's realized pnl
func (m *Metrics) ObserveRealizedPnl(pnl float64) {
	m.realizedPnl.Add(pnl)
}

// SetPortfolio records the latest portfolio snapshot
func (m *Metrics) SetPortfolio(cash, value float64, positions int, dailyPct, weeklyPct float64) {
	m.portfolioCash.Set(cash)
	m.portfolioValue.Set(value)
	m.openPositions.Set(float64(positions))
	m.dailyPnlPct.Set(dailyPct)
	m.weeklyPnlPct.Set(weeklyPct)
}

// ObserveScan records one scanner run
func (m *Metrics) ObserveScan(seconds float64, candidates int) {
	m.scanDuration.Observe(seconds)
	m.scanCandidates.Set(float64(candidates))
}
