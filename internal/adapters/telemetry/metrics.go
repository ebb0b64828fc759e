// Package telemetry exposes Prometheus metrics for the engine:
//
//	gex_trades_opened_total{strategy}      – entries by strategy label
//	gex_trades_closed_total{reason}        – closes by close reason
//	gex_trades_rejected_total{reason}      – rejected entry attempts
//	gex_advisory_outcomes_total{outcome}   – advisory hold/close/unavailable
//	gex_equity_usd                         – current paper equity (gauge)
//	gex_open_positions                     – open position count (gauge)
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	tradesOpened     *prometheus.CounterVec
	tradesClosed     *prometheus.CounterVec
	tradesRejected   *prometheus.CounterVec
	advisoryOutcomes *prometheus.CounterVec
	equity           prometheus.Gauge
	openPositions    prometheus.Gauge
}

// New creates and registers the engine metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gex_trades_opened_total",
			Help: "Positions opened, by strategy label",
		}, []string{"strategy"}),
		tradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gex_trades_closed_total",
			Help: "Positions closed, by close reason",
		}, []string{"reason"}),
		tradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gex_trades_rejected_total",
			Help: "Entry attempts rejected, by reason category",
		}, []string{"reason"}),
		advisoryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gex_advisory_outcomes_total",
			Help: "Advisory call outcomes (hold, close, unavailable)",
		}, []string{"outcome"}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gex_equity_usd",
			Help: "Current paper account equity in USD",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gex_open_positions",
			Help: "Number of open positions",
		}),
	}
	m.registry.MustRegister(m.tradesOpened, m.tradesClosed, m.tradesRejected, m.advisoryOutcomes, m.equity, m.openPositions)
	return m
}

// TradeOpened increments the opened counter for a strategy.
func (m *Metrics) TradeOpened(strategy string) {
	m.tradesOpened.WithLabelValues(strategy).Inc()
}

// TradeClosed increments the closed counter for a reason.
func (m *Metrics) TradeClosed(reason string) {
	m.tradesClosed.WithLabelValues(reason).Inc()
}

// TradeRejected increments the rejected counter for a reason category.
func (m *Metrics) TradeRejected(reason string) {
	m.tradesRejected.WithLabelValues(reason).Inc()
}

// AdvisoryOutcome increments the advisory outcome counter.
func (m *Metrics) AdvisoryOutcome(outcome string) {
	m.advisoryOutcomes.WithLabelValues(outcome).Inc()
}

// SetEquity updates the equity gauge.
func (m *Metrics) SetEquity(v float64) {
	m.equity.Set(v)
}

// SetOpenPositions updates the open position gauge.
func (m *Metrics) SetOpenPositions(n int) {
	m.openPositions.Set(float64(n))
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
