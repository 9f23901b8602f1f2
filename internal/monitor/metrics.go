package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the simulation service.
type Metrics struct {
	Registry *prometheus.Registry

	BacktestsTotal   *prometheus.CounterVec // labels: result=ok|error
	BacktestDuration prometheus.Histogram
	BacktestBars     prometheus.Histogram

	LivePollsTotal   *prometheus.CounterVec // labels: outcome=advanced|unchanged|error
	LivePollDuration prometheus.Histogram
	LiveSessions     prometheus.Gauge
	TradesTotal      *prometheus.CounterVec // labels: kind

	HTTPRequests *prometheus.CounterVec // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec

	JournalPending prometheus.Gauge
}

// NewMetrics creates a private registry with every collector registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		BacktestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Backtest runs by result",
		}, []string{"result"}),
		BacktestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall time of a backtest including candle fetch",
			Buckets: prometheus.DefBuckets,
		}),
		BacktestBars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_run_bars",
			Help:    "Bars processed per backtest",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		}),
		LivePollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_polls_total",
			Help: "Live session polls by outcome",
		}, []string{"outcome"}),
		LivePollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "live_poll_duration_seconds",
			Help:    "Wall time of a live poll including candle fetch",
			Buckets: prometheus.DefBuckets,
		}),
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_sessions",
			Help: "Live sessions currently registered",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_trades_total",
			Help: "Live ledger transitions by kind",
		}, []string{"kind"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		JournalPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_pending_writes",
			Help: "Trade journal writes waiting for the next flush",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BacktestsTotal, m.BacktestDuration, m.BacktestBars,
		m.LivePollsTotal, m.LivePollDuration, m.LiveSessions, m.TradesTotal,
		m.HTTPRequests, m.HTTPDuration, m.JournalPending,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveBacktestError counts a failed backtest.
func (m *Metrics) ObserveBacktestError() {
	if m == nil {
		return
	}
	m.BacktestsTotal.WithLabelValues("error").Inc()
}

// ObservePollError counts a failed live poll.
func (m *Metrics) ObservePollError() {
	if m == nil {
		return
	}
	m.LivePollsTotal.WithLabelValues("error").Inc()
}

// SetSessions records the current live session count.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.LiveSessions.Set(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
