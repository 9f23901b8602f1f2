package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-core/internal/events"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if labelsMatch(metric, labels) {
				if c := metric.GetCounter(); c != nil {
					return c.GetValue()
				}
				if g := metric.GetGauge(); g != nil {
					return g.GetValue()
				}
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, l := range metric.GetLabel() {
		got[l.GetName()] = l.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestMonitorCountsEvents(t *testing.T) {
	bus := events.NewBus()
	m := NewMetrics()
	mon := &Monitor{Bus: bus, Metrics: m, Pending: func() int { return 3 }}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mon.Start(ctx)

	bus.Publish(events.EventBacktestCompleted, events.BacktestCompleted{Bars: 100, Duration: time.Millisecond})
	bus.Publish(events.EventLivePolled, events.LivePolled{Advanced: true})
	bus.Publish(events.EventLivePolled, events.LivePolled{Advanced: false})
	bus.Publish(events.EventTradeExecuted, events.TradeExecuted{Kind: "ENTRY"})

	require.Eventually(t, func() bool {
		return counterValue(t, m, "live_trades_total", map[string]string{"kind": "ENTRY"}) == 1 &&
			counterValue(t, m, "backtest_runs_total", map[string]string{"result": "ok"}) == 1 &&
			counterValue(t, m, "live_polls_total", map[string]string{"outcome": "advanced"}) == 1 &&
			counterValue(t, m, "live_polls_total", map[string]string{"outcome": "unchanged"}) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3.0, counterValue(t, m, "journal_pending_writes", nil))
}

func TestDirectObservers(t *testing.T) {
	m := NewMetrics()
	m.ObserveBacktestError()
	m.ObservePollError()
	m.SetSessions(4)
	m.ObserveHTTP(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, m, "backtest_runs_total", map[string]string{"result": "error"}))
	assert.Equal(t, 1.0, counterValue(t, m, "live_polls_total", map[string]string{"outcome": "error"}))
	assert.Equal(t, 4.0, counterValue(t, m, "live_sessions", nil))
	assert.Equal(t, 1.0, counterValue(t, m, "http_requests_total", map[string]string{"route": "/health", "status": "200"}))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.ObserveBacktestError()
		nilMetrics.SetSessions(1)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.SetSessions(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "live_sessions 2"))
}
