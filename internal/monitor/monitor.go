// Package monitor turns bus events into Prometheus metrics.
package monitor

import (
	"context"

	"github.com/rs/zerolog/log"

	"backtest-core/internal/events"
)

// Monitor watches the bus and updates Metrics.
type Monitor struct {
	Bus     *events.Bus
	Metrics *Metrics
	// Pending reports queued journal writes; optional.
	Pending func() int
}

// Start consumes events until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Metrics == nil {
		log.Warn().Msg("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.SubscribeMany(events.All, 256)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				m.handle(msg)
			}
		}
	}()
}

func (m *Monitor) handle(msg events.Message) {
	switch p := msg.Payload.(type) {
	case events.BacktestCompleted:
		m.Metrics.BacktestsTotal.WithLabelValues("ok").Inc()
		m.Metrics.BacktestDuration.Observe(p.Duration.Seconds())
		m.Metrics.BacktestBars.Observe(float64(p.Bars))
	case events.LivePolled:
		outcome := "unchanged"
		if p.Advanced {
			outcome = "advanced"
		}
		m.Metrics.LivePollsTotal.WithLabelValues(outcome).Inc()
		m.Metrics.LivePollDuration.Observe(p.Duration.Seconds())
	case events.TradeExecuted:
		m.Metrics.TradesTotal.WithLabelValues(p.Kind).Inc()
	case events.LiveSessionStarted:
		log.Debug().Str("symbol", p.Symbol).Str("timeframe", p.Timeframe).Msg("live session started")
	}
	if m.Pending != nil {
		m.Metrics.JournalPending.Set(float64(m.Pending()))
	}
}
