package persistence

import (
	"context"

	"github.com/rs/zerolog/log"

	"backtest-core/internal/events"
	"backtest-core/pkg/db"
)

// TradeJournal records live trade events published on the bus.
type TradeJournal struct {
	Bus    *events.Bus
	Writer *BatchWriter
}

// Record queues one trade for insertion.
func (j *TradeJournal) Record(ev events.TradeExecuted) {
	j.Writer.WriteQuery(db.InsertLiveTradeSQL,
		ev.Symbol, ev.Timeframe, ev.Kind, ev.Price, ev.Value, ev.Reason, ev.BarTime.UTC())
}

// Start subscribes to trade events until ctx is cancelled.
func (j *TradeJournal) Start(ctx context.Context) {
	if j.Bus == nil || j.Writer == nil {
		log.Warn().Msg("trade journal not configured; skipping")
		return
	}
	stream, unsub := j.Bus.Subscribe(events.EventTradeExecuted, 256)
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
				ev, ok := msg.(events.TradeExecuted)
				if !ok {
					continue
				}
				j.Record(ev)
			}
		}
	}()
}
