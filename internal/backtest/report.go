package backtest

import (
	"fmt"
	"strconv"

	"backtest-core/internal/position"
	"backtest-core/internal/strategy"
)

const logTimeLayout = "2006-01-02 15:04:05"

// Action is the human label of a trade event.
func Action(ev position.TradeEvent) string {
	switch ev.Kind {
	case position.Entry:
		return "Buy"
	case position.ForcedExit:
		return "Final Sell"
	}
	if ev.Reason == string(strategy.ReasonStopLoss) {
		return "Stop Loss Sell"
	}
	return "Sell"
}

// FormatEvent renders one event as a trade-log line, e.g.
// "[2024-01-01 00:00:00] Buy Signal: Price: 101.5, Balance: $10000.00".
func FormatEvent(ev position.TradeEvent) string {
	return fmt.Sprintf("[%s] %s Signal: Price: %s, Balance: $%.2f",
		ev.Time.UTC().Format(logTimeLayout),
		Action(ev),
		strconv.FormatFloat(ev.Price, 'f', -1, 64),
		ev.Value,
	)
}

// FormatLog renders every event in order.
func FormatLog(events []position.TradeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = FormatEvent(ev)
	}
	return out
}
