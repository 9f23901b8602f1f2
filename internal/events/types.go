package events

import "time"

// Event enumerates topics published by the simulation service.
type Event string

const (
	EventBacktestCompleted  Event = "backtest.completed"
	EventLiveSessionStarted Event = "live.started"
	EventLivePolled         Event = "live.polled"
	EventTradeExecuted      Event = "live.trade"
)

// All lists every topic, for subscribers that relay everything.
var All = []Event{EventBacktestCompleted, EventLiveSessionStarted, EventLivePolled, EventTradeExecuted}

// BacktestCompleted is published after a backtest run is stored.
type BacktestCompleted struct {
	RunID      string        `json:"runId"`
	Symbol     string        `json:"symbol"`
	Timeframe  string        `json:"timeframe"`
	Profit     float64       `json:"profit"`
	TradeCount int           `json:"tradeCount"`
	WinRate    float64       `json:"winRate"`
	Bars       int           `json:"bars"`
	Duration   time.Duration `json:"durationNs"`
}

// LiveSessionStarted is published when a session is created or replaced.
type LiveSessionStarted struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	StartedAt time.Time `json:"startedAt"`
}

// LivePolled is published after every successful poll.
type LivePolled struct {
	Symbol   string        `json:"symbol"`
	Advanced bool          `json:"advanced"`
	Price    float64       `json:"price"`
	Position string        `json:"positionState"`
	Duration time.Duration `json:"durationNs"`
}

// TradeExecuted is published when a live poll moves a session's ledger.
type TradeExecuted struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Kind      string    `json:"kind"`
	Price     float64   `json:"price"`
	Value     float64   `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	BarTime   time.Time `json:"barTime"`
	Message   string    `json:"message"`
}
