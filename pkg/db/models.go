package db

import "time"

// BacktestRun is a finished backtest as stored for history.
type BacktestRun struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	LookbackDays   int       `json:"lookbackDays"`
	Preset         string    `json:"preset,omitempty"`
	Params         string    `json:"-"`
	StopLoss       float64   `json:"stopLoss"`
	InitialBalance float64   `json:"initialBalance"`
	FinalBalance   float64   `json:"finalBalance"`
	Profit         float64   `json:"profit"`
	TradeCount     int       `json:"tradeCount"`
	WinCount       int       `json:"winCount"`
	WinRate        float64   `json:"winRate"`
	Bars           int       `json:"bars"`
	WarmupIndex    int       `json:"warmupIndex"`
	StartTime      time.Time `json:"start"`
	EndTime        time.Time `json:"end"`
	TradeLog       []string  `json:"tradeLog,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LiveTrade is one journaled live-session transition.
type LiveTrade struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Kind      string    `json:"kind"`
	Price     float64   `json:"price"`
	Value     float64   `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	BarTime   time.Time `json:"barTime"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsertLiveTradeSQL is the statement used to journal a live trade; the
// batch writer executes it with (symbol, timeframe, kind, price, value,
// reason, bar_time).
const InsertLiveTradeSQL = `
	INSERT INTO live_trades (symbol, timeframe, kind, price, value, reason, bar_time)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`
