package engine

import (
	"time"

	"backtest-core/internal/backtest"
	"backtest-core/internal/strategy"
)

// DefaultTimeframe applies when neither the request nor its preset names one.
const DefaultTimeframe = "1h"

// DefaultLookbackDays applies when a backtest request leaves lookbackDays unset.
const DefaultLookbackDays = 30

// BacktestRequest is a client backtest submission. When Preset is set and
// both indicator maps are empty, the preset's strategy is used.
type BacktestRequest struct {
	Symbol       string `json:"symbol"`
	Timeframe    string `json:"timeframe"`
	LookbackDays int    `json:"lookbackDays"`
	Preset       string `json:"preset,omitempty"`
	strategy.Params
}

// BacktestResult is a finished run plus its identity.
type BacktestResult struct {
	RunID        string `json:"runId"`
	Symbol       string `json:"symbol"`
	Timeframe    string `json:"timeframe"`
	LookbackDays int    `json:"lookbackDays"`
	Preset       string `json:"preset,omitempty"`
	*backtest.Summary
}

// LiveStartRequest starts or replaces a live session.
type LiveStartRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Preset    string `json:"preset,omitempty"`
	strategy.Params
}

// SystemStatus represents the service runtime status.
type SystemStatus struct {
	Status          string    `json:"status"`
	Version         string    `json:"version"`
	UseMockFeed     bool      `json:"use_mock_feed"`
	CandleCache     bool      `json:"candle_cache"`
	HistoryEnabled  bool      `json:"history_enabled"`
	LiveSessions    int       `json:"live_sessions"`
	InitialBalance  float64   `json:"initial_balance"`
	MaxLookbackDays int       `json:"max_lookback_days"`
	ServerTime      time.Time `json:"server_time"`
}
