// Package engine is the transport-agnostic façade over backtests and live
// sessions. The API layer only talks to the simulation through Service.
package engine

import (
	"context"
	"errors"

	"backtest-core/internal/live"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/db"
)

// ErrInvalidRequest reports a malformed request outside the strategy
// config itself: unknown preset, empty symbol, lookback out of range.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnavailable is returned when an optional backend (history store) is not configured.
var ErrUnavailable = errors.New("backend not configured")

// Service defines the operations exposed to clients.
type Service interface {
	// Backtests
	RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error)
	ListBacktests(ctx context.Context, limit int) ([]db.BacktestRun, error)
	GetBacktest(ctx context.Context, id string) (*db.BacktestRun, error)

	// Live sessions
	StartLive(ctx context.Context, req LiveStartRequest) (live.Ack, error)
	PollLive(ctx context.Context, symbol string) (*live.PollResult, error)
	ListLive(ctx context.Context) []live.SessionInfo
	LiveTrades(ctx context.Context, symbol string, limit int) ([]db.LiveTrade, error)

	// Catalog
	Presets() []strategy.Preset

	// System
	Status(ctx context.Context) SystemStatus
}
