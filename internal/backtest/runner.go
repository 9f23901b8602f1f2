// Package backtest replays a strategy over a historical candle series.
package backtest

import (
	"fmt"
	"time"

	"backtest-core/internal/indicators"
	"backtest-core/internal/market"
	"backtest-core/internal/position"
	"backtest-core/internal/strategy"
)

// DefaultInitialBalance is the starting cash of every run unless overridden.
const DefaultInitialBalance = 10000.0

// Summary is the result of one run.
type Summary struct {
	Profit         float64               `json:"profit"`
	InitialBalance float64               `json:"initialBalance"`
	FinalBalance   float64               `json:"finalBalance"`
	TradeCount     int                   `json:"tradeCount"`
	WinCount       int                   `json:"winCount"`
	WinRate        float64               `json:"winRate"`
	Trades         []position.TradeEvent `json:"trades"`
	Log            []string              `json:"tradeLog"`
	Bars           int                   `json:"bars"`
	WarmupIndex    int                   `json:"warmupIndex"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
}

// Runner drives a fresh ledger across a whole series.
type Runner struct {
	InitialBalance float64
}

// NewRunner creates a runner; a non-positive balance selects the default.
func NewRunner(initialBalance float64) *Runner {
	if initialBalance <= 0 {
		initialBalance = DefaultInitialBalance
	}
	return &Runner{InitialBalance: initialBalance}
}

// Run simulates cfg over series bar by bar, from the warm-up index to the
// last bar, then liquidates any open position at the final close.
// Any error aborts the run; no partial summary is returned.
func (r *Runner) Run(series market.Series, cfg strategy.Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	warmup := cfg.WarmupIndex()
	if len(series) < warmup+1 {
		return nil, fmt.Errorf("%w: %d bars, need at least %d", indicators.ErrInsufficientData, len(series), warmup+1)
	}

	frame, err := indicators.Compute(series, cfg.Specs()...)
	if err != nil {
		return nil, err
	}
	ledger, err := position.New(r.InitialBalance)
	if err != nil {
		return nil, err
	}

	for i := warmup; i < frame.Len(); i++ {
		price, _ := frame.Close(i)
		d := cfg.Decide(frame, i, ledger.State() == position.Long, ledger.EntryPrice())
		if _, err := ledger.AdvanceWithReason(frame.Time(i), price, d.Buy, d.Sell, string(d.Reason)); err != nil {
			return nil, fmt.Errorf("bar %d (%s): %w", i, frame.Time(i).UTC().Format(time.RFC3339), err)
		}
	}

	last := series[len(series)-1]
	if _, err := ledger.Liquidate(last.Time, last.Close); err != nil {
		return nil, fmt.Errorf("liquidation: %w", err)
	}

	events := ledger.Events()
	return &Summary{
		Profit:         ledger.Balance() - r.InitialBalance,
		InitialBalance: r.InitialBalance,
		FinalBalance:   ledger.Balance(),
		TradeCount:     ledger.Trades(),
		WinCount:       ledger.Wins(),
		WinRate:        ledger.WinRate(),
		Trades:         events,
		Log:            FormatLog(events),
		Bars:           len(series),
		WarmupIndex:    warmup,
		Start:          series[0].Time,
		End:            last.Time,
	}, nil
}
