package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// InsertBacktestRun stores a finished run.
func (d *Database) InsertBacktestRun(ctx context.Context, r BacktestRun) error {
	logJSON, err := json.Marshal(r.TradeLog)
	if err != nil {
		return fmt.Errorf("marshal trade log: %w", err)
	}
	_, err = d.DB.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			id, symbol, timeframe, lookback_days, preset, params, stop_loss,
			initial_balance, final_balance, profit, trade_count, win_count, win_rate,
			bars, warmup_index, start_time, end_time, trade_log
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Symbol, r.Timeframe, r.LookbackDays, r.Preset, r.Params, r.StopLoss,
		r.InitialBalance, r.FinalBalance, r.Profit, r.TradeCount, r.WinCount, r.WinRate,
		r.Bars, r.WarmupIndex, r.StartTime.UTC(), r.EndTime.UTC(), string(logJSON),
	)
	if err != nil {
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

const runColumns = `
	id, symbol, timeframe, lookback_days, COALESCE(preset, ''), params, COALESCE(stop_loss, 0),
	initial_balance, final_balance, profit, trade_count, win_count, win_rate,
	bars, COALESCE(warmup_index, 0), start_time, end_time, trade_log, created_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner, withLog bool) (BacktestRun, error) {
	var (
		r       BacktestRun
		logJSON string
	)
	err := s.Scan(
		&r.ID, &r.Symbol, &r.Timeframe, &r.LookbackDays, &r.Preset, &r.Params, &r.StopLoss,
		&r.InitialBalance, &r.FinalBalance, &r.Profit, &r.TradeCount, &r.WinCount, &r.WinRate,
		&r.Bars, &r.WarmupIndex, &r.StartTime, &r.EndTime, &logJSON, &r.CreatedAt,
	)
	if err != nil {
		return r, err
	}
	if withLog {
		if err := json.Unmarshal([]byte(logJSON), &r.TradeLog); err != nil {
			return r, fmt.Errorf("decode trade log: %w", err)
		}
	}
	return r, nil
}

// ListBacktestRuns returns the most recent runs without their trade logs.
func (d *Database) ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `SELECT `+runColumns+`
		FROM backtest_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		r, err := scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetBacktestRun loads one run including its trade log.
func (d *Database) GetBacktestRun(ctx context.Context, id string) (*BacktestRun, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE id = ?`, id)
	r, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get backtest run: %w", err)
	}
	return &r, nil
}

// ListLiveTrades returns journaled live trades for symbol, newest first.
// An empty symbol lists every symbol.
func (d *Database) ListLiveTrades(ctx context.Context, symbol string, limit int) ([]LiveTrade, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, timeframe, kind, price, value, COALESCE(reason, ''), bar_time, created_at
		FROM live_trades
		WHERE ? = '' OR symbol = ?
		ORDER BY bar_time DESC, id DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query live trades: %w", err)
	}
	defer rows.Close()

	var trades []LiveTrade
	for rows.Next() {
		var t LiveTrade
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Timeframe, &t.Kind, &t.Price, &t.Value, &t.Reason, &t.BarTime, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan live trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// PruneBacktestRuns deletes runs created before cutoff.
func (d *Database) PruneBacktestRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `DELETE FROM backtest_runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune backtest runs: %w", err)
	}
	return res.RowsAffected()
}
