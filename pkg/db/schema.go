package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS backtest_runs (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    lookback_days INTEGER NOT NULL,
    preset TEXT,
    params TEXT NOT NULL,
    initial_balance REAL NOT NULL,
    final_balance REAL NOT NULL,
    profit REAL NOT NULL,
    trade_count INTEGER NOT NULL,
    win_count INTEGER NOT NULL,
    win_rate REAL NOT NULL,
    bars INTEGER NOT NULL,
    start_time DATETIME,
    end_time DATETIME,
    trade_log TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at);

CREATE TABLE IF NOT EXISTS live_trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    kind TEXT NOT NULL,
    price REAL NOT NULL,
    value REAL NOT NULL,
    reason TEXT,
    bar_time DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_live_trades_symbol ON live_trades(symbol, bar_time);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "backtest_runs", "stop_loss", "REAL DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "backtest_runs", "warmup_index", "INTEGER DEFAULT 0"); err != nil {
		return err
	}
	return nil
}

func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("scan table_info(%s): %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// RequiredColumns lists, per table, the columns queries depend on.
var RequiredColumns = map[string][]string{
	"backtest_runs": {
		"id", "symbol", "timeframe", "lookback_days", "preset", "params", "stop_loss",
		"initial_balance", "final_balance", "profit", "trade_count", "win_count", "win_rate",
		"bars", "warmup_index", "start_time", "end_time", "trade_log", "created_at",
	},
	"live_trades": {"id", "symbol", "timeframe", "kind", "price", "value", "reason", "bar_time", "created_at"},
}

// ColumnExists reports whether table has column.
func ColumnExists(d *Database, table, column string) (bool, error) {
	return columnExists(d.DB, table, column)
}
