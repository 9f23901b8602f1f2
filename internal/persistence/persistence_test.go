package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-core/internal/events"
	"backtest-core/pkg/db"
)

func openDB(t *testing.T) *db.Database {
	t.Helper()
	d, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(d))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func countTrades(t *testing.T, d *db.Database) int {
	t.Helper()
	var n int
	require.NoError(t, d.DB.QueryRow(`SELECT COUNT(*) FROM live_trades`).Scan(&n))
	return n
}

func TestBatchWriterFlushOnSize(t *testing.T) {
	d := openDB(t)
	bw := NewBatchWriter(d.DB, 2, time.Hour)
	defer bw.Close()

	bar := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bw.WriteQuery(db.InsertLiveTradeSQL, "BTCUSDT", "1h", "ENTRY", 100.0, 10000.0, "signal", bar)
	assert.Equal(t, 1, bw.Pending())
	bw.WriteQuery(db.InsertLiveTradeSQL, "BTCUSDT", "1h", "EXIT", 110.0, 11000.0, "signal", bar.Add(time.Hour))

	assert.Equal(t, 0, bw.Pending())
	assert.Equal(t, 2, countTrades(t, d))

	m := bw.Metrics()
	assert.Equal(t, uint64(2), m.TotalWrites)
	assert.Equal(t, uint64(1), m.TotalBatches)
	assert.Equal(t, 2, m.LastBatchSize)
	assert.False(t, m.LastFlushTime.IsZero())
}

func TestBatchWriterFlushOnClose(t *testing.T) {
	d := openDB(t)
	bw := NewBatchWriter(d.DB, 100, time.Hour)

	bw.WriteQuery(db.InsertLiveTradeSQL, "ETHUSDT", "4h", "ENTRY", 2000.0, 10000.0, "signal", time.Now().UTC())
	require.NoError(t, bw.Close())
	require.NoError(t, bw.Close())

	assert.Equal(t, 1, countTrades(t, d))
}

func TestBatchWriterRollsBackBadBatch(t *testing.T) {
	d := openDB(t)
	bw := NewBatchWriter(d.DB, 100, time.Hour)
	defer bw.Close()

	bw.WriteQuery(db.InsertLiveTradeSQL, "BTCUSDT", "1h", "ENTRY", 1.0, 1.0, "", time.Now().UTC())
	bw.WriteQuery(`INSERT INTO missing_table VALUES (1)`)

	require.Error(t, bw.Flush())
	assert.Equal(t, 0, countTrades(t, d))
	assert.Equal(t, uint64(1), bw.Metrics().TotalErrors)
}

func TestTradeJournalRecordsBusEvents(t *testing.T) {
	d := openDB(t)
	bw := NewBatchWriter(d.DB, 100, 10*time.Millisecond)
	defer bw.Close()

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j := &TradeJournal{Bus: bus, Writer: bw}
	j.Start(ctx)

	bus.Publish(events.EventTradeExecuted, events.TradeExecuted{
		Symbol: "BTCUSDT", Timeframe: "1h", Kind: "ENTRY", Price: 101, Value: 10000,
		Reason: "signal", BarTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	require.Eventually(t, func() bool {
		trades, err := d.ListLiveTrades(context.Background(), "BTCUSDT", 10)
		return err == nil && len(trades) == 1
	}, 2*time.Second, 10*time.Millisecond)

	trades, err := d.ListLiveTrades(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, "ENTRY", trades[0].Kind)
	assert.Equal(t, 101.0, trades[0].Price)
}
