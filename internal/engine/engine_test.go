package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-core/internal/events"
	"backtest-core/internal/indicators"
	"backtest-core/internal/live"
	"backtest-core/internal/market"
	"backtest-core/internal/monitor"
	"backtest-core/internal/position"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/db"
)

var fixedNow = time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, provider market.Provider) (*Impl, *events.Bus, *db.Database) {
	t.Helper()
	d, err := db.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(d))
	t.Cleanup(func() { _ = d.Close() })

	bus := events.NewBus()
	now := func() time.Time { return fixedNow }
	e := NewImpl(Config{
		Provider: provider,
		Live:     live.NewManager(provider, live.Options{Now: now}),
		Presets:  strategy.NewPresetBook(strategy.DefaultPresets()),
		Bus:      bus,
		DB:       d,
		Metrics:  monitor.NewMetrics(),
		Now:      now,
	})
	return e, bus, d
}

func intp(v int) *int { return &v }

// risingProvider returns n bars climbing by one per bar and ending at the
// bar containing end.
func risingProvider(n int) market.Provider {
	return market.ProviderFunc(func(ctx context.Context, symbol, timeframe string, start, end time.Time) (market.Series, error) {
		step, err := market.ParseTimeframe(timeframe)
		if err != nil {
			return nil, err
		}
		last := market.Align(end, step)
		out := make(market.Series, n)
		for i := range out {
			price := 100 + float64(i)
			out[i] = market.Candle{
				Time: last.Add(-time.Duration(n-1-i) * step), Open: price, High: price, Low: price, Close: price, Volume: 1,
			}
		}
		return out, nil
	})
}

func TestRunBacktestWithPresetIsStored(t *testing.T) {
	e, bus, _ := newTestEngine(t, market.NewMockProvider())
	done, unsub := bus.Subscribe(events.EventBacktestCompleted, 1)
	defer unsub()

	res, err := e.RunBacktest(context.Background(), BacktestRequest{
		Symbol: "btcusdt", LookbackDays: 30, Preset: "sma-trend",
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Equal(t, DefaultTimeframe, res.Timeframe)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 49, res.WarmupIndex)
	assert.InDelta(t, res.FinalBalance-res.InitialBalance, res.Profit, 1e-9)

	select {
	case msg := <-done:
		assert.Equal(t, res.RunID, msg.(events.BacktestCompleted).RunID)
	case <-time.After(time.Second):
		t.Fatal("no completion event")
	}

	stored, err := e.GetBacktest(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Log, stored.TradeLog)
	assert.Equal(t, res.TradeCount, stored.TradeCount)
	assert.Equal(t, "sma-trend", stored.Preset)

	runs, err := e.ListBacktests(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
}

func TestRunBacktestIsDeterministic(t *testing.T) {
	e, _, _ := newTestEngine(t, market.NewMockProvider())
	req := BacktestRequest{Symbol: "ETHUSDT", Timeframe: "4h", LookbackDays: 60, Preset: "rsi-macd"}

	a, err := e.RunBacktest(context.Background(), req)
	require.NoError(t, err)
	b, err := e.RunBacktest(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Log, b.Log)
	assert.Equal(t, a.FinalBalance, b.FinalBalance)
}

func TestRunBacktestErrors(t *testing.T) {
	e, _, _ := newTestEngine(t, market.NewMockProvider())
	ctx := context.Background()
	bad := 150.0

	cases := []struct {
		name string
		req  BacktestRequest
		want error
	}{
		{"empty symbol", BacktestRequest{Preset: "sma-trend"}, ErrInvalidRequest},
		{"unknown preset", BacktestRequest{Symbol: "BTCUSDT", Preset: "nope"}, ErrInvalidRequest},
		{"lookback too long", BacktestRequest{Symbol: "BTCUSDT", LookbackDays: 400, Preset: "sma-trend"}, ErrInvalidRequest},
		{"negative lookback", BacktestRequest{Symbol: "BTCUSDT", LookbackDays: -1, Preset: "sma-trend"}, ErrInvalidRequest},
		{"bad timeframe", BacktestRequest{Symbol: "BTCUSDT", Timeframe: "7m", Preset: "sma-trend"}, market.ErrInvalidTimeframe},
		{"bad threshold", BacktestRequest{Symbol: "BTCUSDT", Params: strategy.Params{
			Buy: strategy.SideParams{"rsi": {Active: true, Threshold: &bad}},
		}}, indicators.ErrInvalidIndicatorConfig},
		{"not enough bars", BacktestRequest{Symbol: "BTCUSDT", Timeframe: "1d", LookbackDays: 1, Preset: "sma-trend"}, indicators.ErrInsufficientData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.RunBacktest(ctx, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	runs, err := e.ListBacktests(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExplicitParamsOverridePreset(t *testing.T) {
	e, _, _ := newTestEngine(t, market.NewMockProvider())
	res, err := e.RunBacktest(context.Background(), BacktestRequest{
		Symbol: "BTCUSDT", LookbackDays: 10, Preset: "sma-trend",
		Params: strategy.Params{Buy: strategy.SideParams{"sma": {Active: true, Period: intp(5)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.WarmupIndex)
}

func TestLiveSessionFlow(t *testing.T) {
	e, bus, _ := newTestEngine(t, risingProvider(20))
	trades, unsub := bus.Subscribe(events.EventTradeExecuted, 4)
	defer unsub()
	ctx := context.Background()

	_, err := e.PollLive(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, live.ErrSessionNotFound)

	ack, err := e.StartLive(ctx, LiveStartRequest{
		Symbol: "btcusdt", Timeframe: "1h",
		Params: strategy.Params{Buy: strategy.SideParams{"sma": {Active: true, Period: intp(5)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", ack.Key)
	assert.Equal(t, 4, ack.WarmupIndex)

	res, err := e.PollLive(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	require.NotNil(t, res.Event)
	assert.Equal(t, position.Entry, res.Event.Kind)
	// the 12:00 bar is still forming at fixedNow; the decision uses 11:00
	assert.Equal(t, 118.0, res.Event.Price)
	assert.Equal(t, 119.0, res.CurrentPrice)

	select {
	case msg := <-trades:
		ev := msg.(events.TradeExecuted)
		assert.Equal(t, "ENTRY", ev.Kind)
		assert.Equal(t, res.TransitionMessage, ev.Message)
	case <-time.After(time.Second):
		t.Fatal("no trade event")
	}

	again, err := e.PollLive(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, again.Advanced)
	assert.Nil(t, again.Event)
	assert.Equal(t, position.Long, again.Position)

	sessions := e.ListLive(ctx)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].Polls)

	st := e.Status(ctx)
	assert.Equal(t, 1, st.LiveSessions)
	assert.True(t, st.HistoryEnabled)
	assert.Equal(t, fixedNow, st.ServerTime)
}

func TestSlowLivePollDoesNotBlockOtherSymbols(t *testing.T) {
	rising := risingProvider(30)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	provider := market.ProviderFunc(func(ctx context.Context, symbol, timeframe string, start, end time.Time) (market.Series, error) {
		if symbol == "SLOWUSDT" {
			once.Do(func() { close(entered) })
			<-release
		}
		return rising.FetchCandles(ctx, symbol, timeframe, start, end)
	})
	e, _, _ := newTestEngine(t, provider)
	ctx := context.Background()
	params := strategy.Params{Buy: strategy.SideParams{"sma": {Active: true, Period: intp(5)}}}

	_, err := e.StartLive(ctx, LiveStartRequest{Symbol: "SLOWUSDT", Timeframe: "1h", Params: params})
	require.NoError(t, err)
	polled := make(chan error, 1)
	go func() {
		_, err := e.PollLive(ctx, "SLOWUSDT")
		polled <- err
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := e.StartLive(ctx, LiveStartRequest{Symbol: "ETHUSDT", Timeframe: "1h", Params: params})
		assert.NoError(t, err)
		assert.Len(t, e.ListLive(ctx), 2)
		assert.Equal(t, 2, e.Status(ctx).LiveSessions)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StartLive blocked behind a poll on another symbol")
	}
	close(release)
	require.NoError(t, <-polled)
}

func TestStartLiveRejectsBadConfig(t *testing.T) {
	e, _, _ := newTestEngine(t, risingProvider(20))
	_, err := e.StartLive(context.Background(), LiveStartRequest{Symbol: "BTCUSDT", Timeframe: "9h"})
	assert.ErrorIs(t, err, market.ErrInvalidTimeframe)

	_, err = e.StartLive(context.Background(), LiveStartRequest{Symbol: "BTCUSDT", Preset: "missing"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, e.ListLive(context.Background()))
}

func TestHistoryUnavailableWithoutDB(t *testing.T) {
	e := NewImpl(Config{Provider: market.NewMockProvider()})
	_, err := e.ListBacktests(context.Background(), 5)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = e.GetBacktest(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)

	res, err := e.RunBacktest(context.Background(), BacktestRequest{Symbol: "BTCUSDT", LookbackDays: 5, Preset: "ema-trend"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.NotEmpty(t, e.Presets())
}
