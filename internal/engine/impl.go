package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"backtest-core/internal/backtest"
	"backtest-core/internal/events"
	"backtest-core/internal/live"
	"backtest-core/internal/market"
	"backtest-core/internal/monitor"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/db"
)

// Impl implements Service by composing the market, backtest and live packages.
type Impl struct {
	provider market.Provider
	live     *live.Manager
	presets  *strategy.PresetBook
	runner   *backtest.Runner
	bus      *events.Bus
	db       *db.Database
	metrics  *monitor.Metrics
	maxDays  int
	now      func() time.Time
	meta     SystemStatus
}

// Config holds the collaborators of an engine implementation. Bus, DB and
// Metrics are optional.
type Config struct {
	Provider        market.Provider
	Live            *live.Manager
	Presets         *strategy.PresetBook
	Bus             *events.Bus
	DB              *db.Database
	Metrics         *monitor.Metrics
	InitialBalance  float64
	MaxLookbackDays int
	Now             func() time.Time
	Meta            SystemStatus
}

// NewImpl creates a new engine implementation.
func NewImpl(cfg Config) *Impl {
	if cfg.MaxLookbackDays <= 0 {
		cfg.MaxLookbackDays = 365
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Presets == nil {
		cfg.Presets = strategy.NewPresetBook(nil)
	}
	if cfg.Live == nil {
		cfg.Live = live.NewManager(cfg.Provider, live.Options{InitialBalance: cfg.InitialBalance, Now: cfg.Now})
	}
	return &Impl{
		provider: cfg.Provider,
		live:     cfg.Live,
		presets:  cfg.Presets,
		runner:   backtest.NewRunner(cfg.InitialBalance),
		bus:      cfg.Bus,
		db:       cfg.DB,
		metrics:  cfg.Metrics,
		maxDays:  cfg.MaxLookbackDays,
		now:      cfg.Now,
		meta:     cfg.Meta,
	}
}

// resolve applies the named preset to params and timeframe.
func (e *Impl) resolve(preset, timeframe string, params strategy.Params) (string, strategy.Params, error) {
	if preset != "" {
		p, ok := e.presets.Get(preset)
		if !ok {
			return "", params, fmt.Errorf("%w: unknown preset %q", ErrInvalidRequest, preset)
		}
		if len(params.Buy) == 0 && len(params.Sell) == 0 {
			stop := params.StopLoss
			params = p.Params
			if stop > 0 {
				params.StopLoss = stop
			}
		}
		if timeframe == "" {
			timeframe = p.Timeframe
		}
	}
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	return timeframe, params, nil
}

// --- Backtests ---

func (e *Impl) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	began := time.Now()
	res, err := e.runBacktest(ctx, req)
	if err != nil {
		e.metrics.ObserveBacktestError()
		log.Warn().Err(err).Str("symbol", req.Symbol).Str("timeframe", req.Timeframe).Msg("backtest failed")
		return nil, err
	}

	e.bus.Publish(events.EventBacktestCompleted, events.BacktestCompleted{
		RunID:      res.RunID,
		Symbol:     res.Symbol,
		Timeframe:  res.Timeframe,
		Profit:     res.Profit,
		TradeCount: res.TradeCount,
		WinRate:    res.WinRate,
		Bars:       res.Bars,
		Duration:   time.Since(began),
	})
	return res, nil
}

func (e *Impl) runBacktest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	symbol := live.NormalizeKey(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	days := req.LookbackDays
	if days == 0 {
		days = DefaultLookbackDays
	}
	if days < 1 || days > e.maxDays {
		return nil, fmt.Errorf("%w: lookbackDays must be between 1 and %d", ErrInvalidRequest, e.maxDays)
	}
	timeframe, params, err := e.resolve(req.Preset, req.Timeframe, req.Params)
	if err != nil {
		return nil, err
	}
	if _, err := market.ParseTimeframe(timeframe); err != nil {
		return nil, err
	}
	cfg, err := params.Config()
	if err != nil {
		return nil, err
	}

	end := e.now()
	start := end.AddDate(0, 0, -days)
	series, err := e.provider.FetchCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	summary, err := e.runner.Run(series, cfg)
	if err != nil {
		return nil, err
	}

	res := &BacktestResult{
		RunID:        uuid.NewString(),
		Symbol:       symbol,
		Timeframe:    timeframe,
		LookbackDays: days,
		Preset:       req.Preset,
		Summary:      summary,
	}
	log.Info().
		Str("run_id", res.RunID).
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", summary.Bars).
		Int("trades", summary.TradeCount).
		Float64("profit", summary.Profit).
		Msg("backtest completed")

	e.record(ctx, res, params)
	return res, nil
}

// record stores the run; history is best effort and never fails a backtest.
func (e *Impl) record(ctx context.Context, res *BacktestResult, params strategy.Params) {
	if e.db == nil {
		return
	}
	raw, err := json.Marshal(params)
	if err != nil {
		log.Error().Err(err).Str("run_id", res.RunID).Msg("encode backtest params")
		return
	}
	run := db.BacktestRun{
		ID:             res.RunID,
		Symbol:         res.Symbol,
		Timeframe:      res.Timeframe,
		LookbackDays:   res.LookbackDays,
		Preset:         res.Preset,
		Params:         string(raw),
		StopLoss:       params.StopLoss,
		InitialBalance: res.InitialBalance,
		FinalBalance:   res.FinalBalance,
		Profit:         res.Profit,
		TradeCount:     res.TradeCount,
		WinCount:       res.WinCount,
		WinRate:        res.WinRate,
		Bars:           res.Bars,
		WarmupIndex:    res.WarmupIndex,
		StartTime:      res.Start,
		EndTime:        res.End,
		TradeLog:       res.Log,
	}
	if err := e.db.InsertBacktestRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", res.RunID).Msg("store backtest run")
	}
}

func (e *Impl) ListBacktests(ctx context.Context, limit int) ([]db.BacktestRun, error) {
	if e.db == nil {
		return nil, ErrUnavailable
	}
	return e.db.ListBacktestRuns(ctx, limit)
}

func (e *Impl) GetBacktest(ctx context.Context, id string) (*db.BacktestRun, error) {
	if e.db == nil {
		return nil, ErrUnavailable
	}
	return e.db.GetBacktestRun(ctx, id)
}

// --- Live sessions ---

func (e *Impl) StartLive(ctx context.Context, req LiveStartRequest) (live.Ack, error) {
	timeframe, params, err := e.resolve(req.Preset, req.Timeframe, req.Params)
	if err != nil {
		return live.Ack{}, err
	}
	cfg, err := params.Config()
	if err != nil {
		return live.Ack{}, err
	}
	ack, err := e.live.Start(req.Symbol, timeframe, cfg)
	if err != nil {
		return live.Ack{}, err
	}
	e.metrics.SetSessions(e.live.Len())
	e.bus.Publish(events.EventLiveSessionStarted, events.LiveSessionStarted{
		Symbol:    ack.Key,
		Timeframe: ack.Timeframe,
		StartedAt: ack.StartedAt,
	})
	return ack, nil
}

func (e *Impl) PollLive(ctx context.Context, symbol string) (*live.PollResult, error) {
	began := time.Now()
	res, err := e.live.Poll(ctx, symbol)
	if err != nil {
		e.metrics.ObservePollError()
		return nil, err
	}

	e.bus.Publish(events.EventLivePolled, events.LivePolled{
		Symbol:   res.Key,
		Advanced: res.Advanced,
		Price:    res.CurrentPrice,
		Position: string(res.Position),
		Duration: time.Since(began),
	})
	if res.Event != nil {
		e.bus.Publish(events.EventTradeExecuted, events.TradeExecuted{
			Symbol:    res.Key,
			Timeframe: res.Timeframe,
			Kind:      string(res.Event.Kind),
			Price:     res.Event.Price,
			Value:     res.Event.Value,
			Reason:    res.Event.Reason,
			BarTime:   res.Event.Time,
			Message:   res.TransitionMessage,
		})
	}
	return res, nil
}

func (e *Impl) ListLive(ctx context.Context) []live.SessionInfo {
	return e.live.Sessions()
}

func (e *Impl) LiveTrades(ctx context.Context, symbol string, limit int) ([]db.LiveTrade, error) {
	if e.db == nil {
		return nil, ErrUnavailable
	}
	return e.db.ListLiveTrades(ctx, strings.ToUpper(strings.TrimSpace(symbol)), limit)
}

// --- Catalog & system ---

func (e *Impl) Presets() []strategy.Preset {
	return e.presets.List()
}

func (e *Impl) Status(ctx context.Context) SystemStatus {
	st := e.meta
	st.Status = "ok"
	st.HistoryEnabled = e.db != nil
	st.LiveSessions = e.live.Len()
	st.InitialBalance = e.runner.InitialBalance
	st.MaxLookbackDays = e.maxDays
	st.ServerTime = e.now().UTC()
	return st
}

var _ Service = (*Impl)(nil)
