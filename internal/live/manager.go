// Package live runs a strategy incrementally against polled market data,
// keeping one persistent ledger per instrument key.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"backtest-core/internal/backtest"
	"backtest-core/internal/indicators"
	"backtest-core/internal/market"
	"backtest-core/internal/position"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/cache"
)

var ErrSessionNotFound = errors.New("live session not found")

// DefaultWindowBars is the minimum number of bars before the session start
// that seed its indicators.
const DefaultWindowBars = 500

// Options tune a Manager.
type Options struct {
	InitialBalance float64
	// WindowBars is the minimum number of bars preceding the session start
	// that its history begins with; the strategy warm-up raises it when
	// larger.
	WindowBars int
	Now        func() time.Time
}

// Manager owns the live session table.
//
// Start and Poll on the same key are serialized for their whole
// read-modify-write, including the candle fetch; different keys proceed
// independently. Listings read snapshots published at the end of each
// Start and Poll, so they never wait for an in-flight fetch.
type Manager struct {
	provider market.Provider
	sessions *cache.Sharded[*session]
	infos    *cache.Sharded[SessionInfo]
	opts     Options
}

// session keeps every closed bar since origin. Indicators are always
// computed from origin, so each poll sees the same values a single backtest
// over that history would.
type session struct {
	key       string
	timeframe string
	step      time.Duration
	cfg       strategy.Config
	warmup    int
	ledger    *position.Ledger
	startedAt time.Time
	origin    time.Time
	history   market.Series
	lastBar   time.Time
	lastPrice float64
	polls     int
}

// NewManager creates a manager reading candles from provider.
func NewManager(provider market.Provider, opts Options) *Manager {
	if opts.InitialBalance <= 0 {
		opts.InitialBalance = backtest.DefaultInitialBalance
	}
	if opts.WindowBars <= 0 {
		opts.WindowBars = DefaultWindowBars
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		provider: provider,
		sessions: cache.NewSharded[*session](),
		infos:    cache.NewSharded[SessionInfo](),
		opts:     opts,
	}
}

// Ack confirms a (re)started session.
type Ack struct {
	Key            string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	StartedAt      time.Time `json:"startedAt"`
	WarmupIndex    int       `json:"warmupIndex"`
	WindowBars     int       `json:"windowBars"`
	InitialBalance float64   `json:"initialBalance"`
}

// NormalizeKey canonicalizes an instrument key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Start creates or replaces the session for key with a fresh ledger.
func (m *Manager) Start(key, timeframe string, cfg strategy.Config) (Ack, error) {
	key = NormalizeKey(key)
	if key == "" {
		return Ack{}, fmt.Errorf("%w: empty symbol", indicators.ErrInvalidIndicatorConfig)
	}
	step, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return Ack{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Ack{}, err
	}

	var ack Ack
	err = m.sessions.Update(key, func(_ *session, replaced bool) (*session, error) {
		ledger, err := position.New(m.opts.InitialBalance)
		if err != nil {
			return nil, err
		}
		s := &session{
			key:       key,
			timeframe: timeframe,
			step:      step,
			cfg:       cfg,
			warmup:    cfg.WarmupIndex(),
			ledger:    ledger,
			startedAt: m.opts.Now(),
		}
		window := m.window(s)
		s.origin = barsBefore(market.Align(s.startedAt, step), step, window)
		ack = Ack{
			Key:            key,
			Timeframe:      timeframe,
			StartedAt:      s.startedAt,
			WarmupIndex:    s.warmup,
			WindowBars:     window,
			InitialBalance: m.opts.InitialBalance,
		}
		m.publish(s)
		log.Info().Str("key", key).Str("timeframe", timeframe).Bool("replaced", replaced).Msg("live session started")
		return s, nil
	})
	return ack, err
}

// PollResult reports the outcome of one poll. Decisions are made on the
// latest closed bar (BarTime); Advanced is false when that bar was already
// processed by an earlier poll and the ledger was left untouched.
// CurrentPrice is the most recent quote, which may belong to a bar still
// forming.
type PollResult struct {
	Key               string               `json:"symbol"`
	Timeframe         string               `json:"timeframe"`
	TradeExecuted     bool                 `json:"tradeExecuted"`
	Advanced          bool                 `json:"advanced"`
	Event             *position.TradeEvent `json:"event,omitempty"`
	TransitionMessage string               `json:"transitionMessage,omitempty"`
	StatusMessage     string               `json:"statusMessage,omitempty"`
	CurrentPrice      float64              `json:"currentPrice"`
	BarTime           time.Time            `json:"barTime"`
	Position          position.State       `json:"positionState"`
	Balance           float64              `json:"balance"`
	Held              float64              `json:"held"`
	MarkValue         float64              `json:"markValue"`
	TradeCount        int                  `json:"tradeCount"`
	WinCount          int                  `json:"winCount"`
	WinRate           float64              `json:"winRate"`
	Indicators        map[string]float64   `json:"latestIndicatorValues"`
}

// Poll fetches the bars closed since the previous poll, evaluates the
// latest closed bar and advances the session ledger at most once.
func (m *Manager) Poll(ctx context.Context, key string) (*PollResult, error) {
	key = NormalizeKey(key)
	var res *PollResult
	found, err := m.sessions.Modify(key, func(s *session) (*session, error) {
		r, err := m.poll(ctx, s)
		res = r
		return s, err
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Manager) window(s *session) int {
	if n := s.warmup + 1; n > m.opts.WindowBars {
		return n
	}
	return m.opts.WindowBars
}

// barsBefore steps back n bars from t, clamping n so the offset fits in a
// time.Duration.
func barsBefore(t time.Time, step time.Duration, n int) time.Time {
	if limit := math.MaxInt64 / int64(step); int64(n) > limit {
		n = int(limit)
	}
	return t.Add(-time.Duration(n) * step)
}

// extend fetches from the last stored bar (or origin) up to now and appends
// the newly closed bars. It returns the most recent quote seen.
func (m *Manager) extend(ctx context.Context, s *session, now time.Time) (float64, error) {
	from := s.origin
	last, ok := s.history.Last()
	if ok {
		from = last.Time
	}
	fetched, err := m.provider.FetchCandles(ctx, s.key, s.timeframe, from, now)
	if err != nil {
		return 0, err
	}
	quote := last.Close
	if n := len(fetched); n > 0 {
		quote = fetched[n-1].Close
	}
	for _, c := range fetched.Closed(s.step, now) {
		if c.Time.Before(s.origin) || (ok && !c.Time.After(last.Time)) {
			continue
		}
		s.history = append(s.history, c)
	}
	return quote, nil
}

func (m *Manager) poll(ctx context.Context, s *session) (*PollResult, error) {
	quote, err := m.extend(ctx, s, m.opts.Now())
	if err != nil {
		return nil, err
	}
	if len(s.history) < s.warmup+1 {
		return nil, fmt.Errorf("%w: %d closed bars, need at least %d", indicators.ErrInsufficientData, len(s.history), s.warmup+1)
	}
	frame, err := indicators.Compute(s.history, s.cfg.Specs()...)
	if err != nil {
		return nil, err
	}

	i := frame.Len() - 1
	bar := frame.Candle(i)
	res := &PollResult{
		Key:          s.key,
		Timeframe:    s.timeframe,
		CurrentPrice: quote,
		BarTime:      bar.Time,
		Indicators:   frame.Latest(),
	}

	if s.lastBar.IsZero() || bar.Time.After(s.lastBar) {
		d := s.cfg.Decide(frame, i, s.ledger.State() == position.Long, s.ledger.EntryPrice())
		ev, err := s.ledger.AdvanceWithReason(bar.Time, bar.Close, d.Buy, d.Sell, string(d.Reason))
		if err != nil {
			return nil, err
		}
		s.lastBar = bar.Time
		res.Advanced = true
		if ev != nil {
			res.TradeExecuted = true
			res.Event = ev
			res.TransitionMessage = backtest.FormatEvent(*ev)
			log.Info().Str("key", s.key).Str("kind", string(ev.Kind)).Float64("price", ev.Price).Msg("live trade")
		}
	}
	s.lastPrice = quote
	s.polls++
	m.publish(s)

	if !res.TradeExecuted {
		res.StatusMessage = statusMessage(s.ledger, quote)
	}
	snap := s.ledger.Snapshot(quote)
	res.Position = snap.State
	res.Balance = snap.Balance
	res.Held = snap.Held
	res.MarkValue = snap.MarkValue
	res.TradeCount = snap.Trades
	res.WinCount = snap.Wins
	res.WinRate = snap.WinRate
	return res, nil
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func statusMessage(l *position.Ledger, price float64) string {
	if l.State() == position.Long {
		return fmt.Sprintf("Holding %.8f since entry at %s, current price %s, value $%.2f",
			l.Held(), formatPrice(l.EntryPrice()), formatPrice(price), l.Value(price))
	}
	return fmt.Sprintf("Waiting for buy signal, current price %s, balance $%.2f", formatPrice(price), l.Balance())
}

// SessionInfo describes one session for listings.
type SessionInfo struct {
	Key       string            `json:"symbol"`
	Timeframe string            `json:"timeframe"`
	StartedAt time.Time         `json:"startedAt"`
	LastBar   time.Time         `json:"lastBar,omitempty"`
	Polls     int               `json:"polls"`
	Bars      int               `json:"bars"`
	Ledger    position.Snapshot `json:"ledger"`
}

// publish stores the listing snapshot for s. Callers hold the key's lock.
func (m *Manager) publish(s *session) {
	m.infos.Set(s.key, SessionInfo{
		Key:       s.key,
		Timeframe: s.timeframe,
		StartedAt: s.startedAt,
		LastBar:   s.lastBar,
		Polls:     s.polls,
		Bars:      len(s.history),
		Ledger:    s.ledger.Snapshot(s.lastPrice),
	})
}

// Sessions lists every session as of its latest completed Start or Poll,
// sorted by key.
func (m *Manager) Sessions() []SessionInfo {
	keys := m.infos.Keys()
	out := make([]SessionInfo, 0, len(keys))
	for _, key := range keys {
		if info, ok := m.infos.Get(key); ok {
			out = append(out, info)
		}
	}
	return out
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	return m.infos.Len()
}
