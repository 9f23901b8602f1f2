// Package position implements the single-instrument, all-in/all-out
// position ledger shared by backtests and live sessions.
package position

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidPrice   = errors.New("invalid price")
	ErrInvalidBalance = errors.New("initial balance must be positive")
)

// State of a ledger.
type State string

const (
	Flat State = "FLAT"
	Long State = "LONG"
)

// EventKind classifies a trade event.
type EventKind string

const (
	Entry      EventKind = "ENTRY"
	Exit       EventKind = "EXIT"
	ForcedExit EventKind = "FORCED_EXIT"
)

// TradeEvent records one transition. Value is the position value after an
// ENTRY and the resulting cash balance after an EXIT or FORCED_EXIT.
type TradeEvent struct {
	Time   time.Time `json:"time"`
	Kind   EventKind `json:"kind"`
	Price  float64   `json:"price"`
	Value  float64   `json:"value"`
	Reason string    `json:"reason,omitempty"`
}

// Ledger holds either cash or the instrument, never both.
//
// Trades counts every ENTRY plus every FORCED_EXIT; Wins counts exits
// (signalled or forced) closed above the entry price.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	initial float64
	state   State
	balance float64
	held    float64
	entry   float64
	trades  int
	wins    int
	events  []TradeEvent
}

// New creates a flat ledger holding initial cash.
func New(initial float64) (*Ledger, error) {
	if !(initial > 0) || math.IsInf(initial, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBalance, initial)
	}
	return &Ledger{initial: initial, state: Flat, balance: initial}, nil
}

// Advance applies one bar's signals: buy opens a position while flat, sell
// closes it while long, anything else is a no-op. The price is checked
// before any state changes.
func (l *Ledger) Advance(t time.Time, price float64, buy, sell bool) (*TradeEvent, error) {
	return l.AdvanceWithReason(t, price, buy, sell, "")
}

// AdvanceWithReason is Advance with a reason attached to the emitted event.
func (l *Ledger) AdvanceWithReason(t time.Time, price float64, buy, sell bool, reason string) (*TradeEvent, error) {
	if err := checkPrice(price); err != nil {
		return nil, err
	}

	switch {
	case l.state == Flat && buy:
		l.held = l.balance / price
		l.balance = 0
		l.entry = price
		l.state = Long
		l.trades++
		return l.record(t, Entry, price, l.held*price, reason), nil

	case l.state == Long && sell:
		return l.close(t, Exit, price, reason), nil
	}
	return nil, nil
}

// Liquidate force-closes an open position at price. It is a no-op when flat.
func (l *Ledger) Liquidate(t time.Time, price float64) (*TradeEvent, error) {
	if l.state != Long {
		return nil, nil
	}
	if err := checkPrice(price); err != nil {
		return nil, err
	}
	l.trades++
	return l.close(t, ForcedExit, price, "end of data"), nil
}

func (l *Ledger) close(t time.Time, kind EventKind, price float64, reason string) *TradeEvent {
	l.balance = l.held * price
	l.held = 0
	if price > l.entry {
		l.wins++
	}
	l.state = Flat
	return l.record(t, kind, price, l.balance, reason)
}

func (l *Ledger) record(t time.Time, kind EventKind, price, value float64, reason string) *TradeEvent {
	ev := TradeEvent{Time: t, Kind: kind, Price: price, Value: value, Reason: reason}
	l.events = append(l.events, ev)
	return &ev
}

func checkPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	return nil
}

func (l *Ledger) State() State { return l.state }
func (l *Ledger) Balance() float64 { return l.balance }
func (l *Ledger) Held() float64 { return l.held }
func (l *Ledger) EntryPrice() float64 { return l.entry }
func (l *Ledger) Trades() int { return l.trades }
func (l *Ledger) Wins() int { return l.wins }
func (l *Ledger) InitialBalance() float64 { return l.initial }

// WinRate is Wins/Trades, or exactly 0 before any trade.
func (l *Ledger) WinRate() float64 {
	if l.trades == 0 {
		return 0
	}
	return float64(l.wins) / float64(l.trades)
}

// Value marks the ledger to market at price.
func (l *Ledger) Value(price float64) float64 {
	return l.balance + l.held*price
}

// Events returns a copy of the trade log.
func (l *Ledger) Events() []TradeEvent {
	out := make([]TradeEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Snapshot is a point-in-time copy of a ledger.
type Snapshot struct {
	State      State   `json:"state"`
	Balance    float64 `json:"balance"`
	Held       float64 `json:"held"`
	EntryPrice float64 `json:"entryPrice,omitempty"`
	Trades     int     `json:"tradeCount"`
	Wins       int     `json:"winCount"`
	WinRate    float64 `json:"winRate"`
	MarkValue  float64 `json:"markValue"`
}

// Snapshot copies the ledger, marking open holdings at mark.
func (l *Ledger) Snapshot(mark float64) Snapshot {
	s := Snapshot{
		State:     l.state,
		Balance:   l.balance,
		Held:      l.held,
		Trades:    l.trades,
		Wins:      l.wins,
		WinRate:   l.WinRate(),
		MarkValue: l.Value(mark),
	}
	if l.state == Long {
		s.EntryPrice = l.entry
	}
	return s
}
