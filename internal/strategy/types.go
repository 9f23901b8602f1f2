// Package strategy turns indicator frames into buy/sell decisions.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"backtest-core/internal/indicators"
)

// Side selects which half of a Config a signal belongs to.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SideConfig maps an indicator kind to its spec for one side.
type SideConfig map[indicators.Kind]indicators.Spec

// Active returns the active specs in a stable kind order.
func (c SideConfig) Active() []indicators.Spec {
	out := make([]indicators.Spec, 0, len(c))
	for _, spec := range c {
		if spec != nil && spec.IsActive() {
			out = append(out, spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return kindRank(out[i].Kind()) < kindRank(out[j].Kind()) })
	return out
}

func (c SideConfig) validate(side Side) error {
	for kind, spec := range c {
		if spec == nil {
			return fmt.Errorf("%w: %s %s: missing spec", indicators.ErrInvalidIndicatorConfig, side, kind)
		}
		if spec.Kind() != kind {
			return fmt.Errorf("%w: %s: unknown indicator kind %q", indicators.ErrInvalidIndicatorConfig, side, kind)
		}
		if !spec.IsActive() {
			continue
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("%s %s: %w", side, kind, err)
		}
	}
	return nil
}

// Config is a complete long-only strategy: entry conditions, exit
// conditions and an optional stop-loss fraction (0 disables it).
type Config struct {
	Buy      SideConfig `json:"buy"`
	Sell     SideConfig `json:"sell"`
	StopLoss float64    `json:"stopLoss"`
}

// Validate checks every active spec on both sides and the stop-loss fraction.
func (c Config) Validate() error {
	if err := c.Buy.validate(SideBuy); err != nil {
		return err
	}
	if err := c.Sell.validate(SideSell); err != nil {
		return err
	}
	if math.IsNaN(c.StopLoss) || c.StopLoss < 0 || c.StopLoss >= 1 {
		return fmt.Errorf("%w: stop loss %v outside [0,1)", indicators.ErrInvalidIndicatorConfig, c.StopLoss)
	}
	return nil
}

// Specs returns the active specs of both sides, buy side first.
func (c Config) Specs() []indicators.Spec {
	return append(c.Buy.Active(), c.Sell.Active()...)
}

// WarmupIndex is the first bar at which every active indicator on either
// side has a defined value. It is 0 when nothing is active.
func (c Config) WarmupIndex() int {
	warmup := 0
	for _, spec := range c.Specs() {
		if lb := spec.Lookback(); lb > warmup {
			warmup = lb
		}
	}
	return warmup
}

// Reason explains why a Decision fired.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonSignal   Reason = "signal"
	ReasonStopLoss Reason = "stop_loss"
)

// Decision is the outcome of evaluating one bar.
type Decision struct {
	Buy    bool
	Sell   bool
	Reason Reason
}

// Decide evaluates bar i for a ledger that is long (holding since entry)
// or flat. Only the side that can act is evaluated: buy while flat, sell
// (or the stop-loss) while long.
func (c Config) Decide(f *indicators.Frame, i int, long bool, entry float64) Decision {
	if !long {
		if Evaluate(f, i, SideBuy, c.Buy) {
			return Decision{Buy: true, Reason: ReasonSignal}
		}
		return Decision{}
	}

	if c.StopLoss > 0 {
		if price, ok := f.Close(i); ok && price <= entry*(1-c.StopLoss) {
			return Decision{Sell: true, Reason: ReasonStopLoss}
		}
	}
	if Evaluate(f, i, SideSell, c.Sell) {
		return Decision{Sell: true, Reason: ReasonSignal}
	}
	return Decision{}
}

func kindRank(k indicators.Kind) int {
	for i, kind := range indicators.Kinds {
		if kind == k {
			return i
		}
	}
	return len(indicators.Kinds)
}
