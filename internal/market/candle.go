// Package market holds the candle model shared by the simulation engine and
// the providers that source historical and live bars.
package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Candle is one OHLCV bar keyed by its open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is a time-ordered sequence of candles without duplicate timestamps.
type Series []Candle

// Closes returns the closing prices in bar order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent candle.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Closed returns the leading bars whose interval of length step ended at or
// before now, dropping a trailing bar that is still forming.
func (s Series) Closed(step time.Duration, now time.Time) Series {
	n := len(s)
	for n > 0 && s[n-1].Time.Add(step).After(now) {
		n--
	}
	return s[:n]
}

// Validate checks ordering and that every price field is finite and non-negative.
func (s Series) Validate() error {
	for i, c := range s {
		if err := c.validate(); err != nil {
			return fmt.Errorf("candle %d (%s): %w", i, c.Time.UTC().Format(time.RFC3339), err)
		}
		if i > 0 && !c.Time.After(s[i-1].Time) {
			return fmt.Errorf("candle %d: %w", i, ErrUnordered)
		}
	}
	return nil
}

func (c Candle) validate() error {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ErrInvalidCandle
		}
	}
	return nil
}

// Normalize sorts by open time and drops duplicate timestamps, keeping the
// last occurrence (the most recently fetched copy of a bar).
func Normalize(in []Candle) Series {
	if len(in) == 0 {
		return Series{}
	}
	cp := make([]Candle, len(in))
	copy(cp, in)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Time.Before(cp[j].Time) })

	out := make(Series, 0, len(cp))
	for _, c := range cp {
		if n := len(out); n > 0 && out[n-1].Time.Equal(c.Time) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// Gaps counts spacings between consecutive bars wider than step.
func (s Series) Gaps(step time.Duration) int {
	if step <= 0 {
		return 0
	}
	gaps := 0
	for i := 1; i < len(s); i++ {
		if s[i].Time.Sub(s[i-1].Time) > step {
			gaps++
		}
	}
	return gaps
}
