package indicators

import (
	"math"
	"sort"
	"time"

	"backtest-core/internal/market"
)

// Frame is a price series with aligned indicator columns. Every column has
// one entry per bar; NaN marks bars before the indicator's lookback.
type Frame struct {
	series market.Series
	closes []float64
	cols   map[string][]float64
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.series) }

// Candle returns bar i.
func (f *Frame) Candle(i int) market.Candle { return f.series[i] }

// Time returns the open time of bar i.
func (f *Frame) Time(i int) time.Time { return f.series[i].Time }

// Close returns the close of bar i, false when i is out of range.
func (f *Frame) Close(i int) (float64, bool) {
	if i < 0 || i >= len(f.closes) {
		return 0, false
	}
	return f.closes[i], true
}

// Column returns the full column, false when it was not computed.
func (f *Frame) Column(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	return c, ok
}

// Value returns column name at bar i. It is false when the column is
// missing, i is out of range, or the value is still undefined.
func (f *Frame) Value(name string, i int) (float64, bool) {
	c, ok := f.cols[name]
	if !ok || i < 0 || i >= len(c) {
		return 0, false
	}
	v := c[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Columns returns the computed column names in sorted order.
func (f *Frame) Columns() []string {
	names := make([]string, 0, len(f.cols))
	for name := range f.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Latest returns every defined value at the last bar.
func (f *Frame) Latest() map[string]float64 {
	out := make(map[string]float64, len(f.cols))
	last := f.Len() - 1
	for name := range f.cols {
		if v, ok := f.Value(name, last); ok {
			out[name] = v
		}
	}
	return out
}
